// Package phone normalizes user-entered phone numbers into E.164 form and
// validates them before they are handed to the protocol client for pairing.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// trunkFixes maps country codes to a legacy trunk digit that must not
// follow them in E.164. Users pasting numbers in old national dialing
// formats commonly include it; the digit is dropped.
//
// 52 1: Mexico's pre-2019 mobile prefix. 49 0: German national trunk zero.
var trunkFixes = map[string]string{
	"52": "1",
	"49": "0",
}

// Normalize converts raw user input into a best-effort E.164 string. It
// strips every non-digit character except a leading "+", rewrites a "00"
// international prefix to "+", prefixes "+" when absent, and collapses
// known country-code/trunk-digit combinations.
//
// Normalize does not validate; pass the result to Validate.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)

	var b strings.Builder
	for i, r := range raw {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	num := b.String()

	if strings.HasPrefix(num, "00") {
		num = "+" + num[2:]
	}
	if num != "" && !strings.HasPrefix(num, "+") {
		num = "+" + num
	}

	for cc, trunk := range trunkFixes {
		prefix := "+" + cc + trunk
		if strings.HasPrefix(num, prefix) && len(num) > len(prefix) {
			num = "+" + cc + num[len(prefix):]
			break
		}
	}

	return num
}

// Validate reports whether num (an E.164 string as produced by Normalize)
// is a valid phone number.
func Validate(num string) bool {
	parsed, err := phonenumbers.Parse(num, "")
	if err != nil {
		return false
	}
	return phonenumbers.IsValidNumber(parsed)
}
