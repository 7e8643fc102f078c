package phone

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"AlreadyE164", "+525512345678", "+525512345678"},
		{"MissingPlus", "525512345678", "+525512345678"},
		{"MexicanLegacyMobilePrefix", "5215512345678", "+525512345678"},
		{"MexicanLegacyWithFormatting", "+521 55 1234 5678", "+525512345678"},
		{"GermanTrunkZero", "+4901701234567", "+491701234567"},
		{"DoubleZeroIntlPrefix", "00445512345678", "+445512345678"},
		{"Punctuation", "+1 (415) 555-2671", "+14155552671"},
		{"InteriorPlusDropped", "52+5512345678", "+525512345678"},
		{"Whitespace", "  +525512345678  ", "+525512345678"},
		{"Empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		num   string
		valid bool
	}{
		{"+525512345678", true},
		{"+447911123456", true},
		{"+12", false},
		{"+999123", false},
		{"", false},
		{"notanumber", false},
	}

	for _, tt := range tests {
		if got := Validate(tt.num); got != tt.valid {
			t.Errorf("Validate(%q) = %v, want %v", tt.num, got, tt.valid)
		}
	}
}
