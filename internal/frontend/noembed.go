//go:build !embed

package frontend

import "net/http"

// Handler returns nil when the binary was built without -tags embed; the
// caller falls back to serving from the filesystem.
func Handler() http.Handler {
	return nil
}
