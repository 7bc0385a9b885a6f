package request

import (
	"net/http"
)

// BodyLimit caps request bodies with http.MaxBytesReader. It must run before
// anything that reads the body, including the sign-in gate's payload sniffing.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
