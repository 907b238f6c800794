package request

import (
	"net/http"

	dErrors "stampgate/pkg/domain-errors"
	"stampgate/pkg/platform/httputil"
)

// BodyLimit caps request bodies at maxBytes. A body whose declared
// Content-Length already exceeds the cap is refused with 413 before the
// handler runs; undeclared or chunked bodies are wrapped in
// http.MaxBytesReader so decoding fails once the cap is crossed.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				httputil.WriteError(w, dErrors.Newf(dErrors.CodePayloadTooLarge, "request body exceeds %d bytes", maxBytes))
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
