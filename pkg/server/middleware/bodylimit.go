package middleware

import (
	"errors"
	"net/http"

	"aegis-hq/firewall/pkg/server/types"
)

// BodyLimitMiddleware caps request bodies at maxBytes. Requests that declare
// a larger Content-Length are rejected with 413 before the handler runs;
// streamed bodies fail on read with *http.MaxBytesError, which handlers map
// to 413 with IsBodyTooLarge.
//
// Example usage:
//
//	handler = BodyLimitMiddleware(1 << 20)(handler)
func BodyLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > maxBytes {
				TooLarge().Write(w)
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IsBodyTooLarge reports whether err came from reading past the body limit.
func IsBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// TooLarge is the 413 error response.
func TooLarge() *types.ErrorResponse {
	return types.NewErrorResponse("Request body too large", types.ErrorTypeRequestTooLarge, "", types.CodeRequestTooLarge)
}
