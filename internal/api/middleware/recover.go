package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

type errorBody struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// Recover turns a panic into a JSON 500 and logs it with the request logger.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				zerolog.Ctx(r.Context()).Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("recovered panic")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(errorBody{
					Error:         "internal_error",
					CorrelationID: GetCorrelationID(r.Context()),
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
