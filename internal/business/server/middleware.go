package server

import (
	"context"
	"net/http"

	"github.com/oapi-codegen/runtime/strictmiddleware/nethttp"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/metadata-collector/internal/serviceerr"
)

// operations that work without a session
var sessionlessOperations = map[string]bool{
	"Root": true,
}

// newSessionMiddleware loads the session of the request into the context of
// the strict handlers. A failed load is answered by the response error
// handler.
func newSessionMiddleware(sessions SessionManager) nethttp.StrictHTTPMiddlewareFunc {
	return func(f nethttp.StrictHTTPHandlerFunc, operationID string) nethttp.StrictHTTPHandlerFunc {
		if sessionlessOperations[operationID] {
			return f
		}

		return func(ctx context.Context, w http.ResponseWriter, r *http.Request, request interface{}) (interface{}, error) {
			s, err := sessions.Get(ctx, r)
			if err != nil {
				return nil, err
			}

			ctx = slogctx.With(ctx, "sessionStage", s.Stage().String())

			return f(contextWithSession(ctx, s), w, r, request)
		}
	}
}

// writeRequestError answers requests whose parameters could not be bound.
func writeRequestError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, serviceerr.ErrMissingParameter.Wrap(err))
}
