package server

import (
	"context"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/metadata-collector/internal/openapi"
	"github.com/openkcm/metadata-collector/internal/session"
)

// openAPIServer is an implementation of the OpenAPI interface. The session
// of the request is loaded by the session middleware.
type openAPIServer struct {
	sessions  SessionManager
	flow      Authorizer
	collector Collector
}

// Ensure openAPIServer implements [openapi.StrictServerInterface]
var _ openapi.StrictServerInterface = (*openAPIServer)(nil)

// newOpenAPIServer creates a new implementation of the openapi.StrictServerInterface.
func newOpenAPIServer(deps Dependencies) *openAPIServer {
	return &openAPIServer{
		sessions:  deps.Sessions,
		flow:      deps.Flow,
		collector: deps.Collector,
	}
}

// Root implements openapi.StrictServerInterface.
func (s *openAPIServer) Root(_ context.Context, _ openapi.RootRequestObject) (openapi.RootResponseObject, error) {
	return openapi.Root200TextResponse(welcomeText), nil
}

// Login implements openapi.StrictServerInterface.
func (s *openAPIServer) Login(ctx context.Context, _ openapi.LoginRequestObject) (openapi.LoginResponseObject, error) {
	slogctx.Debug(ctx, "Login() called")
	defer slogctx.Debug(ctx, "Login() completed")

	sess, err := sessionFromContext(ctx)
	if err != nil {
		body, status := toErrorText(ctx, err)
		return openapi.LogindefaultTextResponse{Body: body, StatusCode: status}, nil
	}

	uri, err := s.flow.AuthURI(ctx, sess)
	if err != nil {
		body, status := toErrorText(ctx, err)
		return openapi.LogindefaultTextResponse{Body: body, StatusCode: status}, nil
	}

	if err := s.saveSession(ctx, sess); err != nil {
		body, status := toErrorText(ctx, err)
		return openapi.LogindefaultTextResponse{Body: body, StatusCode: status}, nil
	}

	return openapi.Login302Response{
		Headers: openapi.Login302ResponseHeaders{
			Location: uri,
		},
	}, nil
}

// Callback implements openapi.StrictServerInterface.
func (s *openAPIServer) Callback(ctx context.Context, req openapi.CallbackRequestObject) (openapi.CallbackResponseObject, error) {
	slogctx.Debug(ctx, "Callback() called")
	defer slogctx.Debug(ctx, "Callback() completed")

	sess, err := sessionFromContext(ctx)
	if err != nil {
		body, status := toErrorText(ctx, err)
		return openapi.CallbackdefaultTextResponse{Body: body, StatusCode: status}, nil
	}

	var code string
	if req.Params.Code != nil {
		code = *req.Params.Code
	}

	if err := s.flow.Exchange(ctx, sess, code); err != nil {
		body, status := toErrorText(ctx, err)
		return openapi.CallbackdefaultTextResponse{Body: body, StatusCode: status}, nil
	}

	if err := s.saveSession(ctx, sess); err != nil {
		body, status := toErrorText(ctx, err)
		return openapi.CallbackdefaultTextResponse{Body: body, StatusCode: status}, nil
	}

	return openapi.Callback200TextResponse(flowCompleteText), nil
}

// StoreMetadata implements openapi.StrictServerInterface.
func (s *openAPIServer) StoreMetadata(ctx context.Context, _ openapi.StoreMetadataRequestObject) (openapi.StoreMetadataResponseObject, error) {
	slogctx.Debug(ctx, "StoreMetadata() called")
	defer slogctx.Debug(ctx, "StoreMetadata() completed")

	sess, err := sessionFromContext(ctx)
	if err != nil {
		body, status := toErrorText(ctx, err)
		return openapi.StoreMetadatadefaultTextResponse{Body: body, StatusCode: status}, nil
	}

	if err := s.collector.Collect(ctx, *sess); err != nil {
		body, status := toErrorText(ctx, err)
		return openapi.StoreMetadatadefaultTextResponse{Body: body, StatusCode: status}, nil
	}

	return openapi.StoreMetadata200TextResponse(metadataStoredText), nil
}

// saveSession persists sess and sets its cookie on the response writer of
// the request.
func (s *openAPIServer) saveSession(ctx context.Context, sess *session.Session) error {
	rw, err := responseWriterFromContext(ctx)
	if err != nil {
		return err
	}

	return s.sessions.Save(ctx, rw, sess)
}
