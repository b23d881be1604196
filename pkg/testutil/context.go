package testutil

import (
	"net/http"

	"labtrail/pkg/requestcontext"
)

// WithActor attributes the request the way the actor middleware would.
// The middleware keeps this actor when the request carries no actor headers.
func WithActor(req *http.Request, userID, role, name string) *http.Request {
	ctx := requestcontext.WithActor(req.Context(), requestcontext.ActorInfo{
		UserID: userID,
		Role:   role,
		Name:   name,
	})
	return req.WithContext(ctx)
}
