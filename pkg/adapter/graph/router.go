package graph

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/knowbot/pkg/interfaces"
	"github.com/m-mizutani/knowbot/pkg/model"
)

// PlaygroundPrefix starts every fake user id issued by Agent Playground.
const PlaygroundPrefix = "00000000-0000-0000-0000-"

// Router sends playground ids to the mock directory and every other id to
// the real one. A real id never reaches the mock.
type Router struct {
	live interfaces.Directory
	mock interfaces.Directory
}

// NewRouter accepts nil for either directory; lookups routed to a missing
// directory fail.
func NewRouter(live, mock interfaces.Directory) *Router {
	return &Router{live: live, mock: mock}
}

func IsPlaygroundID(userID string) bool {
	return strings.HasPrefix(userID, PlaygroundPrefix)
}

func (r *Router) GetUser(ctx context.Context, userID string) (*model.UserInfo, error) {
	if IsPlaygroundID(userID) {
		if r.mock == nil {
			return nil, goerr.Wrap(model.ErrIdentity, "test mode is not configured", goerr.V("user_id", userID))
		}
		return r.mock.GetUser(ctx, userID)
	}

	if r.live == nil {
		return nil, goerr.Wrap(model.ErrIdentity, "graph client is not configured", goerr.V("user_id", userID))
	}
	return r.live.GetUser(ctx, userID)
}
