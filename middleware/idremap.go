package middleware

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/rpcengine/engine"
	"github.com/felixgeelhaar/rpcengine/protocol"
)

// IDRemap returns middleware that replaces the request and response id with
// a fresh unique id for the rest of the stack, and restores the original id
// on the way back up. Notifications pass through unchanged.
//
// It lets requests from several sources share one downstream id space.
func IDRemap() engine.Middleware {
	return IDRemapWithGenerator(uuid.NewString)
}

// IDRemapWithGenerator returns IDRemap using a custom id generator. Generated
// ids are sent as JSON strings.
func IDRemapWithGenerator(generator func() string) engine.Middleware {
	return func(ctx context.Context, req *protocol.Request, res *engine.PendingResponse, next engine.Next, end engine.End) error {
		if req.IsNotification() {
			next(nil)
			return nil
		}

		original := req.ID
		id := json.RawMessage(strconv.Quote(generator()))
		req.ID = id
		res.ID = id

		next(func(ctx context.Context) error {
			req.ID = original
			res.ID = original
			return nil
		})
		return nil
	}
}
