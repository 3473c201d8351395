// Package transport serves JSON-RPC engines over byte streams.
//
// # Stdio Transport
//
// The stdio transport reads newline-delimited JSON from stdin and writes
// replies to stdout, suitable for local tools and pipelines:
//
//	e := engine.New(engine.WithMiddleware(stack...))
//	t := transport.NewStdio()
//	err := t.Serve(ctx, e)
//
// Each line may hold a single message or a batch. Lines are handled
// concurrently; when input ends or ctx is canceled, Serve stops reading
// and waits for in-flight lines to be answered, bounded by
// ShutdownConfig.Timeout.
//
// # Handler Interface
//
// Transports expect a Handler that maps an encoded message to an encoded
// reply. *engine.Engine implements it:
//
//	type Handler interface {
//	    HandleMessage(ctx context.Context, data []byte) ([]byte, error)
//	}
//
// # Notifications
//
// Middleware reached through a transport can push notifications to the
// peer with the sender stored in their context:
//
//	if s := transport.NotificationSenderFromContext(ctx); s != nil {
//	    _ = s.SendNotification("progress", map[string]int{"done": 3})
//	}
package transport
