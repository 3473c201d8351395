package middleware

import (
	"github.com/felixgeelhaar/rpcengine/engine"
)

// Merge joins a list of middleware into a single step. The merged step
// behaves exactly like the list pushed onto the surrounding engine in
// place of it. An empty list yields a step that only defers.
func Merge(m ...engine.Middleware) engine.Middleware {
	return engine.New(engine.WithMiddleware(m...)).AsMiddleware()
}
