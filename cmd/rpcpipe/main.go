// rpcpipe serves a demo JSON-RPC engine over stdin and stdout.
//
// Each input line is one request, notification or batch; each response is
// written as one output line. Logs go to stderr.
package main

import (
	"fmt"
	"os"
)

// Build-time variables set via ldflags
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
