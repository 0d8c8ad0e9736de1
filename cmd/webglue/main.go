// Command webglue serves the demo application, generates Go stubs from a running
// server and connects to it from the terminal.
package main

import (
	"fmt"
	"os"

	"github.com/go-kit/log"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "webglue",
		Short: "Discovery based calls and events between browser and Go server",
		Long: `webglue serves Go functions and events to browser clients over one websocket.

The callable surface is discovered by the client when it connects, so neither
side needs generated code. The gen command can still generate typed Go stubs
from a running server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		serveCmd(),
		genCmd(),
		clientCmd(),
		versionCmd(),
	)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newLogger(format string) log.Logger {
	w := log.NewSyncWriter(os.Stderr)
	if format == "json" {
		return log.NewJSONLogger(w)
	}
	return log.NewLogfmtLogger(w)
}
