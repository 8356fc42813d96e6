// Package main implements tutorctl, a CLI for the tutorrag HTTP server.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:9090"

var version = "dev"

// options are the persistent flags shared by every command.
type options struct {
	server string
	json   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "tutorctl",
		Short: "CLI for tutorrag server operations",
		Long: `tutorctl talks to the tutorrag HTTP server.
It uploads documents, queries retrieval and previews chunking locally.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	server := os.Getenv("TUTORRAG_SERVER")
	if server == "" {
		server = defaultServer
	}
	root.PersistentFlags().StringVar(&opts.server, "server", server, "tutorrag server URL (env TUTORRAG_SERVER)")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print raw JSON responses")

	root.AddCommand(
		newChunkCmd(opts),
		newIngestCmd(opts),
		newRetrieveCmd(opts),
		newHealthCmd(opts),
	)
	return root
}
