package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/herpsync/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   gRPC bind address (e.g. ":50051")
//	-f string   change-feed bind address (e.g. ":8081")
//	-d string   PostgreSQL DSN; empty selects the in-memory store
//	-l string   log level
//	-b int      per-subscriber feed buffer
func parseFlags(config *Config, args []string) error {
	// Filter args to include only the flags handled here.
	args = flagx.FilterArgs(args, []string{"-a", "-f", "-d", "-l", "-b"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run gRPC server")
	fs.StringVar(&config.EndpointAddrFeed, "f", config.EndpointAddrFeed, "address and port to run change feed")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.IntVar(&config.FeedBuffer, "b", config.FeedBuffer, "feed buffer per subscriber")

	return fs.Parse(args)
}
