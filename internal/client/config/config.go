package config

import "time"

// Config holds runtime settings for the herpsync client.
//
// Fields:
//   - ServerEndpointAddr: host:port of the backend gRPC endpoint.
//   - FeedURL: websocket URL of the backend change feed.
//   - DatabasePath: location of the local SQLite database.
//   - OwnerID: identity whose records this client reads and writes.
//   - OnlineCheckInterval: how often the daemon probes server reachability.
//   - AutoSyncInterval: period of background syncs; zero disables them.
//   - RequestTimeout: upper bound for a single backend call.
//   - LogFile: rotating log file of the daemon; empty logs to stderr.
//   - LogLevel: slog level name (debug, info, warn, error).
type Config struct {
	ServerEndpointAddr  string
	FeedURL             string
	DatabasePath        string
	OwnerID             string
	OnlineCheckInterval time.Duration
	AutoSyncInterval    time.Duration
	RequestTimeout      time.Duration
	LogFile             string
	LogLevel            string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.FeedURL = "ws://127.0.0.1:8081/feed"
	c.DatabasePath = "data/herpsync.db"
	c.OwnerID = "local"
	c.OnlineCheckInterval = 3 * time.Second
	c.AutoSyncInterval = 5 * time.Minute
	c.RequestTimeout = 10 * time.Second
	c.LogFile = ""
	c.LogLevel = "info"
}

// DSN returns the SQLite connection string for DatabasePath.
func (c *Config) DSN() string {
	return "file:" + c.DatabasePath
}
