// Package config handles configuration for the server component,
// including defaults, JSON overlay, and command-line flags.
package config

// Config holds runtime settings for the herpsync backend.
//
// Fields:
//   - EndpointAddrGRPC: bind address for the sync gRPC endpoint.
//   - EndpointAddrFeed: bind address for the change-feed WebSocket endpoint.
//   - DatabaseDSN: PostgreSQL DSN (pgx). Empty keeps all data in memory.
//   - LogLevel: zap level name (debug, info, warn, error).
//   - FeedBuffer: per-subscriber event buffer of the change feed.
type Config struct {
	EndpointAddrGRPC string
	EndpointAddrFeed string
	DatabaseDSN      string
	LogLevel         string
	FeedBuffer       int
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.EndpointAddrGRPC = ":50051"
	c.EndpointAddrFeed = ":8081"
	c.DatabaseDSN = ""
	c.LogLevel = "info"
	c.FeedBuffer = 64
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
