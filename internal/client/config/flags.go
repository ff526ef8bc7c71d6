package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// Flag names shared by the CLI and the JSON overlay.
const (
	FlagConfig        = "config"
	FlagServer        = "server"
	FlagFeedURL       = "feed-url"
	FlagDatabase      = "db"
	FlagOwner         = "owner"
	FlagCheckInterval = "check-interval"
	FlagAutoSync      = "auto-sync"
	FlagTimeout       = "timeout"
	FlagLogFile       = "log-file"
	FlagLogLevel      = "log-level"
)

// Loader binds Config to a flag set and resolves the final values once the
// flags are parsed.
type Loader struct {
	cfg        *Config
	fs         *pflag.FlagSet
	configFile string
}

// NewLoader registers every client flag on fs with defaults taken from
// LoadDefaults.
func NewLoader(fs *pflag.FlagSet) *Loader {
	cfg := &Config{}
	cfg.LoadDefaults()
	l := &Loader{cfg: cfg, fs: fs}

	fs.StringVarP(&l.configFile, FlagConfig, "c", "", "path to JSON config file")
	fs.StringVarP(&cfg.ServerEndpointAddr, FlagServer, "a", cfg.ServerEndpointAddr, "address and port of the backend gRPC endpoint")
	fs.StringVarP(&cfg.FeedURL, FlagFeedURL, "f", cfg.FeedURL, "websocket URL of the change feed")
	fs.StringVarP(&cfg.DatabasePath, FlagDatabase, "d", cfg.DatabasePath, "path to the local database")
	fs.StringVarP(&cfg.OwnerID, FlagOwner, "o", cfg.OwnerID, "owner id of the records")
	fs.DurationVarP(&cfg.OnlineCheckInterval, FlagCheckInterval, "i", cfg.OnlineCheckInterval, "online check interval")
	fs.DurationVarP(&cfg.AutoSyncInterval, FlagAutoSync, "s", cfg.AutoSyncInterval, "auto-sync interval (0 disables)")
	fs.DurationVar(&cfg.RequestTimeout, FlagTimeout, cfg.RequestTimeout, "backend request timeout")
	fs.StringVar(&cfg.LogFile, FlagLogFile, cfg.LogFile, "rotating log file (default stderr)")
	fs.StringVarP(&cfg.LogLevel, FlagLogLevel, "l", cfg.LogLevel, "log level")
	return l
}

// Load overlays the JSON file given with --config, then validates. Flags set
// explicitly on the command line take precedence over the file.
func (l *Loader) Load() (*Config, error) {
	if l.configFile != "" {
		jc, err := readJson(l.configFile)
		if err != nil {
			return nil, err
		}
		jc.apply(l.cfg, l.fs.Changed)
	}
	if err := l.cfg.validate(); err != nil {
		return nil, err
	}
	out := *l.cfg
	return &out, nil
}

func (c *Config) validate() error {
	c.OwnerID = strings.TrimSpace(c.OwnerID)
	if c.OwnerID == "" {
		return fmt.Errorf("owner id must not be empty")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.OnlineCheckInterval <= 0 {
		return fmt.Errorf("online check interval must be positive")
	}
	if c.AutoSyncInterval < 0 {
		return fmt.Errorf("auto-sync interval must not be negative")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	return nil
}
