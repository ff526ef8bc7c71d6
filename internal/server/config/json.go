package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/herpsync/internal/flagx"
)

// JsonConfig is the on-disk form of Config. Absent fields keep their
// defaults.
type JsonConfig struct {
	EndpointAddrGRPC string `json:"endpoint_addr_grpc"`
	EndpointAddrFeed string `json:"endpoint_addr_feed"`
	DatabaseDSN      string `json:"database_dsn"`
	LogLevel         string `json:"log_level"`
	FeedBuffer       int    `json:"feed_buffer"`
}

// parseJson overlays the file named by -c/-config, if any.
func parseJson(config *Config, args []string) error {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags(args)

	// nothing to load
	if jsonConfigFile == "" {
		return nil
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config %s: %w", jsonConfigFile, err)
	}

	if c.EndpointAddrGRPC != "" {
		config.EndpointAddrGRPC = c.EndpointAddrGRPC
	}
	if c.EndpointAddrFeed != "" {
		config.EndpointAddrFeed = c.EndpointAddrFeed
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.LogLevel != "" {
		config.LogLevel = c.LogLevel
	}
	if c.FeedBuffer > 0 {
		config.FeedBuffer = c.FeedBuffer
	}
	return nil
}
