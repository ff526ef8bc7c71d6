package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/herpsync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "3s" or as integer nanoseconds.
type JsonConfig struct {
	ServerEndpointAddr  string          `json:"server_endpoint_addr"`
	FeedURL             string          `json:"feed_url"`
	DatabasePath        string          `json:"database_path"`
	OwnerID             string          `json:"owner_id"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	AutoSyncInterval    *timex.Duration `json:"auto_sync_interval"`
	RequestTimeout      *timex.Duration `json:"request_timeout"`
	LogFile             string          `json:"log_file"`
	LogLevel            string          `json:"log_level"`
}

// readJson loads the file at path. Absent fields stay nil or empty.
func readJson(path string) (*JsonConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	jc := &JsonConfig{}
	if err := json.Unmarshal(data, jc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return jc, nil
}

// apply copies the fields present in jc into cfg, skipping those for
// which keep reports true.
func (jc *JsonConfig) apply(cfg *Config, keep func(flag string) bool) {
	setString := func(flag string, dst *string, v string) {
		if v != "" && !keep(flag) {
			*dst = v
		}
	}
	setString(FlagServer, &cfg.ServerEndpointAddr, jc.ServerEndpointAddr)
	setString(FlagFeedURL, &cfg.FeedURL, jc.FeedURL)
	setString(FlagDatabase, &cfg.DatabasePath, jc.DatabasePath)
	setString(FlagOwner, &cfg.OwnerID, jc.OwnerID)
	setString(FlagLogFile, &cfg.LogFile, jc.LogFile)
	setString(FlagLogLevel, &cfg.LogLevel, jc.LogLevel)

	if jc.OnlineCheckInterval != nil && !keep(FlagCheckInterval) {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.AutoSyncInterval != nil && !keep(FlagAutoSync) {
		cfg.AutoSyncInterval = jc.AutoSyncInterval.Duration
	}
	if jc.RequestTimeout != nil && !keep(FlagTimeout) {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
}
