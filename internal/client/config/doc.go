// Package config loads runtime configuration for the herpsync client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with --config/-c.
//  3. Command-line flags set explicitly, which override earlier values.
//
// Supported flags
//
//	-a, --server          address:port of the backend gRPC endpoint
//	-f, --feed-url        websocket URL of the change feed
//	-d, --db              local database path
//	-o, --owner           owner id
//	-i, --check-interval  online status check interval
//	-s, --auto-sync       background sync interval, 0 disables
//	    --timeout         backend request timeout
//	    --log-file        rotating log file of the daemon
//	-l, --log-level       log level
//
// # JSON schema
//
// Durations use timex.Duration, so values can be either strings like "3s"
// or integer nanoseconds:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "feed_url": "ws://127.0.0.1:8081/feed",
//	  "database_path": "data/herpsync.db",
//	  "owner_id": "breeder-1",
//	  "online_check_interval": "3s",
//	  "auto_sync_interval": "5m"
//	}
package config
