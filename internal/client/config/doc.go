// Package config loads runtime configuration for the marksync CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c/--config.
//  3. A .env file in the working directory, then MARKSYNC_* environment
//     variables.
//  4. Command-line flags that were set explicitly.
//
// The result is validated before use.
//
// # JSON schema
//
// Intervals use timex.Duration, so "30s" and integer nanoseconds both work:
//
//	{
//	  "server_url": "https://bookmarks.example.com/api",
//	  "database_path": "~/.local/share/marksync/marksync.db",
//	  "online_check_interval": "30s",
//	  "media_backend": "s3",
//	  "s3": {"bucket": "media", "region": "eu-central-1"}
//	}
package config
