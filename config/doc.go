// Package config holds the settings of a RakNet peer.
//
// NewOptions returns the defaults; Load overlays a YAML or TOML file on
// them. Durations are written as Go duration strings:
//
//	listen = "0.0.0.0:19132"
//	idle_timeout = "15s"
//	ban_list = "/var/lib/raknetd/bans.sqlite"
//
//	[security]
//	enabled = true
//	require_security = true
package config
