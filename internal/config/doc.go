// Package config handles configuration loading for standin.
//
// # Configuration File
//
// Locations (first match wins):
//
//  1. --config flag
//  2. Path from the STANDIN_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/standin/standin.yaml
//  4. ~/.config/standin/standin.yaml
//
// A .env file in the working directory is loaded before the config file is
// read; variables already present in the environment are kept.
//
// # Environment Variable Expansion
//
//	auth:
//	  jwt_secret: "${STANDIN_JWT_SECRET}"
//
// # Durations
//
// Durations use time.ParseDuration syntax and fall back to defaults when
// omitted:
//
//	rotation:
//	  offline_timeout: "10s"
//	  delay: "50s"
//	  delay_variation: "20s"
//	  active_time: "12.5s"
//	  active_time_variation: "2.5s"
//
// # Seeding and Reload
//
// The agent and rotation sections seed the store the first time standin
// starts; afterwards the store is authoritative and the HTTP API edits it.
// A Watcher reloads the file on change so that rotation timings edited in
// the file reach the orchestrator for the next episode.
package config
