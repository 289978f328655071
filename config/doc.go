// Package config loads the application configuration.
//
// Settings come from, in increasing precedence, built-in defaults, a
// YAML/TOML/JSON file and VECTORIT_* environment variables, where nested
// keys join with underscores (processor.poll_interval becomes
// VECTORIT_PROCESSOR_POLL_INTERVAL). A .env file can be loaded into the
// environment first with LoadDotEnv.
package config
