// Package config loads railgraph settings from a .env file, an optional
// YAML config file, and RAILGRAPH_* environment variables, in that order of
// increasing precedence, and validates the result.
package config
