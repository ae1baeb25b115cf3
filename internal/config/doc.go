// Package config loads the daemon configuration from a JSON file and fills
// unset fields with sensible defaults, so a minimal config file is enough to
// boot a single-node deployment. Paths inside the file are resolved relative
// to the file's own directory.
package config
