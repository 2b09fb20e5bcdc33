// Package config loads the stop board's YAML configuration.
//
// Values missing from the file keep the defaults from Default. The
// result is validated with struct tags before use.
package config
