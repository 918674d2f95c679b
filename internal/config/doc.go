// Package config loads tailproxy settings from an ini file and supplies the
// defaults used when no file is given. Command line flags are layered on top
// by the caller, so a zero value for a key means "not set here".
package config
