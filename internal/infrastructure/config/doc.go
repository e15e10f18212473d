// Package config loads womgr.yaml.
//
// Values are layered: built-in defaults, then the file, then WOMGR_*
// environment variables. Load validates the result and reports every
// problem at once.
//
// The file may hold device passwords and the dashboard token, so keep it
// at 0600 or pass those through the environment instead.
package config
