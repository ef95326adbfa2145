// Package env reads individual environment variables where the full
// config.Load cycle is too heavy, such as the PORT override in main.
package env

import "os"

// Get returns the named environment variable, or fallback when it is
// unset or empty.
func Get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
