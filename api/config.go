// Package api provides an HTTP API server for querying and managing stored
// conversation memories.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// UserID is the default user scope for list and search requests that do
	// not specify one.
	UserID string
}
