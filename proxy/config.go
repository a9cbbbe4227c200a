package proxy

// Config is the proxy server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// UpstreamURL is the upstream conversational API URL
	// (e.g., "https://api.anthropic.com")
	UpstreamURL string

	// CapturePaths are the request paths whose exchanges are captured.
	// Defaults to the Messages API endpoint.
	CapturePaths []string

	// NumWorkers is the number of background capture workers.
	NumWorkers uint

	// QueueSize is the capacity of the capture job queue.
	QueueSize uint
}
