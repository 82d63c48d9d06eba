package ports

// Gateway is an inbound surface that feeds candidates to the risk engine
type Gateway interface {
	// Start begins serving; it must not block
	Start() error

	// Stop shuts the gateway down, waiting for in-flight requests
	Stop() error
}
