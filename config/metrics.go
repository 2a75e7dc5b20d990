package config

// Metrics configures the prometheus endpoint.
type Metrics struct {
	Enabled       bool
	ListenAddress string
}
