package client

import (
	transport "github.com/thermolab/thermocal/internal/client"
)

// Client is the typed API of the calibration controller. It issues commands
// over HTTP and subscribes to the telemetry stream over a websocket, both on
// the controller's unix socket.
type Client struct {
	*transport.Client
}

// NewClient creates a Client for the controller listening on socketPath.
func NewClient(socketPath string) *Client {
	return &Client{Client: transport.NewClient(socketPath)}
}
