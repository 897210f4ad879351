// Package api provides HTTP API handlers for the Vingo backend.
package api

// APIVersion represents the current API version supported by this server.
// Clients read it from /status to detect available features.
const (
	// APIVersion1 is the original API version.
	APIVersion1 = 1

	// CurrentAPIVersion is the highest API version supported by this server.
	CurrentAPIVersion = APIVersion1
)

// APICapabilities describes the features available at each API version.
var APICapabilities = map[int][]string{
	APIVersion1: {
		"auth",
		"shops",
		"items",
		"orders",
		"delivery-assignment",
		"realtime",
	},
}

// StatusResponse is the response from the /health and /status endpoints.
type StatusResponse struct {
	Status       string   `json:"status"`
	Service      string   `json:"service"`
	State        string   `json:"state"`
	OnlineUsers  int      `json:"online_users"`
	APIVersion   int      `json:"api_version"`
	Capabilities []string `json:"capabilities,omitempty"`
}
