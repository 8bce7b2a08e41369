package model

// -----------------------------------------------------------------
// Monitor API Response Models
// -----------------------------------------------------------------

// MonitorResponse is the main response for the monitor API
type MonitorResponse struct {
	Status      string          `json:"status"`      // "healthy", "idle"
	Connections ConnectionStats `json:"connections"` // Live connection stats
	Dispatch    DispatchStats   `json:"dispatch"`    // AI queue state
	Clients     []ClientInfo    `json:"clients"`     // Online users and their connections
}

// ConnectionStats holds connection-related statistics
type ConnectionStats struct {
	TotalConnections int `json:"totalConnections"` // Live websocket connections
	TotalOnline      int `json:"totalOnline"`      // Users with at least one connection
}

// DispatchStats is a snapshot of the AI dispatch queue
type DispatchStats struct {
	Queued        int `json:"queued"`
	InFlight      int `json:"inFlight"`
	WindowStarts  int `json:"windowStarts"` // requests started in the trailing minute
	MaxConcurrent int `json:"maxConcurrent"`
	RatePerMinute int `json:"ratePerMinute"`
}

// ClientInfo contains information about an online user
type ClientInfo struct {
	UserID        string   `json:"userId"`
	ConnectionIDs []string `json:"connectionIds"`
}
