package domain

import "time"

// ReadyState mirrors the lifecycle of one pooled channel.
type ReadyState string

const (
	ReadyStateConnecting ReadyState = "connecting"
	ReadyStateOpen       ReadyState = "open"
	ReadyStateClosing    ReadyState = "closing"
	ReadyStateClosed     ReadyState = "closed"
)

// ConnectionInfo is a point-in-time view of one registry connection.
type ConnectionInfo struct {
	ID                   string        `json:"id"`
	URL                  string        `json:"url"`
	CreatedAt            time.Time     `json:"createdAt"`
	LastActivity         time.Time     `json:"lastActivity"`
	IsActive             bool          `json:"isActive"`
	ReconnectAttempts    int           `json:"reconnectAttempts"`
	MaxReconnectAttempts int           `json:"maxReconnectAttempts"`
	ReconnectInterval    time.Duration `json:"reconnectInterval"`
	ReadyState           ReadyState    `json:"readyState"`
}

// RegistryStats summarizes the connection pool.
type RegistryStats struct {
	Total          int `json:"total"`
	Active         int `json:"active"`
	Inactive       int `json:"inactive"`
	Reconnecting   int `json:"reconnecting"`
	MaxConnections int `json:"maxConnections"`
}
