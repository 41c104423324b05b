package websocket

import (
	"context"
	"sync"
	"time"

	"fuel-monitor/internal/models"

	"github.com/gorilla/websocket"
)

// Frame is the envelope of every message written to a client.
type Frame struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Command is a message read from a client.
type Command struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID       string
	Conn     *websocket.Conn
	Send     chan Frame
	LastPing time.Time
	IsActive bool

	writeMu sync.Mutex
}

// AlertActions lets clients act on alerts over the socket.
type AlertActions interface {
	MarkAsRead(ctx context.Context, id string) (models.Alert, error)
}

// WebSocketManager fans alert snapshots out to connected clients.
type WebSocketManager interface {
	RegisterClient(clientID string, conn *websocket.Conn) error
	UnregisterClient(clientID string) error
	BroadcastSnapshot(snapshot models.Snapshot)
	Follow(ctx context.Context, snapshots <-chan models.Snapshot)
	GetConnectedClients() int
	Start() error
	Stop() error
	GetClientStats() ClientStats
}

// ClientStats provides statistics about connected clients
type ClientStats struct {
	TotalClients    int    `json:"totalClients"`
	ActiveClients   int    `json:"activeClients"`
	InactiveClients int    `json:"inactiveClients"`
	LatestVersion   uint64 `json:"latestVersion"`
}

// Message types for WebSocket communication
const (
	MessageTypeAlerts   = "alerts"
	MessageTypeMarkRead = "mark_read"
	MessageTypePing     = "ping"
	MessageTypePong     = "pong"
	MessageTypeError    = "error"
)
