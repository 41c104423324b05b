package handlers

import (
	"log"
	"net/http"

	"fuel-monitor/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WebSocketHandler streams alert snapshots to connected clients
type WebSocketHandler struct {
	manager *websocket.Manager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(manager *websocket.Manager) *WebSocketHandler {
	return &WebSocketHandler{
		manager: manager,
	}
}

// HandleWebSocket upgrades the connection; the client first receives the
// current alert snapshot, then every later one.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	clientID := uuid.New().String()

	conn, err := h.manager.GetUpgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		log.Printf("Failed to upgrade connection to WebSocket: %v", err)
		return
	}

	if err := h.manager.RegisterClient(clientID, conn); err != nil {
		log.Printf("Failed to register WebSocket client: %v", err)
		conn.Close()
		return
	}

	log.Printf("WebSocket client %s connected", clientID)
}

// GetConnectedClients returns the number of connected WebSocket clients
func (h *WebSocketHandler) GetConnectedClients(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connectedClients": h.manager.GetConnectedClients(),
		"stats":            h.manager.GetClientStats(),
	})
}

// DisconnectClient drops a client by id
func (h *WebSocketHandler) DisconnectClient(c *gin.Context) {
	clientID := c.Param("clientId")
	if clientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Client ID is required"})
		return
	}

	if err := h.manager.UnregisterClient(clientID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to disconnect client"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Client disconnected successfully"})
}
