package websocket

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"fuel-monitor/internal/models"

	"github.com/gorilla/websocket"
)

var errManagerStopped = errors.New("websocket manager stopped")

const (
	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second
	writeWait    = 10 * time.Second
	staleAfter   = 90 * time.Second
	healthPeriod = 30 * time.Second
)

// Manager owns all client connections. Membership and broadcasts are handled
// by a single run loop; the mutex only guards reads from other goroutines.
type Manager struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan models.Snapshot
	mutex      sync.RWMutex
	upgrader   websocket.Upgrader
	done       chan struct{}
	stopOnce   sync.Once
	stopped    chan struct{}

	latest  *models.Snapshot
	actions AlertActions
}

func NewManager() *Manager {
	return &Manager{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan models.Snapshot, 64),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// origins are enforced by the CORS middleware
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// SetAlertActions enables mark_read commands from clients.
func (m *Manager) SetAlertActions(actions AlertActions) {
	m.actions = actions
}

func (m *Manager) Start() error {
	go m.run()
	log.Println("WebSocket manager started")
	return nil
}

// Stop closes every client and waits for the run loop to exit.
func (m *Manager) Stop() error {
	m.stopOnce.Do(func() {
		close(m.done)
		<-m.stopped
		log.Println("WebSocket manager stopped")
	})
	return nil
}

func (m *Manager) run() {
	defer close(m.stopped)

	ticker := time.NewTicker(healthPeriod)
	defer ticker.Stop()

	for {
		select {
		case client := <-m.register:
			m.mutex.Lock()
			m.clients[client.ID] = client
			latest := m.latest
			m.mutex.Unlock()
			if latest != nil {
				deliver(client, Frame{Type: MessageTypeAlerts, Data: *latest})
			}
			log.Printf("Client %s registered", client.ID)
			go m.handleClient(client)

		case client := <-m.unregister:
			m.remove(client)

		case snapshot := <-m.broadcast:
			m.publish(snapshot)

		case <-ticker.C:
			m.healthCheck()

		case <-m.done:
			m.mutex.Lock()
			for id, client := range m.clients {
				delete(m.clients, id)
				close(client.Send)
			}
			m.mutex.Unlock()
			return
		}
	}
}

// RegisterClient hands the connection to the manager. The client first
// receives the latest known snapshot.
func (m *Manager) RegisterClient(clientID string, conn *websocket.Conn) error {
	client := &Client{
		ID:       clientID,
		Conn:     conn,
		Send:     make(chan Frame, 1),
		LastPing: time.Now(),
		IsActive: true,
	}

	select {
	case m.register <- client:
		return nil
	case <-m.done:
		return errManagerStopped
	}
}

func (m *Manager) UnregisterClient(clientID string) error {
	m.mutex.RLock()
	client, exists := m.clients[clientID]
	m.mutex.RUnlock()

	if exists {
		m.requestUnregister(client)
	}
	return nil
}

func (m *Manager) requestUnregister(client *Client) {
	select {
	case m.unregister <- client:
	case <-m.done:
	}
}

// BroadcastSnapshot queues a snapshot for every client. Older snapshots are
// never sent after newer ones.
func (m *Manager) BroadcastSnapshot(snapshot models.Snapshot) {
	select {
	case m.broadcast <- snapshot:
	case <-m.done:
	}
}

// Follow forwards snapshots from a feed until it closes or ctx is done.
func (m *Manager) Follow(ctx context.Context, snapshots <-chan models.Snapshot) {
	for {
		select {
		case snapshot, ok := <-snapshots:
			if !ok {
				return
			}
			m.BroadcastSnapshot(snapshot)
		case <-ctx.Done():
			return
		case <-m.done:
			return
		}
	}
}

func (m *Manager) GetConnectedClients() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients)
}

func (m *Manager) GetClientStats() ClientStats {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	stats := ClientStats{TotalClients: len(m.clients)}
	if m.latest != nil {
		stats.LatestVersion = m.latest.Version
	}
	for _, client := range m.clients {
		if client.IsActive {
			stats.ActiveClients++
		} else {
			stats.InactiveClients++
		}
	}
	return stats
}

// GetUpgrader returns the WebSocket upgrader for external use
func (m *Manager) GetUpgrader() *websocket.Upgrader {
	return &m.upgrader
}

func (m *Manager) publish(snapshot models.Snapshot) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.latest != nil && snapshot.Version <= m.latest.Version {
		return
	}
	m.latest = &snapshot

	frame := Frame{Type: MessageTypeAlerts, Data: snapshot}
	for _, client := range m.clients {
		client.IsActive = deliver(client, frame)
	}
}

// deliver puts frame in the client's one-slot mailbox, replacing a frame the
// writer has not picked up yet. It reports false when the client lagged.
func deliver(client *Client, frame Frame) bool {
	select {
	case client.Send <- frame:
		return true
	default:
	}
	select {
	case <-client.Send:
	default:
	}
	select {
	case client.Send <- frame:
	default:
	}
	return false
}

func (m *Manager) remove(client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if current, ok := m.clients[client.ID]; ok && current == client {
		delete(m.clients, client.ID)
		close(client.Send)
		log.Printf("Client %s unregistered", client.ID)
	}
}

func (m *Manager) handleClient(client *Client) {
	defer m.requestUnregister(client)

	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		m.mutex.Lock()
		client.LastPing = time.Now()
		m.mutex.Unlock()
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go m.writeMessages(client)

	for {
		var cmd Command
		if err := client.Conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error for client %s: %v", client.ID, err)
			}
			return
		}
		m.handleCommand(client, cmd)
	}
}

func (m *Manager) handleCommand(client *Client, cmd Command) {
	switch cmd.Type {
	case MessageTypePing:
		m.reply(client, Frame{Type: MessageTypePong})
	case MessageTypeMarkRead:
		if m.actions == nil {
			m.reply(client, Frame{Type: MessageTypeError, Error: "mark_read is not available"})
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		// success is visible through the next snapshot
		if _, err := m.actions.MarkAsRead(ctx, cmd.ID); err != nil {
			m.reply(client, Frame{Type: MessageTypeError, Error: err.Error()})
		}
	default:
		m.reply(client, Frame{Type: MessageTypeError, Error: "unknown message type " + cmd.Type})
	}
}

// reply writes directly from the read loop; gorilla allows one concurrent
// writer, so it shares writeMu with writeMessages.
func (m *Manager) reply(client *Client, frame Frame) {
	client.writeMu.Lock()
	defer client.writeMu.Unlock()
	client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := client.Conn.WriteJSON(frame); err != nil {
		log.Printf("Error writing reply to client %s: %v", client.ID, err)
	}
}

func (m *Manager) writeMessages(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-client.Send:
			client.writeMu.Lock()
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				client.writeMu.Unlock()
				return
			}
			err := client.Conn.WriteJSON(frame)
			client.writeMu.Unlock()
			if err != nil {
				log.Printf("Error writing message to client %s: %v", client.ID, err)
				return
			}

		case <-ticker.C:
			client.writeMu.Lock()
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := client.Conn.WriteMessage(websocket.PingMessage, nil)
			client.writeMu.Unlock()
			if err != nil {
				log.Printf("Error sending ping to client %s: %v", client.ID, err)
				return
			}
		}
	}
}

// healthCheck drops clients that stopped answering pings.
func (m *Manager) healthCheck() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := time.Now()
	for clientID, client := range m.clients {
		if now.Sub(client.LastPing) > staleAfter {
			log.Printf("Client %s timed out, removing", clientID)
			delete(m.clients, clientID)
			close(client.Send)
		}
	}
}
