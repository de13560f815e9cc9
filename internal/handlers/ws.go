package handlers

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/spms-dev/spms/internal/types"
	"github.com/spms-dev/spms/internal/utils"
)

var (
	taskFeedClients   = make(map[*websocket.Conn]bool)
	taskFeedClientsMu sync.RWMutex
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// BroadcastTaskEvent pushes a task lifecycle event to every connected staff
// client.
func BroadcastTaskEvent(action string, taskID uint, status string) {
	taskFeedClientsMu.RLock()
	if len(taskFeedClients) == 0 {
		taskFeedClientsMu.RUnlock()
		return
	}

	// Copy the client set so the lock is not held while sending.
	clientsCopy := make([]*websocket.Conn, 0, len(taskFeedClients))
	for conn := range taskFeedClients {
		clientsCopy = append(clientsCopy, conn)
	}
	taskFeedClientsMu.RUnlock()

	for _, conn := range clientsCopy {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			log.Printf("Failed to set write deadline for broadcast: %v", err)
			continue
		}

		err := conn.WriteJSON(map[string]interface{}{
			"type":    "task_event",
			"action":  action,
			"task_id": taskID,
			"status":  status,
		})

		if err != nil {
			log.Printf("Failed to broadcast task event to client: %v", err)
			taskFeedClientsMu.Lock()
			delete(taskFeedClients, conn)
			taskFeedClientsMu.Unlock()
			conn.Close()
		}
	}
}

// TaskFeed upgrades the connection and streams task lifecycle events to
// staff users until the client disconnects.
func TaskFeed(c *gin.Context) {
	currentUser, err := utils.GetCurrentUser(c)

	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			for _, allowed := range types.AllowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("Failed to set initial read deadline: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("Failed to set read deadline in pong handler: %v", err)
		}
		return nil
	})

	taskFeedClientsMu.Lock()
	taskFeedClients[conn] = true
	taskFeedClientsMu.Unlock()

	defer func() {
		taskFeedClientsMu.Lock()
		delete(taskFeedClients, conn)
		taskFeedClientsMu.Unlock()
		conn.Close()

		log.Printf("Task feed connection closed for user %d", currentUser.ID)
	}()

	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Failed to set write deadline for welcome message: %v", err)
		return
	}

	err = conn.WriteJSON(map[string]string{
		"type":    "connected",
		"message": "Task feed connection established",
	})

	if err != nil {
		log.Printf("Failed to send welcome message: %v", err)
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	go func() {
		for range ticker.C {
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Printf("Failed to set write deadline for user %d: %v", currentUser.ID, err)
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("Ping failed for user %d: %v", currentUser.ID, err)
				return
			}
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("Failed to set read deadline for user %d: %v", currentUser.ID, err)
			break
		}

		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error for user %d: %v", currentUser.ID, err)
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			log.Printf("Received message from user %d: %s", currentUser.ID, string(message))
		case websocket.PongMessage:
			log.Printf("Received pong from user %d", currentUser.ID)
		}
	}
}
