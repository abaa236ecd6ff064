// Package ws is the WebSocket gateway: one connection drives one
// session.Session and receives its events.
package ws

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/osslararemellan/ole/internal/middlewares"
	"github.com/osslararemellan/ole/internal/session"
)

// presenceTTL is refreshed by every pong; a node that dies leaves its keys
// to expire.
const presenceTTL = 5 * time.Minute

func presenceKey(userID uint) string {
	return "presence:" + strconv.FormatUint(uint64(userID), 10)
}

// Hub tracks the connections of this node and the sessions they own.
type Hub struct {
	deps     session.Deps
	sessions *session.Registry
	rdb      *redis.Client
	nodeID   string
	logger   *zap.Logger
	upgrader websocket.Upgrader

	register   chan *Client
	unregister chan *Client
	quit       chan struct{}
	done       chan struct{}
	stopOnce   sync.Once

	mu      sync.RWMutex
	clients map[*Client]struct{}
	perUser map[uint]int
}

func NewHub(deps session.Deps, sessions *session.Registry, nodeID string, logger *zap.Logger) *Hub {
	return &Hub{
		deps:     deps,
		sessions: sessions,
		rdb:      deps.Redis,
		nodeID:   nodeID,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		perUser:    make(map[uint]int),
	}
}

// Run owns registration until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.perUser[c.userID]++
			h.mu.Unlock()
			h.touchPresence(c.userID)

		case c := <-h.unregister:
			h.drop(c)

		case <-h.quit:
			h.mu.Lock()
			all := make([]*Client, 0, len(h.clients))
			for c := range h.clients {
				all = append(all, c)
			}
			h.mu.Unlock()
			for _, c := range all {
				h.drop(c)
			}
			return
		}
	}
}

// drop closes the client's session, which ends its write pump, and clears
// presence when it was the user's last connection here.
func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.perUser[c.userID]--
	last := h.perUser[c.userID] <= 0
	if last {
		delete(h.perUser, c.userID)
	}
	h.mu.Unlock()

	h.sessions.Remove(c.sess.ID())
	c.sess.Close()
	if last && h.rdb != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := h.rdb.Del(ctx, presenceKey(c.userID)).Err(); err != nil {
			h.logger.Warn("clear presence failed", zap.Uint("user_id", c.userID), zap.Error(err))
		}
	}
	h.logger.Debug("client disconnected", zap.Uint("user_id", c.userID), zap.String("session_id", c.sess.ID()))
}

func (h *Hub) touchPresence(userID uint) {
	if h.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.rdb.Set(ctx, presenceKey(userID), h.nodeID, presenceTTL).Err(); err != nil {
		h.logger.Warn("set presence failed", zap.Uint("user_id", userID), zap.Error(err))
	}
}

// Online reports the node a user is connected to, if any.
func (h *Hub) Online(ctx context.Context, userID uint) (string, bool, error) {
	node, err := h.rdb.Get(ctx, presenceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return node, true, nil
}

// Connections counts the clients of this node.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every connection's session and stops Run.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() { close(h.quit) })
	<-h.done
}

// Serve upgrades an authenticated request. The ?chat= parameter is the
// deep link applied when the session opens.
func (h *Hub) Serve(c *gin.Context) {
	userID := middlewares.UserID(c)
	if userID == 0 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	deepLink := c.Query("chat")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Uint("user_id", userID), zap.Error(err))
		return
	}

	sess := session.New(h.deps, userID)
	client := newClient(h, conn, sess)
	select {
	case h.register <- client:
	case <-h.quit:
		sess.Close()
		_ = conn.Close()
		return
	}
	h.sessions.Add(sess)

	if err := client.writeReady(); err != nil {
		h.logger.Debug("ready frame failed", zap.String("session_id", sess.ID()), zap.Error(err))
		client.release()
		return
	}

	go client.writePump()
	go client.readPump()

	// Open after the pumps run so the first snapshots flow straight out.
	if err := sess.Open(client.ctx, deepLink); err != nil {
		h.logger.Debug("session open aborted", zap.String("session_id", sess.ID()), zap.Error(err))
	}
}
