package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/osslararemellan/ole/internal/conversation"
	"github.com/osslararemellan/ole/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 64 << 10
)

// Command types sent by the page.
const (
	CmdSelect         = "select"
	CmdClear          = "clear"
	CmdRefresh        = "refresh"
	CmdDraft          = "draft"
	CmdLinkMaterial   = "link_material"
	CmdUnlinkMaterial = "unlink_material"
	CmdRemoveFile     = "remove_file"
	CmdSend           = "send"
)

// Command is one client frame. Fields other than Type depend on it.
type Command struct {
	Type       string `json:"type"`
	Target     string `json:"target,omitempty"`
	Content    string `json:"content,omitempty"`
	ResourceID uint   `json:"resource_id,omitempty"`
	FileID     uint   `json:"file_id,omitempty"`
}

type readyFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// Client is one WebSocket connection. readPump is the only reader and
// writePump the only writer once they start.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	sess   *session.Session
	userID uint
	logger *zap.Logger

	// ctx bounds the commands of this connection.
	ctx    context.Context
	cancel context.CancelFunc
}

func newClient(h *Hub, conn *websocket.Conn, sess *session.Session) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:    h,
		conn:   conn,
		sess:   sess,
		userID: sess.UserID(),
		logger: h.logger.With(zap.String("session_id", sess.ID()), zap.Uint("user_id", sess.UserID())),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *Client) writeReady() error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(readyFrame{Type: "ready", SessionID: c.sess.ID()})
}

// release hands the client back to the hub, which closes its session.
func (c *Client) release() {
	c.cancel()
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
	_ = c.conn.Close()
}

func (c *Client) readPump() {
	defer c.release()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.hub.touchPresence(c.userID)
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Info("websocket closed unexpectedly", zap.Error(err))
			}
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.logger.Debug("malformed command", zap.Error(err))
			c.sess.Notice("Malformed command")
			continue
		}
		c.dispatch(cmd)
	}
}

// dispatch runs one command. Failures already reach the page as notices.
func (c *Client) dispatch(cmd Command) {
	s := c.sess
	switch cmd.Type {
	case CmdSelect:
		t, err := conversation.ParseTarget(cmd.Target)
		if err != nil {
			s.Notice("Unknown conversation")
			return
		}
		_ = s.Select(c.ctx, t)
	case CmdClear:
		s.Clear()
	case CmdRefresh:
		_ = s.Refresh(c.ctx)
	case CmdDraft:
		s.UpdateComposer(func(cm *session.Composer) { cm.SetDraft(cmd.Content) })
	case CmdLinkMaterial:
		s.UpdateComposer(func(cm *session.Composer) {
			if !cm.LinkMaterial(cmd.ResourceID) {
				s.Notice("That material cannot be linked")
			}
		})
	case CmdUnlinkMaterial:
		s.UpdateComposer(func(cm *session.Composer) { cm.UnlinkMaterial(cmd.ResourceID) })
	case CmdRemoveFile:
		s.UpdateComposer(func(cm *session.Composer) { cm.RemoveFile(cmd.FileID) })
	case CmdSend:
		_, _ = s.Send(c.ctx)
	default:
		c.logger.Debug("unknown command", zap.String("type", cmd.Type))
		s.Notice("Unknown command")
	}
}

// writePump forwards session events until the session closes.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	events := c.sess.Events()
	for {
		select {
		case ev, ok := <-events:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
