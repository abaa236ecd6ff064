package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/osslararemellan/ole/config"
	"github.com/osslararemellan/ole/internal/conversation"
	"github.com/osslararemellan/ole/internal/middlewares"
	"github.com/osslararemellan/ole/internal/realtime"
	"github.com/osslararemellan/ole/internal/repositories"
	"github.com/osslararemellan/ole/internal/services"
	"github.com/osslararemellan/ole/internal/session"
	"github.com/osslararemellan/ole/internal/testutil"
	"github.com/osslararemellan/ole/internal/utils"
	"github.com/osslararemellan/ole/middleware/jwt"
	"github.com/osslararemellan/ole/utils/snowflake"
)

type gateway struct {
	db       *gorm.DB
	hub      *Hub
	sessions *session.Registry
	messages *services.MessageService
	tokens   *jwt.TokenManager
	url      string
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	rdb, _ := testutil.NewRedis(t)
	logger := zap.NewNop()
	pub := realtime.NewRedisPublisher(rdb)
	limits := config.MessagingConfig{MaxMaterials: 3, MaxFiles: 3}

	ids, err := snowflake.NewGenerator(5)
	require.NoError(t, err)
	profiles := repositories.NewProfileRepository(db, rdb)
	files := repositories.NewFileRepository(db)
	blobs := testutil.NewMemoryBlobs()
	groups := services.NewGroupService(repositories.NewGroupRepository(db), profiles, pub, logger)
	messages := services.NewMessageService(services.MessageDeps{
		Messages:  repositories.NewMessageRepository(db),
		Groups:    groups,
		Profiles:  profiles,
		Files:     files,
		Resources: repositories.NewResourceRepository(db),
		Blobs:     blobs,
		IDs:       ids,
		Publisher: pub,
		Limits:    limits,
		Logger:    logger,
	})

	pool := utils.NewWorkerPool(2, 16, logger)
	pool.Start()
	t.Cleanup(pool.Stop)

	sessions := session.NewRegistry()
	hub := NewHub(session.Deps{
		Contacts:     services.NewContactService(messages, repositories.NewContactRepository(db), profiles, logger),
		Groups:       groups,
		Messages:     messages,
		Files:        services.NewFileService(files, blobs, 0, logger),
		Redis:        rdb,
		Pool:         pool,
		MaxMaterials: limits.MaxMaterials,
		MaxFiles:     limits.MaxFiles,
		Logger:       logger,
	}, sessions, "node-a", logger)
	go hub.Run()
	t.Cleanup(hub.Shutdown)

	tokens := jwt.NewTokenManager("ws-secret", 1)
	r := gin.New()
	r.GET("/ws", middlewares.Auth(tokens), hub.Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &gateway{
		db:       db,
		hub:      hub,
		sessions: sessions,
		messages: messages,
		tokens:   tokens,
		url:      "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}
}

func (g *gateway) dial(t *testing.T, userID uint, query string) *websocket.Conn {
	t.Helper()
	token, err := g.tokens.GenerateToken(userID, "user")
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(g.url+"?token="+token+query, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type frame struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	Payload   map[string]any `json:"payload"`
}

// next reads frames until one of type typ arrives.
func next(t *testing.T, conn *websocket.Conn, typ string) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == typ {
			return f
		}
	}
}

func TestGateway_ReadyThenSnapshots(t *testing.T) {
	g := newGateway(t)
	testutil.SeedProfiles(t, g.db, 1, 2)
	_, err := g.messages.Send(context.Background(), 2, conversation.Direct(1), services.SendRequest{Content: "hej"})
	require.NoError(t, err)

	conn := g.dial(t, 1, "&chat=2")
	ready := next(t, conn, "ready")
	require.NotEmpty(t, ready.SessionID)

	s, ok := g.sessions.Lookup(ready.SessionID, 1)
	require.True(t, ok)
	_, ok = g.sessions.Lookup(ready.SessionID, 2)
	assert.False(t, ok)

	history := next(t, conn, "history")
	assert.Equal(t, "user:2", history.Payload["target"])
	assert.Len(t, history.Payload["messages"], 1)
	assert.Equal(t, conversation.Direct(2), s.Active())

	node, online, err := g.hub.Online(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, online)
	assert.Equal(t, "node-a", node)
}

func TestGateway_Commands(t *testing.T) {
	g := newGateway(t)
	testutil.SeedProfiles(t, g.db, 1, 3)
	conn := g.dial(t, 1, "")
	next(t, conn, "ready")

	require.NoError(t, conn.WriteJSON(Command{Type: CmdSelect, Target: "user:3"}))
	next(t, conn, "history")

	require.NoError(t, conn.WriteJSON(Command{Type: CmdDraft, Content: "Tack för tipset!"}))
	composer := next(t, conn, "composer")
	assert.Equal(t, "Tack för tipset!", composer.Payload["draft"])

	require.NoError(t, conn.WriteJSON(Command{Type: CmdSend}))
	sent := next(t, conn, "sent")
	assert.Equal(t, "Tack för tipset!", sent.Payload["content"])

	require.NoError(t, conn.WriteJSON(Command{Type: "dance"}))
	notice := next(t, conn, "notice")
	assert.Equal(t, "Unknown command", notice.Payload["message"])

	require.NoError(t, conn.WriteJSON(Command{Type: CmdSelect, Target: "room:9"}))
	notice = next(t, conn, "notice")
	assert.Equal(t, "Unknown conversation", notice.Payload["message"])
}

func TestGateway_DisconnectClosesSession(t *testing.T) {
	g := newGateway(t)
	testutil.SeedProfiles(t, g.db, 1)
	conn := g.dial(t, 1, "")
	next(t, conn, "ready")
	require.Eventually(t, func() bool { return g.hub.Connections() == 1 }, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return g.hub.Connections() == 0 && g.sessions.Len() == 0
	}, 3*time.Second, 10*time.Millisecond)

	_, online, err := g.hub.Online(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, online)
}

func TestGateway_RequiresToken(t *testing.T) {
	g := newGateway(t)
	_, resp, err := websocket.DefaultDialer.Dial(g.url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}
