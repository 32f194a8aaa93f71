package api

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"commchat/internal/credstore"
	"commchat/internal/model"
	"commchat/internal/token"
)

type testBackend struct {
	client *Client
	tokens *token.Store
	creds  *credstore.Store
	router *gin.Engine
	server *httptest.Server
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	gin.SetMode(gin.TestMode)

	b := &testBackend{
		tokens: token.NewStore(),
		creds:  credstore.New(t.TempDir()),
		router: gin.New(),
	}
	b.server = httptest.NewServer(b.router)
	t.Cleanup(b.server.Close)

	b.client = NewClient(b.server.URL, 5*time.Second, b.tokens, b.creds)
	return b
}

func TestClient_AttachesBearerFromMemory(t *testing.T) {
	b := newTestBackend(t)
	b.tokens.Set("mem-token")

	var got string
	b.router.GET("/auth/me", func(c *gin.Context) {
		got = c.GetHeader("Authorization")
		c.JSON(200, gin.H{"id": "u1", "name": "Ann", "email": "a@example.com"})
	})

	user, err := b.client.Me(context.Background())
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if got != "Bearer mem-token" {
		t.Fatalf("expected bearer header from memory, got %q", got)
	}
	if user.ID != "u1" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestClient_FallsBackToDurableToken(t *testing.T) {
	b := newTestBackend(t)
	if err := b.creds.Save("durable-token"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var got string
	b.router.GET("/users", func(c *gin.Context) {
		got = c.GetHeader("Authorization")
		c.JSON(200, []gin.H{})
	})

	if _, err := b.client.Users(context.Background()); err != nil {
		t.Fatalf("Users: %v", err)
	}
	if got != "Bearer durable-token" {
		t.Fatalf("expected bearer header from durable store, got %q", got)
	}
}

func TestClient_NoTokenProceedsUnauthenticated(t *testing.T) {
	b := newTestBackend(t)

	var got string
	var present bool
	b.router.GET("/channels", func(c *gin.Context) {
		got = c.GetHeader("Authorization")
		_, present = c.Request.Header["Authorization"]
		c.JSON(200, []gin.H{})
	})

	if _, err := b.client.MyChannels(context.Background()); err != nil {
		t.Fatalf("MyChannels: %v", err)
	}
	if present || got != "" {
		t.Fatalf("expected no Authorization header, got %q", got)
	}
}

func TestClient_UnauthorizedPurgesToken(t *testing.T) {
	b := newTestBackend(t)
	b.tokens.Set("stale")
	if err := b.creds.Save("stale"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	b.router.GET("/channels", func(c *gin.Context) {
		c.JSON(401, gin.H{"error": "Invalid authentication token"})
	})

	_, err := b.client.MyChannels(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 401 {
		t.Fatalf("expected 401 APIError, got %v", err)
	}

	if _, ok := b.tokens.Get(); ok {
		t.Fatal("expected token store cleared after 401")
	}
	if _, err := b.creds.Load(); !errors.Is(err, credstore.ErrNotFound) {
		t.Fatalf("expected durable token deleted after 401, got %v", err)
	}
}

func TestClient_OtherErrorsLeaveTokenAlone(t *testing.T) {
	b := newTestBackend(t)
	b.tokens.Set("valid")

	b.router.GET("/channels", func(c *gin.Context) {
		c.JSON(500, gin.H{"error": "boom"})
	})

	_, err := b.client.MyChannels(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 500 {
		t.Fatalf("expected 500 APIError, got %v", err)
	}
	if apiErr.Message != "boom" {
		t.Fatalf("expected error body surfaced, got %q", apiErr.Message)
	}
	if tok, ok := b.tokens.Get(); !ok || tok != "valid" {
		t.Fatal("expected token untouched on non-401 failure")
	}
}

func TestClient_AuthTokenAliases(t *testing.T) {
	cases := []struct {
		name string
		body gin.H
	}{
		{"token", gin.H{"token": "t1", "user": gin.H{"id": "u1"}}},
		{"accessToken", gin.H{"accessToken": "t1"}},
		{"jwt", gin.H{"jwt": "t1"}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b := newTestBackend(t)
			body := c.body
			b.router.POST("/auth/google", func(gc *gin.Context) {
				gc.JSON(200, body)
			})

			res, err := b.client.GoogleLogin(context.Background(), "id-token")
			if err != nil {
				t.Fatalf("GoogleLogin: %v", err)
			}
			if res.Token != "t1" {
				t.Fatalf("expected token t1, got %q", res.Token)
			}
		})
	}
}

func TestClient_AuthResponseWithoutToken(t *testing.T) {
	b := newTestBackend(t)
	b.router.POST("/auth/community/login", func(c *gin.Context) {
		c.JSON(200, gin.H{"user": gin.H{"id": "u1"}})
	})

	_, err := b.client.CommunityLogin(context.Background(), "code", "a@example.com")
	if !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}

func TestClient_HistoryRoutesByRoomKind(t *testing.T) {
	b := newTestBackend(t)

	b.router.GET("/messages", func(c *gin.Context) {
		if c.Query("channelId") != "channel-42" {
			c.JSON(400, gin.H{"error": "missing channelId"})
			return
		}
		c.JSON(200, []gin.H{{"id": "m1", "senderId": "u1", "content": "hi"}})
	})
	b.router.GET("/messages/direct/:userId", func(c *gin.Context) {
		c.JSON(200, []gin.H{{"id": "d1", "from": "u9", "body": "yo", "ts": 5}})
	})

	ctx := context.Background()

	msgs, err := b.client.History(ctx, model.ChannelRoom("channel-42"))
	if err != nil {
		t.Fatalf("History channel: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Fatalf("unexpected channel history: %+v", msgs)
	}

	msgs, err = b.client.History(ctx, model.DirectRoom("u9"))
	if err != nil {
		t.Fatalf("History direct: %v", err)
	}
	if len(msgs) != 1 || msgs[0].SenderID != "u9" || msgs[0].Content != "yo" {
		t.Fatalf("alias fields not decoded: %+v", msgs)
	}
}

func TestClient_SendRoutesByRoomKind(t *testing.T) {
	b := newTestBackend(t)

	b.router.POST("/messages", func(c *gin.Context) {
		var body struct {
			ChannelID string `json:"channelId"`
			Content   string `json:"content"`
		}
		if err := c.BindJSON(&body); err != nil || body.ChannelID != "channel-42" {
			c.JSON(400, gin.H{"error": "bad request"})
			return
		}
		c.JSON(200, gin.H{"id": "m5", "senderId": "me", "content": body.Content})
	})
	b.router.POST("/messages/direct/:userId", func(c *gin.Context) {
		var body struct {
			Content string `json:"content"`
		}
		if err := c.BindJSON(&body); err != nil {
			c.JSON(400, gin.H{"error": "bad request"})
			return
		}
		c.JSON(200, gin.H{"id": "m6", "senderId": "me", "content": body.Content})
	})

	ctx := context.Background()

	msg, err := b.client.Send(ctx, model.ChannelRoom("channel-42"), "hello")
	if err != nil {
		t.Fatalf("Send channel: %v", err)
	}
	if msg.ID != "m5" || msg.Content != "hello" {
		t.Fatalf("unexpected channel send result: %+v", msg)
	}

	msg, err = b.client.Send(ctx, model.DirectRoom("u9"), "hello")
	if err != nil {
		t.Fatalf("Send direct: %v", err)
	}
	if msg.ID != "m6" {
		t.Fatalf("unexpected direct send result: %+v", msg)
	}
}
