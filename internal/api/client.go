// Package api is the REST transport for the community chat backend. A single
// Client carries the bearer token into every request and owns the 401
// credential-purge side effect.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"commchat/internal/credstore"
	"commchat/internal/model"
	"commchat/internal/observability"
	"commchat/internal/token"
)

// APIError is a non-2xx response. The body is kept verbatim so callers can
// inspect whatever the backend returned.
type APIError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api: status %d", e.Status)
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  *token.Store
	creds   *credstore.Store
	log     *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, tokens *token.Store, creds *credstore.Store) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		creds:   creds,
		log:     observability.Component("api"),
	}
}

// effectiveToken resolves the token the way the request interceptor must:
// in-memory cache first, durable store second, no token otherwise.
func (c *Client) effectiveToken() (string, bool) {
	if tok, ok := c.tokens.Get(); ok {
		return tok, true
	}
	tok, err := c.creds.Load()
	if err != nil {
		if !errors.Is(err, credstore.ErrNotFound) {
			c.log.Warn("durable token read failed", "error", err)
		}
		return "", false
	}
	return tok, tok != ""
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok, ok := c.effectiveToken(); ok {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// Purge credentials; session policy (navigation, logout) is the
		// caller's concern.
		c.log.Warn("unauthorized response, clearing stored token", "path", path)
		c.tokens.Clear()
		if err := c.creds.Delete(); err != nil {
			c.log.Warn("durable token delete failed", "error", err)
		}
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Body: respBody}
		var errResp struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &errResp) == nil {
			if errResp.Error != "" {
				apiErr.Message = errResp.Error
			} else {
				apiErr.Message = errResp.Message
			}
		}
		return apiErr
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("api: decode %s %s: %w", method, path, err)
		}
	}
	return nil
}

// AuthResult is a completed authentication exchange. The token is raw as
// received; normalization happens when the session stores it.
type AuthResult struct {
	Token string
	User  *model.User
}

// authResponse tolerates the token field aliases the backend uses.
type authResponse struct {
	Token       string      `json:"token"`
	AccessToken string      `json:"accessToken"`
	JWT         string      `json:"jwt"`
	User        *model.User `json:"user"`
}

var ErrNoToken = errors.New("api: auth response carried no token")

func (r authResponse) result() (AuthResult, error) {
	tok := r.Token
	if tok == "" {
		tok = r.AccessToken
	}
	if tok == "" {
		tok = r.JWT
	}
	if tok == "" {
		return AuthResult{}, ErrNoToken
	}
	return AuthResult{Token: tok, User: r.User}, nil
}

func (c *Client) GoogleLogin(ctx context.Context, idToken string) (AuthResult, error) {
	var resp authResponse
	if err := c.doRequest(ctx, http.MethodPost, "/auth/google", map[string]string{"idToken": idToken}, &resp); err != nil {
		return AuthResult{}, err
	}
	return resp.result()
}

func (c *Client) CommunityLogin(ctx context.Context, communityCode, email string) (AuthResult, error) {
	var resp authResponse
	body := map[string]string{"communityCode": communityCode, "email": email}
	if err := c.doRequest(ctx, http.MethodPost, "/auth/community/login", body, &resp); err != nil {
		return AuthResult{}, err
	}
	return resp.result()
}

func (c *Client) CommunitySignup(ctx context.Context, name, email, communityCode string) (AuthResult, error) {
	var resp authResponse
	body := map[string]string{"name": name, "email": email, "communityCode": communityCode}
	if err := c.doRequest(ctx, http.MethodPost, "/auth/community/signup", body, &resp); err != nil {
		return AuthResult{}, err
	}
	return resp.result()
}

func (c *Client) Me(ctx context.Context) (model.User, error) {
	var user model.User
	err := c.doRequest(ctx, http.MethodGet, "/auth/me", nil, &user)
	return user, err
}

func (c *Client) MyChannels(ctx context.Context) ([]model.Channel, error) {
	var channels []model.Channel
	err := c.doRequest(ctx, http.MethodGet, "/channels", nil, &channels)
	return channels, err
}

func (c *Client) AllChannels(ctx context.Context) ([]model.Channel, error) {
	var channels []model.Channel
	err := c.doRequest(ctx, http.MethodGet, "/channels/all", nil, &channels)
	return channels, err
}

func (c *Client) CreateChannel(ctx context.Context, name string, isPrivate bool) (model.Channel, error) {
	var channel model.Channel
	body := map[string]any{"name": name, "isPrivate": isPrivate}
	err := c.doRequest(ctx, http.MethodPost, "/channels", body, &channel)
	return channel, err
}

func (c *Client) JoinChannel(ctx context.Context, channelID string) error {
	return c.doRequest(ctx, http.MethodPost, "/channels/"+url.PathEscape(channelID)+"/join", nil, nil)
}

func (c *Client) LeaveChannel(ctx context.Context, channelID string) error {
	return c.doRequest(ctx, http.MethodPost, "/channels/"+url.PathEscape(channelID)+"/leave", nil, nil)
}

func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	return c.doRequest(ctx, http.MethodDelete, "/channels/"+url.PathEscape(channelID), nil, nil)
}

func (c *Client) ChannelMessages(ctx context.Context, channelID string) ([]model.Message, error) {
	var messages []model.Message
	err := c.doRequest(ctx, http.MethodGet, "/messages?channelId="+url.QueryEscape(channelID), nil, &messages)
	return messages, err
}

func (c *Client) SendChannelMessage(ctx context.Context, channelID, content string) (model.Message, error) {
	var msg model.Message
	body := map[string]string{"channelId": channelID, "content": content}
	err := c.doRequest(ctx, http.MethodPost, "/messages", body, &msg)
	return msg, err
}

func (c *Client) DirectMessages(ctx context.Context, userID string) ([]model.Message, error) {
	var messages []model.Message
	err := c.doRequest(ctx, http.MethodGet, "/messages/direct/"+url.PathEscape(userID), nil, &messages)
	return messages, err
}

func (c *Client) SendDirectMessage(ctx context.Context, userID, content string) (model.Message, error) {
	var msg model.Message
	body := map[string]string{"content": content}
	err := c.doRequest(ctx, http.MethodPost, "/messages/direct/"+url.PathEscape(userID), body, &msg)
	return msg, err
}

func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.doRequest(ctx, http.MethodDelete, "/messages/"+url.PathEscape(messageID), nil, nil)
}

func (c *Client) Users(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := c.doRequest(ctx, http.MethodGet, "/users", nil, &users)
	return users, err
}

func (c *Client) RegisterPushToken(ctx context.Context, pushToken, platform string) error {
	body := map[string]string{"token": pushToken, "platform": platform}
	return c.doRequest(ctx, http.MethodPost, "/users/push-token", body, nil)
}

// History fetches the message history for a room, channel or direct.
func (c *Client) History(ctx context.Context, room model.Room) ([]model.Message, error) {
	if room.IsDirect() {
		return c.DirectMessages(ctx, room.ID)
	}
	return c.ChannelMessages(ctx, room.ID)
}

// Send persists a message to a room and returns the canonical record.
func (c *Client) Send(ctx context.Context, room model.Room, content string) (model.Message, error) {
	if room.IsDirect() {
		return c.SendDirectMessage(ctx, room.ID, content)
	}
	return c.SendChannelMessage(ctx, room.ID, content)
}
