// Package rest implements the chat backend's request/response collaborator.
// Message and conversation payloads are returned as raw JSON; normalization
// belongs to the reconciler, not the transport.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/scribblechat/scribble/internal/chat"
	scriberr "github.com/scribblechat/scribble/internal/errors"
)

const defaultTimeout = 15 * time.Second

// Client talks to the chat backend's REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given base URL, e.g.
// "http://localhost:8080/api/chat". A nil httpClient gets a sane default.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// Register creates an account and returns the authenticated user.
func (c *Client) Register(ctx context.Context, username, email, password string) (chat.User, error) {
	return c.userRequest(ctx, "/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	})
}

// Login authenticates and returns the session user.
func (c *Client) Login(ctx context.Context, email, password string) (chat.User, error) {
	return c.userRequest(ctx, "/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

func (c *Client) userRequest(ctx context.Context, path string, body any) (chat.User, error) {
	data, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return chat.User{}, err
	}
	var user chat.User
	if err := json.Unmarshal(data, &user); err != nil {
		return chat.User{}, &scriberr.NetworkError{Op: "decode user", Err: err, Message: "unexpected response from server"}
	}
	return user, nil
}

// Conversations lists conversation summaries for a user.
func (c *Client) Conversations(ctx context.Context, userID string) ([]json.RawMessage, error) {
	data, err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID)+"/conversations", nil)
	if err != nil {
		return nil, err
	}
	return decodeList(data)
}

// CreateConversation starts (or returns) a conversation with the target,
// addressed by email or user id.
func (c *Client) CreateConversation(ctx context.Context, initiatorID, targetEmail, targetUserID string) (json.RawMessage, error) {
	body := map[string]string{"initiatorId": initiatorID}
	if targetEmail != "" {
		body["targetEmail"] = targetEmail
	}
	if targetUserID != "" {
		body["targetUserId"] = targetUserID
	}
	return c.do(ctx, http.MethodPost, "/conversations", body)
}

// Messages loads the full message history of a conversation.
func (c *Client) Messages(ctx context.Context, conversationID string) ([]json.RawMessage, error) {
	data, err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID)+"/messages", nil)
	if err != nil {
		return nil, err
	}
	return decodeList(data)
}

// PostMessage sends a message and returns the server's stored record.
func (c *Client) PostMessage(ctx context.Context, conversationID, senderID, content string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(conversationID)+"/messages", map[string]string{
		"senderId": senderID,
		"content":  content,
	})
}

// MarkRead acknowledges messages up to messageID and returns the updated
// conversation record.
func (c *Client) MarkRead(ctx context.Context, conversationID, userID, messageID string) (json.RawMessage, error) {
	body := map[string]string{"userId": userID}
	if messageID != "" {
		body["messageId"] = messageID
	}
	return c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(conversationID)+"/read", body)
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &scriberr.NetworkError{
			Op:      method + " " + path,
			Err:     err,
			Message: "could not reach the chat server",
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &scriberr.NetworkError{Op: method + " " + path, Err: err, Message: "reading response failed"}
	}
	if resp.StatusCode >= 400 {
		return nil, apiError(method+" "+path, resp.StatusCode, data)
	}
	return data, nil
}

// apiError surfaces the server's message-bearing error body. Authentication
// and conflict statuses become AuthError so login screens can tell them
// apart from plumbing failures.
func apiError(op string, statusCode int, body []byte) error {
	msg := gjson.GetBytes(body, "message").String()
	if msg == "" {
		msg = fmt.Sprintf("request failed with status %d", statusCode)
	}
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusConflict:
		return &scriberr.AuthError{Message: msg}
	}
	return &scriberr.NetworkError{Op: op, Message: msg}
}

func decodeList(data []byte) ([]json.RawMessage, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, &scriberr.NetworkError{Op: "decode list", Err: err, Message: "unexpected response from server"}
	}
	return list, nil
}
