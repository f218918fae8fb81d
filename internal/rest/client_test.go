package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	scriberr "github.com/scribblechat/scribble/internal/errors"
)

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/login" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var creds map[string]string
		if err := json.Unmarshal(body, &creds); err != nil {
			t.Fatalf("request body: %v", err)
		}
		if creds["email"] != "a@x.io" || creds["password"] != "pw" {
			t.Errorf("credentials = %v", creds)
		}
		w.Write([]byte(`{"id":7,"username":"ana","email":"a@x.io"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	user, err := c.Login(context.Background(), "a@x.io", "pw")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if user.ID.String() != "7" || user.Username != "ana" {
		t.Errorf("user = %+v", user)
	}
}

func TestLoginRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid credentials"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.Login(context.Background(), "a@x.io", "wrong")
	var authErr *scriberr.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %T %v, want AuthError", err, err)
	}
	if authErr.Message != "invalid credentials" {
		t.Errorf("Message = %q", authErr.Message)
	}
}

func TestRegisterConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"message":"email already registered"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.Register(context.Background(), "ana", "a@x.io", "pw")
	var authErr *scriberr.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %T %v, want AuthError", err, err)
	}
}

func TestConversations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/7/conversations" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`[{"id":1},{"id":2}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	raws, err := c.Conversations(context.Background(), "7")
	if err != nil {
		t.Fatalf("Conversations() error = %v", err)
	}
	if len(raws) != 2 {
		t.Errorf("len = %d, want 2", len(raws))
	}
}

func TestPostMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/conversations/9/messages" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"id":100,"content":"hello"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	raw, err := c.PostMessage(context.Background(), "9", "7", "hello")
	if err != nil {
		t.Fatalf("PostMessage() error = %v", err)
	}
	if string(raw) != `{"id":100,"content":"hello"}` {
		t.Errorf("raw = %s", raw)
	}
}

func TestMarkRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations/9/read" {
			t.Errorf("path = %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req map[string]string
		_ = json.Unmarshal(body, &req)
		if req["userId"] != "7" || req["messageId"] != "100" {
			t.Errorf("body = %v", req)
		}
		w.Write([]byte(`{"id":9,"unreadCount":0}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	if _, err := c.MarkRead(context.Background(), "9", "7", "100"); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
}

func TestServerErrorWithoutMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.Messages(context.Background(), "9")
	var netErr *scriberr.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("error = %T %v, want NetworkError", err, err)
	}
}

func TestUnreachableServer(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", nil)
	_, err := c.Conversations(context.Background(), "7")
	var netErr *scriberr.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("error = %T %v, want NetworkError", err, err)
	}
}
