package vkapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/oauth2"

	"github.com/onnwee/chat-guard/guard"
	"github.com/onnwee/chat-guard/testutil"
)

func newTestClient(m *testutil.MockVKServer) *Client {
	c := New("test-token")
	c.BaseURL = m.MethodURL()
	c.HTTPClient = m.Client()
	return c
}

func TestClient_FetchChatMetadata(t *testing.T) {
	tests := []struct {
		name      string
		title     string
		photo     string
		errCode   int
		wantErr   error
		wantTitle string
		wantPhoto string
	}{
		{
			name:      "title and photo",
			title:     "MAI Group Chat",
			photo:     "https://sun9-1.userapi.com/c/photo_200.jpg",
			wantTitle: "MAI Group Chat",
			wantPhoto: "https://sun9-1.userapi.com/c/photo_200.jpg",
		},
		{
			name:      "photo removed",
			title:     "MAI Group Chat",
			wantTitle: "MAI Group Chat",
		},
		{
			name:    "invalid token",
			errCode: 5,
			wantErr: guard.ErrAuth,
		},
		{
			name:    "access denied",
			errCode: 917,
			wantErr: guard.ErrRemoteAPI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testutil.NewMockVKServer(t)
			if tt.errCode != 0 {
				m.MockMethodError("messages.getChat", tt.errCode, "failure")
			} else {
				m.MockChat(tt.title, tt.photo)
			}
			c := newTestClient(m)

			snap, err := c.FetchChatMetadata(context.Background(), 42)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("FetchChatMetadata() error = %v, want %v", err, tt.wantErr)
				}
				var apiErr *APIError
				if !errors.As(err, &apiErr) || apiErr.Code != tt.errCode {
					t.Errorf("expected APIError with code %d, got %v", tt.errCode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchChatMetadata() unexpected error: %v", err)
			}
			if snap.Title != tt.wantTitle || snap.PhotoURL != tt.wantPhoto {
				t.Errorf("FetchChatMetadata() = %+v, want title %q photo %q", snap, tt.wantTitle, tt.wantPhoto)
			}

			calls := m.Calls("messages.getChat")
			if len(calls) != 1 {
				t.Fatalf("expected 1 getChat call, got %d", len(calls))
			}
			form := calls[0]
			if got := form["chat_id"]; len(got) != 1 || got[0] != "42" {
				t.Errorf("chat_id = %v, want 42", got)
			}
			if got := form["access_token"]; len(got) != 1 || got[0] != "test-token" {
				t.Errorf("access_token = %v, want test-token", got)
			}
			if got := form["v"]; len(got) != 1 || got[0] != DefaultVersion {
				t.Errorf("v = %v, want %s", got, DefaultVersion)
			}
		})
	}
}

func TestClient_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	c := New("test-token")
	c.BaseURL = server.URL
	c.HTTPClient = server.Client()

	err := c.SetChatTitle(context.Background(), 1, "x")
	if !errors.Is(err, guard.ErrRemoteAPI) {
		t.Fatalf("expected ErrRemoteAPI, got %v", err)
	}
	if !strings.Contains(err.Error(), "upstream exploded") {
		t.Errorf("error should carry the body, got %v", err)
	}
}

func TestClient_MalformedEnvelope(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>"},
		{"no response member", `{}`},
		{"wrong response shape", `{"response": "text"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := New("test-token")
			c.BaseURL = server.URL
			c.HTTPClient = server.Client()

			_, err := c.FetchChatMetadata(context.Background(), 1)
			if !errors.Is(err, guard.ErrRemoteAPI) {
				t.Errorf("expected ErrRemoteAPI, got %v", err)
			}
		})
	}
}

func TestClient_SetChatTitle(t *testing.T) {
	m := testutil.NewMockVKServer(t)
	m.MockMethod("messages.editChat", 1)
	c := newTestClient(m)

	if err := c.SetChatTitle(context.Background(), 9, "MAI Group Chat"); err != nil {
		t.Fatalf("SetChatTitle() error: %v", err)
	}
	calls := m.Calls("messages.editChat")
	if len(calls) != 1 {
		t.Fatalf("expected 1 editChat call, got %d", len(calls))
	}
	if got := calls[0]["title"]; len(got) != 1 || got[0] != "MAI Group Chat" {
		t.Errorf("title = %v", got)
	}
	if got := calls[0]["chat_id"]; len(got) != 1 || got[0] != "9" {
		t.Errorf("chat_id = %v", got)
	}
}

func TestClient_GetUploadTarget(t *testing.T) {
	t.Run("returns upload url", func(t *testing.T) {
		m := testutil.NewMockVKServer(t)
		m.MockMethod("photos.getChatUploadServer", map[string]string{"upload_url": "https://pu.vk.com/c1/upload"})
		c := newTestClient(m)

		got, err := c.GetUploadTarget(context.Background(), 3)
		if err != nil {
			t.Fatalf("GetUploadTarget() error: %v", err)
		}
		if got != "https://pu.vk.com/c1/upload" {
			t.Errorf("GetUploadTarget() = %q", got)
		}
	})

	t.Run("empty upload url", func(t *testing.T) {
		m := testutil.NewMockVKServer(t)
		m.MockMethod("photos.getChatUploadServer", map[string]string{})
		c := newTestClient(m)

		if _, err := c.GetUploadTarget(context.Background(), 3); !errors.Is(err, guard.ErrRemoteAPI) {
			t.Errorf("expected ErrRemoteAPI, got %v", err)
		}
	})
}

func TestClient_SetChatPhoto(t *testing.T) {
	tests := []struct {
		name     string
		response interface{}
		want     string
	}{
		{
			name: "new photo url",
			response: map[string]interface{}{
				"message_id": 100,
				"chat":       map[string]interface{}{"id": 3, "photo_200": "https://sun9-1.userapi.com/new.jpg"},
			},
			want: "https://sun9-1.userapi.com/new.jpg",
		},
		{
			name:     "no chat in response",
			response: map[string]interface{}{"message_id": 100},
			want:     "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testutil.NewMockVKServer(t)
			m.MockMethod("messages.setChatPhoto", tt.response)
			c := newTestClient(m)

			got, err := c.SetChatPhoto(context.Background(), 3, "opaque-upload-result")
			if err != nil {
				t.Fatalf("SetChatPhoto() error: %v", err)
			}
			if got.PhotoURL != tt.want {
				t.Errorf("PhotoURL = %q, want %q", got.PhotoURL, tt.want)
			}
			calls := m.Calls("messages.setChatPhoto")
			if len(calls) != 1 || len(calls[0]["file"]) != 1 || calls[0]["file"][0] != "opaque-upload-result" {
				t.Errorf("file param not forwarded: %v", calls)
			}
		})
	}
}

func TestClient_Authorize(t *testing.T) {
	t.Run("user token", func(t *testing.T) {
		m := testutil.NewMockVKServer(t)
		m.MockMethod("users.get", []map[string]interface{}{{"id": 1234, "first_name": "Guard"}})
		c := newTestClient(m)

		id, err := c.Authorize(context.Background())
		if err != nil {
			t.Fatalf("Authorize() error: %v", err)
		}
		if id != 1234 {
			t.Errorf("Authorize() = %d, want 1234", id)
		}
	})

	t.Run("rejected token", func(t *testing.T) {
		m := testutil.NewMockVKServer(t)
		m.MockMethodError("users.get", 5, "User authorization failed: invalid access_token")
		c := newTestClient(m)

		if _, err := c.Authorize(context.Background()); !errors.Is(err, guard.ErrAuth) {
			t.Errorf("expected ErrAuth, got %v", err)
		}
	})

	t.Run("unreachable api", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		base := server.URL
		server.Close()

		c := New("test-token")
		c.BaseURL = base
		if _, err := c.Authorize(context.Background()); !errors.Is(err, guard.ErrAuth) {
			t.Errorf("expected ErrAuth, got %v", err)
		}
	})
}

type failingTokenSource struct{}

func (failingTokenSource) Token() (*oauth2.Token, error) {
	return nil, errors.New("token revoked")
}

func TestClient_TokenSourceFailure(t *testing.T) {
	c := &Client{BaseURL: "http://127.0.0.1:1", Tokens: failingTokenSource{}}
	err := c.SetChatTitle(context.Background(), 1, "x")
	if !errors.Is(err, guard.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if guard.ClassifyError(err) != guard.ErrorClassAuth {
		t.Errorf("ClassifyError() = %v", guard.ClassifyError(err))
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	for _, code := range []int{5, 27, 28} {
		if err := (&APIError{Code: code}); !errors.Is(err, guard.ErrAuth) {
			t.Errorf("code %d should be ErrAuth", code)
		}
	}
	if err := (&APIError{Code: 6, Method: "messages.getChat", Msg: "Too many requests per second"}); !errors.Is(err, guard.ErrRemoteAPI) {
		t.Errorf("code 6 should be ErrRemoteAPI")
	} else if !strings.Contains(err.Error(), "messages.getChat") {
		t.Errorf("Error() = %q", err.Error())
	}
}
