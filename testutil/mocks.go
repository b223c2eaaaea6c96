package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockVKServer creates a test server that mocks the VK method API, its photo
// upload server and the CDN that serves chat photos.
type MockVKServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu    sync.Mutex
	calls map[string][]map[string][]string
}

// NewMockVKServer creates a new mock VK API server.
func NewMockVKServer(t *testing.T) *MockVKServer {
	t.Helper()
	m := &MockVKServer{
		Handlers: make(map[string]http.HandlerFunc),
		calls:    make(map[string][]map[string][]string),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		handler, ok := m.Handlers[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Content-Type") == "application/x-www-form-urlencoded" {
			if err := r.ParseForm(); err == nil {
				m.mu.Lock()
				m.calls[key] = append(m.calls[key], r.PostForm)
				m.mu.Unlock()
			}
		}
		handler(w, r)
	}))
	t.Cleanup(m.Close)
	return m
}

// MethodURL is the base URL to hand to a VK client.
func (m *MockVKServer) MethodURL() string {
	return m.URL + "/method"
}

// Calls returns the form values of every request made to a method.
func (m *MockVKServer) Calls(method string) []map[string][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string][]string(nil), m.calls["/method/"+method]...)
}

// MockMethod adds a handler that answers a method with {"response": response}.
func (m *MockVKServer) MockMethod(method string, response interface{}) {
	m.Handlers["/method/"+method] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"response": response}) //nolint:errcheck // test mock response
	}
}

// MockMethodError adds a handler that answers a method with a VK error envelope.
func (m *MockVKServer) MockMethodError(method string, code int, msg string) {
	m.Handlers["/method/"+method] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"error": map[string]interface{}{
				"error_code": code,
				"error_msg":  msg,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockChat adds a handler for messages.getChat.
func (m *MockVKServer) MockChat(title, photoURL string) {
	chat := map[string]interface{}{"title": title}
	if photoURL != "" {
		chat["photo_200"] = photoURL
	}
	m.MockMethod("messages.getChat", chat)
}

// MockImage serves data at path, as the photo CDN would.
func (m *MockVKServer) MockImage(path string, data []byte) string {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data) //nolint:errcheck // test mock response
	}
	return m.URL + path
}

// MockUploadServer accepts a multipart "file" field at path and answers with
// result. Received payloads are passed to onFile when it is non-nil.
func (m *MockVKServer) MockUploadServer(path, result string, onFile func([]byte)) string {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		buf, err := io.ReadAll(f)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if onFile != nil {
			onFile(buf)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"response": result}) //nolint:errcheck // test mock response
	}
	return m.URL + path
}
