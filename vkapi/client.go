// Package vkapi contains minimal helpers to manage a VK group chat through the
// VK API method endpoint: read chat metadata, rename the chat and replace its
// photo.
package vkapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"

	"github.com/onnwee/chat-guard/guard"
)

const (
	DefaultBaseURL = "https://api.vk.com/method"
	DefaultVersion = "5.131"
)

// VK error codes that mean the token itself is unusable.
const (
	codeAuthFailed      = 5
	codeWrongTokenGroup = 27
	codeWrongTokenApp   = 28
)

var _ guard.ChatClient = (*Client)(nil)

// APIError is the error envelope VK returns instead of a response.
type APIError struct {
	Method string `json:"-"`
	Code   int    `json:"error_code"`
	Msg    string `json:"error_msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vk %s: error %d: %s", e.Method, e.Code, e.Msg)
}

// Unwrap maps the VK code onto the guard failure kinds.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case codeAuthFailed, codeWrongTokenGroup, codeWrongTokenApp:
		return guard.ErrAuth
	default:
		return guard.ErrRemoteAPI
	}
}

// Client calls VK API methods with an access token taken from Tokens.
type Client struct {
	BaseURL    string
	Version    string
	Tokens     oauth2.TokenSource
	HTTPClient *http.Client
}

// New returns a client for a long-lived access token.
func New(token string) *Client {
	return &Client{
		BaseURL: DefaultBaseURL,
		Version: DefaultVersion,
		Tokens:  oauth2.ReuseTokenSource(nil, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})),
	}
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// call POSTs params to the named method and decodes the "response" member into out.
func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	if c.Tokens == nil {
		return fmt.Errorf("vk %s: %w: no token source", method, guard.ErrAuth)
	}
	tok, err := c.Tokens.Token()
	if err != nil {
		return fmt.Errorf("vk %s: %w: %w", method, guard.ErrAuth, err)
	}
	form := url.Values{}
	for k, v := range params {
		form[k] = v
	}
	form.Set("access_token", tok.AccessToken)
	version := c.Version
	if version == "" {
		version = DefaultVersion
	}
	form.Set("v", version)

	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	endpoint := strings.TrimRight(base, "/") + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("vk %s: build request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http().Do(req)
	if err != nil {
		return fmt.Errorf("vk %s: %w: %w", method, guard.ErrRemoteAPI, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("vk %s: %w: %s: %s", method, guard.ErrRemoteAPI, resp.Status, strings.TrimSpace(string(b)))
	}

	var body struct {
		Response json.RawMessage `json:"response"`
		Error    *APIError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("vk %s: %w: decode: %w", method, guard.ErrRemoteAPI, err)
	}
	if body.Error != nil {
		body.Error.Method = method
		return body.Error
	}
	if len(body.Response) == 0 {
		return fmt.Errorf("vk %s: %w: empty response", method, guard.ErrRemoteAPI)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body.Response, out); err != nil {
		return fmt.Errorf("vk %s: %w: decode response: %w", method, guard.ErrRemoteAPI, err)
	}
	return nil
}

// Authorize checks that the token is accepted by resolving its own user.
// Any failure here means the guard cannot run.
func (c *Client) Authorize(ctx context.Context) (int64, error) {
	var users []struct {
		ID int64 `json:"id"`
	}
	if err := c.call(ctx, "users.get", nil, &users); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) || errors.Is(err, guard.ErrAuth) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %w", guard.ErrAuth, err)
	}
	if len(users) == 0 {
		// Community tokens resolve no user but are still valid for messages.*.
		return 0, nil
	}
	return users[0].ID, nil
}

// FetchChatMetadata returns the chat title and its 200px photo URL.
func (c *Client) FetchChatMetadata(ctx context.Context, chatID int64) (guard.ChatSnapshot, error) {
	var chat struct {
		Title    string `json:"title"`
		Photo200 string `json:"photo_200"`
	}
	params := url.Values{"chat_id": {strconv.FormatInt(chatID, 10)}}
	if err := c.call(ctx, "messages.getChat", params, &chat); err != nil {
		return guard.ChatSnapshot{}, err
	}
	return guard.ChatSnapshot{Title: chat.Title, PhotoURL: chat.Photo200}, nil
}

// SetChatTitle renames the chat.
func (c *Client) SetChatTitle(ctx context.Context, chatID int64, title string) error {
	params := url.Values{
		"chat_id": {strconv.FormatInt(chatID, 10)},
		"title":   {title},
	}
	return c.call(ctx, "messages.editChat", params, nil)
}

// GetUploadTarget returns the upload server URL for a new chat photo.
func (c *Client) GetUploadTarget(ctx context.Context, chatID int64) (string, error) {
	var server struct {
		UploadURL string `json:"upload_url"`
	}
	params := url.Values{"chat_id": {strconv.FormatInt(chatID, 10)}}
	if err := c.call(ctx, "photos.getChatUploadServer", params, &server); err != nil {
		return "", err
	}
	if server.UploadURL == "" {
		return "", fmt.Errorf("vk photos.getChatUploadServer: %w: empty upload_url", guard.ErrRemoteAPI)
	}
	return server.UploadURL, nil
}

// SetChatPhoto applies an uploaded photo. The upload server already bound the
// file to the chat, so chatID is only used for logging.
func (c *Client) SetChatPhoto(ctx context.Context, chatID int64, uploadResult string) (guard.PhotoUpdate, error) {
	var res struct {
		MessageID int64 `json:"message_id"`
		Chat      struct {
			Photo200 string `json:"photo_200"`
		} `json:"chat"`
	}
	if err := c.call(ctx, "messages.setChatPhoto", url.Values{"file": {uploadResult}}, &res); err != nil {
		return guard.PhotoUpdate{}, err
	}
	slog.Debug("vk chat photo set", slog.Int64("chat_id", chatID), slog.Int64("message_id", res.MessageID))
	return guard.PhotoUpdate{PhotoURL: res.Chat.Photo200}, nil
}
