// Package imagefetch downloads chat photos and pushes replacement images to
// VK upload servers.
package imagefetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/onnwee/chat-guard/guard"
)

// MaxImageBytes caps a downloaded photo. VK serves photo_200 thumbnails well
// under this.
const MaxImageBytes = 20 << 20

// UploadFileName is the file name sent in the multipart "file" field.
const UploadFileName = "photo.png"

var _ guard.ImageFetcher = (*Fetcher)(nil)

// Fetcher implements guard.ImageFetcher over HTTP.
type Fetcher struct {
	HTTPClient *http.Client
}

// New returns a fetcher using hc, or http.DefaultClient when hc is nil.
func New(hc *http.Client) *Fetcher {
	return &Fetcher{HTTPClient: hc}
}

func (f *Fetcher) http() *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}
	return http.DefaultClient
}

// FetchBytes downloads url in full.
func (f *Fetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	resp, err := f.http().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w: %w", guard.ErrRemoteAPI, err)
	}
	defer closeBody(resp)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch image: %w: %s", guard.ErrRemoteAPI, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w: read body: %w", guard.ErrRemoteAPI, err)
	}
	if len(data) > MaxImageBytes {
		return nil, fmt.Errorf("fetch image: %w: larger than %d bytes", guard.ErrRemoteAPI, MaxImageBytes)
	}
	return data, nil
}

// UploadBytes posts data as a multipart "file" field and returns the opaque
// "response" string the upload server hands back.
func (f *Fetcher) UploadBytes(ctx context.Context, uploadURL string, data []byte) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", UploadFileName)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := part.Write(data); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := f.http().Do(req)
	if err != nil {
		_ = pr.CloseWithError(err)
		return "", fmt.Errorf("upload image: %w: %w", guard.ErrUpload, err)
	}
	defer closeBody(resp)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("upload image: %w: %s: %s", guard.ErrUpload, resp.Status, strings.TrimSpace(string(b)))
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("upload image: %w: decode: %w", guard.ErrUpload, err)
	}
	if out.Response == "" {
		return "", fmt.Errorf("upload image: %w: empty response", guard.ErrUpload)
	}
	return out.Response, nil
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}
