package guard_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/onnwee/chat-guard/guard"
)

// fakeChat records every call made to the chat API.
type fakeChat struct {
	mu sync.Mutex

	snapshot    guard.ChatSnapshot
	fetchErr    error
	titleErr    error
	uploadURL   string
	targetErr   error
	setPhotoURL string
	setPhotoErr error

	fetches      int
	titleCalls   []string
	targetCalls  int
	photoResults []string
}

func (f *fakeChat) FetchChatMetadata(_ context.Context, _ int64) (guard.ChatSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return f.snapshot, f.fetchErr
}

func (f *fakeChat) SetChatTitle(_ context.Context, _ int64, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titleCalls = append(f.titleCalls, title)
	if f.titleErr != nil {
		return f.titleErr
	}
	f.snapshot.Title = title
	return nil
}

func (f *fakeChat) GetUploadTarget(_ context.Context, chatID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targetCalls++
	if f.targetErr != nil {
		return "", f.targetErr
	}
	if f.uploadURL != "" {
		return f.uploadURL, nil
	}
	return fmt.Sprintf("http://upload/%d", chatID), nil
}

func (f *fakeChat) SetChatPhoto(_ context.Context, _ int64, uploadResult string) (guard.PhotoUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photoResults = append(f.photoResults, uploadResult)
	if f.setPhotoErr != nil {
		return guard.PhotoUpdate{}, f.setPhotoErr
	}
	if f.setPhotoURL != "" {
		f.snapshot.PhotoURL = f.setPhotoURL
	}
	return guard.PhotoUpdate{PhotoURL: f.setPhotoURL}, nil
}

func (f *fakeChat) corrections() (titles, photos int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.titleCalls), len(f.photoResults)
}

// fakeImages serves bytes per URL and records uploads.
type fakeImages struct {
	mu sync.Mutex

	content   map[string][]byte
	fetchErr  error
	uploadErr error

	fetched []string
	uploads [][]byte
}

func (f *fakeImages) FetchBytes(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	b, ok := f.content[url]
	if !ok {
		return nil, fmt.Errorf("%w: 404 for %s", guard.ErrRemoteAPI, url)
	}
	return b, nil
}

func (f *fakeImages) UploadBytes(_ context.Context, uploadURL string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads = append(f.uploads, data)
	return "uploaded:" + uploadURL, nil
}

func (f *fakeImages) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetched)
}
