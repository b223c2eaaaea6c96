package guard

import (
	"context"
	"errors"
)

// Failure kinds. Adapters wrap these so the engine and the scheduler can tell
// them apart with errors.Is.
var (
	// ErrAuth means the API rejected the credentials. Fatal at startup.
	ErrAuth = errors.New("authorization failed")
	// ErrRemoteAPI is any other failed call to the chat API or image host.
	ErrRemoteAPI = errors.New("remote api error")
	// ErrUpload means the photo bytes could not be uploaded.
	ErrUpload = errors.New("upload failed")
	// ErrIO covers local cache, temp blob and reference image access.
	ErrIO = errors.New("local io error")
	// ErrCacheMiss means the cached photo URL slot was never written.
	ErrCacheMiss = errors.New("cached photo url not initialized")
)

// ErrorClass groups errors for logs and metric labels.
type ErrorClass int

const (
	ErrorClassUnknown ErrorClass = iota
	ErrorClassAuth
	ErrorClassRemoteAPI
	ErrorClassUpload
	ErrorClassIO
	ErrorClassCacheMiss
	ErrorClassCanceled
)

// String returns the label used in logs and metrics.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassAuth:
		return "auth"
	case ErrorClassRemoteAPI:
		return "remote_api"
	case ErrorClassUpload:
		return "upload"
	case ErrorClassIO:
		return "io"
	case ErrorClassCacheMiss:
		return "cache_miss"
	case ErrorClassCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// ClassifyError reports which failure kind err belongs to. Auth wins over the
// other kinds because an auth failure is usually also a remote api failure.
func ClassifyError(err error) ErrorClass {
	switch {
	case err == nil:
		return ErrorClassUnknown
	case errors.Is(err, ErrAuth):
		return ErrorClassAuth
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorClassCanceled
	case errors.Is(err, ErrUpload):
		return ErrorClassUpload
	case errors.Is(err, ErrRemoteAPI):
		return ErrorClassRemoteAPI
	case errors.Is(err, ErrCacheMiss):
		return ErrorClassCacheMiss
	case errors.Is(err, ErrIO):
		return ErrorClassIO
	default:
		return ErrorClassUnknown
	}
}
