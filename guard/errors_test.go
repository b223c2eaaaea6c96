package guard

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorClassUnknown},
		{"plain", errors.New("weird"), ErrorClassUnknown},
		{"auth", fmt.Errorf("fetch chat metadata: %w", ErrAuth), ErrorClassAuth},
		{"auth beats remote", fmt.Errorf("%w: %w", ErrRemoteAPI, ErrAuth), ErrorClassAuth},
		{"remote", fmt.Errorf("set chat title: %w", ErrRemoteAPI), ErrorClassRemoteAPI},
		{"upload beats remote", fmt.Errorf("%w: %w", ErrRemoteAPI, ErrUpload), ErrorClassUpload},
		{"io", fmt.Errorf("save temp blob: %w", ErrIO), ErrorClassIO},
		{"cache miss", ErrCacheMiss, ErrorClassCacheMiss},
		{"canceled", fmt.Errorf("pre-check delay: %w", context.Canceled), ErrorClassCanceled},
		{"deadline", context.DeadlineExceeded, ErrorClassCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorClassString(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  string
	}{
		{ErrorClassAuth, "auth"},
		{ErrorClassRemoteAPI, "remote_api"},
		{ErrorClassUpload, "upload"},
		{ErrorClassIO, "io"},
		{ErrorClassCacheMiss, "cache_miss"},
		{ErrorClassCanceled, "canceled"},
		{ErrorClassUnknown, "unknown"},
		{ErrorClass(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.class.String(); got != tt.want {
			t.Errorf("ErrorClass(%d).String() = %q, want %q", tt.class, got, tt.want)
		}
	}
}

func TestPhaseString(t *testing.T) {
	for p, want := range map[Phase]string{
		PhaseIdle:       "idle",
		PhaseWaiting:    "waiting",
		PhaseFetching:   "fetching",
		PhaseEvaluating: "evaluating",
		PhaseCorrecting: "correcting",
	} {
		if got := p.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", p, got, want)
		}
	}
}
