package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/onnwee/chat-guard/telemetry"
)

const tracerName = "chat-guard"

// Config is the immutable guard configuration, built once at startup.
type Config struct {
	ChatID int64
	// Title is the canonical chat title.
	Title string
	// ReferenceImagePath is the canonical chat photo, both hashed and uploaded.
	ReferenceImagePath string
	// PreCheckDelay is slept at the start of every cycle before the chat is fetched.
	PreCheckDelay time.Duration
	// Interval is the wall-clock period between cycle starts.
	Interval time.Duration
}

// Phase is the position of the engine inside a reconciliation cycle.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseWaiting
	PhaseFetching
	PhaseEvaluating
	PhaseCorrecting
)

func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting"
	case PhaseFetching:
		return "fetching"
	case PhaseEvaluating:
		return "evaluating"
	case PhaseCorrecting:
		return "correcting"
	default:
		return "idle"
	}
}

// Engine detects and corrects drift of the chat title and photo. It holds no
// state between cycles beyond what lives in its CacheStore, and it is not safe
// for concurrent cycles; Scheduler guarantees one at a time.
type Engine struct {
	cfg    Config
	chat   ChatClient
	images ImageFetcher
	cache  CacheStore
	hasher ContentHasher
	sleep  func(ctx context.Context, d time.Duration) error
	phase  atomic.Int32
	logger *slog.Logger
}

// NewEngine wires the collaborators together.
func NewEngine(cfg Config, chat ChatClient, images ImageFetcher, cache CacheStore, hasher ContentHasher) *Engine {
	return &Engine{
		cfg:    cfg,
		chat:   chat,
		images: images,
		cache:  cache,
		hasher: hasher,
		sleep:  sleepContext,
		logger: slog.Default().With(slog.String("component", "guard_engine"), slog.Int64("chat_id", cfg.ChatID)),
	}
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

// Phase reports where the current cycle is; PhaseIdle between cycles.
func (e *Engine) Phase() Phase { return Phase(e.phase.Load()) }

func (e *Engine) setPhase(p Phase) { e.phase.Store(int32(p)) }

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ReconcileOnce runs one full cycle: wait the pre-check delay, fetch the chat,
// then check and correct the photo followed by the title. The first failure
// aborts the rest of the cycle.
func (e *Engine) ReconcileOnce(ctx context.Context) (err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "guard.reconcile", telemetry.ChatIDAttr(e.cfg.ChatID))
	defer func() { telemetry.EndSpan(span, err) }()
	defer e.setPhase(PhaseIdle)

	logger := e.loggerFor(ctx)

	e.setPhase(PhaseWaiting)
	logger.Debug("waiting before check", slog.Duration("delay", e.cfg.PreCheckDelay))
	if err := e.sleep(ctx, e.cfg.PreCheckDelay); err != nil {
		return fmt.Errorf("pre-check delay: %w", err)
	}

	e.setPhase(PhaseFetching)
	snap, err := e.chat.FetchChatMetadata(ctx, e.cfg.ChatID)
	if err != nil {
		return fmt.Errorf("fetch chat metadata: %w", err)
	}
	logger.Debug("chat fetched", slog.String("title", snap.Title), slog.String("photo_url", snap.PhotoURL))

	e.setPhase(PhaseEvaluating)
	photoChanged, err := e.PhotoChanged(ctx, snap)
	if err != nil {
		return fmt.Errorf("check photo: %w", err)
	}
	if photoChanged {
		telemetry.IncDrift("photo")
		logger.Info("chat photo has been changed")
		e.setPhase(PhaseCorrecting)
		err := e.UpdatePhoto(ctx)
		telemetry.IncCorrection("photo", err)
		if err != nil {
			return fmt.Errorf("update photo: %w", err)
		}
	} else {
		logger.Debug("chat photo is ok")
	}

	e.setPhase(PhaseEvaluating)
	if e.TitleChanged(snap) {
		telemetry.IncDrift("title")
		logger.Info("chat title has been changed", slog.String("observed", snap.Title), slog.String("expected", e.cfg.Title))
		e.setPhase(PhaseCorrecting)
		err := e.UpdateTitle(ctx)
		telemetry.IncCorrection("title", err)
		if err != nil {
			return fmt.Errorf("update title: %w", err)
		}
	} else {
		logger.Debug("chat title is ok")
	}
	return nil
}

// PhotoChanged reports whether the chat photo no longer carries the reference
// image. The cached URL is checked first so the common unchanged case costs no
// network or hashing. A differing URL is not trusted on its own because the
// API re-hosts identical images under new URLs; the downloaded bytes are
// hashed against the reference and, when equal, the new URL is cached.
func (e *Engine) PhotoChanged(ctx context.Context, snap ChatSnapshot) (changed bool, err error) {
	logger := e.loggerFor(ctx)
	if snap.PhotoURL == "" {
		telemetry.IncPhotoCacheCheck("absent")
		logger.Info("chat photo is empty")
		return true, nil
	}

	cached, err := e.cache.GetCachedURL()
	switch {
	case errors.Is(err, ErrCacheMiss):
		logger.Info("photo url cache is empty; comparing content")
	case err != nil:
		return false, fmt.Errorf("read cached photo url: %w", err)
	case cached == snap.PhotoURL:
		telemetry.IncPhotoCacheCheck("hit")
		return false, nil
	default:
		logger.Info("chat photo url has been updated; comparing content", slog.String("cached_url", cached), slog.String("photo_url", snap.PhotoURL))
	}
	telemetry.IncPhotoCacheCheck("miss")

	ctx, span := telemetry.StartSpan(ctx, tracerName, "guard.compare_photo")
	defer func() { telemetry.EndSpan(span, err) }()

	// The temp blob goes away on every path from here on, including a
	// partially written one.
	defer func() {
		if rmErr := e.cache.RemoveTemp(); rmErr != nil {
			logger.Warn("failed to remove temp blob", slog.Any("err", rmErr))
			if err == nil {
				err = fmt.Errorf("remove temp blob: %w", rmErr)
			}
		}
	}()

	data, err := e.images.FetchBytes(ctx, snap.PhotoURL)
	if err != nil {
		return false, fmt.Errorf("fetch chat photo: %w", err)
	}
	if err := e.cache.SaveTemp(data); err != nil {
		return false, fmt.Errorf("save temp blob: %w", err)
	}

	refSum, err := e.hasher.SumFile(e.cfg.ReferenceImagePath)
	if err != nil {
		return false, fmt.Errorf("hash reference image: %w: %w", ErrIO, err)
	}
	tmpSum, err := e.hashTemp()
	if err != nil {
		return false, err
	}

	if refSum != tmpSum {
		telemetry.IncHashComparison(false)
		logger.Info("chat photo content differs from reference", slog.String("reference_sum", refSum), slog.String("remote_sum", tmpSum))
		return true, nil
	}

	telemetry.IncHashComparison(true)
	logger.Info("chat photo content matches reference; caching new url", slog.String("photo_url", snap.PhotoURL))
	if err := e.cache.SetCachedURL(snap.PhotoURL); err != nil {
		return false, fmt.Errorf("cache photo url: %w", err)
	}
	return false, nil
}

func (e *Engine) hashTemp() (string, error) {
	rc, err := e.cache.OpenTemp()
	if err != nil {
		return "", fmt.Errorf("open temp blob: %w", err)
	}
	defer func() {
		if err := rc.Close(); err != nil {
			e.logger.Warn("failed to close temp blob", slog.Any("err", err))
		}
	}()
	sum, err := e.hasher.Sum(rc)
	if err != nil {
		return "", fmt.Errorf("hash temp blob: %w: %w", ErrIO, err)
	}
	return sum, nil
}

// TitleChanged reports whether the snapshot title is absent or differs from
// the canonical title.
func (e *Engine) TitleChanged(snap ChatSnapshot) bool {
	return snap.Title == "" || snap.Title != e.cfg.Title
}

// UpdatePhoto uploads the reference image and sets it as the chat photo. When
// the API answers with the new photo URL it is cached so the next cycle hits
// the fast path.
func (e *Engine) UpdatePhoto(ctx context.Context) (err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "guard.update_photo", telemetry.ChatIDAttr(e.cfg.ChatID))
	defer func() { telemetry.EndSpan(span, err) }()
	logger := e.loggerFor(ctx)

	target, err := e.chat.GetUploadTarget(ctx, e.cfg.ChatID)
	if err != nil {
		return fmt.Errorf("get upload target: %w", err)
	}
	data, err := os.ReadFile(e.cfg.ReferenceImagePath)
	if err != nil {
		return fmt.Errorf("read reference image: %w: %w", ErrIO, err)
	}
	result, err := e.images.UploadBytes(ctx, target, data)
	if err != nil {
		return fmt.Errorf("upload reference image: %w", err)
	}
	upd, err := e.chat.SetChatPhoto(ctx, e.cfg.ChatID, result)
	if err != nil {
		return fmt.Errorf("set chat photo: %w", err)
	}
	logger.Info("chat photo restored", slog.Int("bytes", len(data)))

	if upd.PhotoURL == "" {
		logger.Debug("set photo response has no photo url; cache left as is")
		return nil
	}
	if err := e.cache.SetCachedURL(upd.PhotoURL); err != nil {
		return fmt.Errorf("cache photo url: %w", err)
	}
	logger.Debug("photo url cached", slog.String("photo_url", upd.PhotoURL))
	return nil
}

// UpdateTitle restores the canonical chat title.
func (e *Engine) UpdateTitle(ctx context.Context) (err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "guard.update_title", telemetry.ChatIDAttr(e.cfg.ChatID))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := e.chat.SetChatTitle(ctx, e.cfg.ChatID, e.cfg.Title); err != nil {
		return fmt.Errorf("set chat title: %w", err)
	}
	e.loggerFor(ctx).Info("chat title restored", slog.String("title", e.cfg.Title))
	return nil
}

func (e *Engine) loggerFor(ctx context.Context) *slog.Logger {
	if id := telemetry.GetCorrelation(ctx); id != "" {
		return e.logger.With(slog.String("corr", id))
	}
	return e.logger
}
