package i18n

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/keithlinneman/clubdesk-web/internal/cryptoutil"
	"github.com/keithlinneman/clubdesk-web/internal/log"
	"github.com/keithlinneman/clubdesk-web/internal/otelx"
	"github.com/keithlinneman/clubdesk-web/internal/xerrors"
)

const (
	DefaultPollInterval = time.Minute

	maxBackoff = 10 * time.Minute
)

type pollResult int

const (
	pollNoChange pollResult = iota
	pollSwapped
	pollSSMError
	pollLoadError
	pollValidationError
)

// Fetcher is what the watcher needs from a Loader
type Fetcher interface {
	FetchCurrentHash(ctx context.Context) (string, error)
	LoadHash(ctx context.Context, hash string) (*Bundle, error)
}

// WatcherMetrics is implemented by the metrics package
type WatcherMetrics interface {
	IncCatalogPolls()
	IncCatalogSwaps()
	IncCatalogError(stage string)
	SetCatalogStale(stale bool)
}

type WatcherOptions struct {
	Logger  log.Logger
	Fetcher Fetcher
	Manager *Manager
	// Base is merged under every overlay, normally the embedded catalog
	Base         *Catalog
	PollInterval time.Duration
	Validation   *ValidationOptions
	// OnSwap runs on the poll goroutine after a successful swap
	OnSwap  func(hash string)
	Metrics WatcherMetrics
	// StaleThreshold defaults to 30 minutes without a successful SSM read
	StaleThreshold time.Duration
}

// Watcher polls SSM for a new overlay hash and swaps the merged catalog into the Manager
type Watcher struct {
	fetcher    Fetcher
	manager    *Manager
	base       *Catalog
	logger     log.Logger
	interval   time.Duration
	validation ValidationOptions
	onSwap     func(hash string)
	metrics    WatcherMetrics

	currentHash     string
	consecutiveErrs int

	staleThreshold time.Duration
	lastSuccessAt  time.Time
	staleLogged    bool

	pollCount int64
	swapCount int64
}

func NewWatcher(opts WatcherOptions) *Watcher {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	validation := DefaultValidationOptions()
	if opts.Validation != nil {
		validation = *opts.Validation
	}
	stale := opts.StaleThreshold
	if stale <= 0 {
		stale = 30 * time.Minute
	}
	base := opts.Base
	if base == nil {
		base = opts.Manager.Get()
	}

	// an overlay already active means its hash is current, an embedded catalog has no overlay hash
	current := ""
	if c := opts.Manager.Get(); c != nil && c.Meta.Source == SourceS3 {
		current = c.Meta.Hash
	}

	return &Watcher{
		fetcher:        opts.Fetcher,
		manager:        opts.Manager,
		base:           base,
		logger:         opts.Logger,
		interval:       interval,
		validation:     validation,
		onSwap:         opts.OnSwap,
		metrics:        opts.Metrics,
		currentHash:    current,
		staleThreshold: stale,
		lastSuccessAt:  time.Now(),
	}
}

// Sync runs one poll and reports failures as an error, for the initial load at startup.
func (w *Watcher) Sync(ctx context.Context) error {
	switch w.checkOnce(ctx) {
	case pollSSMError:
		return xerrors.Mark(xerrors.New("message catalog: SSM poll failed"), xerrors.KindUnavailable)
	case pollLoadError:
		return xerrors.Mark(xerrors.New("message catalog: bundle load failed"), xerrors.KindUnavailable)
	case pollValidationError:
		return xerrors.Mark(xerrors.New("message catalog: bundle failed validation"), xerrors.KindInvalid)
	}
	return nil
}

// Run polls until ctx is cancelled. go watcher.Run(ctx)
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info(ctx, "catalog watcher starting",
		"poll_interval", w.interval.String(),
		"current_hash", truncHash(w.currentHash),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "catalog watcher stopping",
				"reason", ctx.Err(),
				"polls", w.pollCount,
				"swaps", w.swapCount,
			)
			return ctx.Err()
		case <-ticker.C:
			res := w.checkOnce(ctx)

			if res == pollSSMError {
				w.consecutiveErrs++
				backoff := w.backoffDuration()
				w.logger.Warn(ctx, "catalog watcher: backing off",
					"consecutive_errors", w.consecutiveErrs,
					"next_poll_in", backoff.String(),
				)
				ticker.Reset(backoff)
			} else if w.consecutiveErrs > 0 {
				w.logger.Info(ctx, "catalog watcher: recovered",
					"had_consecutive_errors", w.consecutiveErrs,
				)
				w.consecutiveErrs = 0
				ticker.Reset(w.interval)
			}

			w.trackStaleness(ctx, res)
		}
	}
}

func (w *Watcher) trackStaleness(ctx context.Context, res pollResult) {
	if res != pollSSMError {
		if w.staleLogged {
			w.logger.Info(ctx, "catalog watcher: staleness recovered")
			w.staleLogged = false
			if w.metrics != nil {
				w.metrics.SetCatalogStale(false)
			}
		}
		return
	}
	if since := time.Since(w.lastSuccessAt); since > w.staleThreshold && !w.staleLogged {
		w.logger.Error(ctx, fmt.Errorf("last successful SSM poll was %s ago", since.Truncate(time.Second)),
			"catalog watcher: messages may be stale",
		)
		w.staleLogged = true
		if w.metrics != nil {
			w.metrics.SetCatalogStale(true)
		}
	}
}

func (w *Watcher) checkOnce(ctx context.Context) pollResult {
	ctx, span := otelx.Tracer().Start(ctx, "i18n.refresh")
	res := w.poll(ctx)
	span.SetAttributes(
		attribute.String("i18n.hash", truncHash(w.currentHash)),
		attribute.Bool("i18n.swapped", res == pollSwapped),
	)
	var err error
	if res > pollSwapped {
		err = fmt.Errorf("catalog poll failed (result %d)", res)
	}
	otelx.EndSpan(span, err)
	return res
}

func (w *Watcher) poll(ctx context.Context) pollResult {
	w.pollCount++
	if w.metrics != nil {
		w.metrics.IncCatalogPolls()
	}

	hash, err := w.fetcher.FetchCurrentHash(ctx)
	if err != nil {
		w.logger.Error(ctx, err, "catalog watcher: SSM poll failed")
		w.incError("ssm")
		return pollSSMError
	}
	w.lastSuccessAt = time.Now()

	if cryptoutil.HashEqual(hash, w.currentHash) {
		return pollNoChange
	}

	w.logger.Info(ctx, "catalog watcher: new bundle hash",
		"old_hash", truncHash(w.currentHash),
		"new_hash", truncHash(hash),
	)

	bundle, err := w.fetcher.LoadHash(ctx, hash)
	if err != nil {
		w.logger.Error(ctx, err, "catalog watcher: failed to load bundle", "hash", truncHash(hash))
		w.incError("load")
		return pollLoadError
	}

	var baseMsgs Messages
	if w.base != nil {
		baseMsgs = w.base.messages
	}
	next := NewCatalog(Merge(baseMsgs, bundle.Messages), Meta{
		Hash:    hash,
		Version: "s3-" + truncHash(hash),
		Source:  SourceS3,
	})
	if err := ValidateCatalog(next, w.validation); err != nil {
		w.logger.Error(ctx, err, "catalog watcher: bundle failed validation, keeping current messages",
			"rejected_hash", truncHash(hash),
			"current_hash", truncHash(w.currentHash),
		)
		w.incError("validation")
		return pollValidationError
	}

	old := w.currentHash
	w.manager.Set(next)
	w.currentHash = hash
	w.swapCount++
	if w.metrics != nil {
		w.metrics.IncCatalogSwaps()
	}

	w.logger.Info(ctx, "catalog watcher: messages swapped",
		"old_hash", truncHash(old),
		"new_hash", truncHash(hash),
		"locales", len(next.messages),
		"total_swaps", w.swapCount,
	)

	if w.onSwap != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error(ctx, fmt.Errorf("OnSwap panic: %v", r), "catalog watcher: OnSwap panicked, continuing")
				}
			}()
			w.onSwap(hash)
		}()
	}
	return pollSwapped
}

func (w *Watcher) incError(stage string) {
	if w.metrics != nil {
		w.metrics.IncCatalogError(stage)
	}
}

// backoffDuration doubles the interval per consecutive error, capped at maxBackoff
func (w *Watcher) backoffDuration() time.Duration {
	f := float64(w.interval) * math.Pow(2, float64(w.consecutiveErrs))
	if f > float64(maxBackoff) {
		return maxBackoff
	}
	return time.Duration(f)
}
