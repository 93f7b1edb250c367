// Package loader turns a rule source (local path, file:// or http(s):// URL)
// into a validated, read-only rule base.
package loader

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ppiankov/ricedx/internal/cache"
	"github.com/ppiankov/ricedx/internal/model"
	"github.com/ppiankov/ricedx/internal/util"
	"github.com/ppiankov/ricedx/internal/validate"
	"github.com/ppiankov/ricedx/internal/worker"
)

// ErrRuleBaseUnavailable wraps every failure to produce a rule base
var ErrRuleBaseUnavailable = errors.New("rule base unavailable")

// Loader loads each source once and hands out the shared result
type Loader struct {
	fetcher   *Fetcher
	raw       cache.Cache
	validator *validate.Validator
	validate  bool
	maxBytes  int64
	logger    zerolog.Logger

	mu     sync.Mutex
	loaded map[string]*loadEntry
}

type loadEntry struct {
	ready chan struct{}
	rb    *model.RuleBase
	err   error
}

// New creates a loader. raw may be nil to disable document caching.
func New(cfg *model.Config, raw cache.Cache, logger zerolog.Logger) *Loader {
	if raw == nil {
		raw = cache.Nop{}
	}

	fetcher := NewFetcher(
		cfg.HTTP.Timeout,
		cfg.HTTP.UserAgent,
		cfg.HTTP.MaxBodyBytes,
		cfg.HTTP.InsecureTLS,
		cfg.HTTP.HTTPProxy,
		cfg.HTTP.HTTPSProxy,
		cfg.HTTP.NoProxy,
	).WithLimiter(worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize))
	if cfg.HTTP.RespectRobots {
		fetcher.WithRobots(util.NewRobotsChecker(fetcher.Client(), cfg.HTTP.UserAgent))
	}

	return &Loader{
		fetcher:   fetcher,
		raw:       raw,
		validator: validate.NewValidator(),
		validate:  cfg.Rules.Validate,
		maxBytes:  cfg.HTTP.MaxBodyBytes,
		logger:    logger.With().Str("component", "loader").Logger(),
		loaded:    make(map[string]*loadEntry),
	}
}

// Load returns the rule base for source, loading it on first use. Concurrent
// callers for the same source share one load. Failures are not remembered.
func (l *Loader) Load(ctx context.Context, source string) (*model.RuleBase, error) {
	key, err := normalizeSource(source)
	if err != nil {
		return nil, unavailable(source, err)
	}

	l.mu.Lock()
	if e, ok := l.loaded[key]; ok {
		l.mu.Unlock()
		select {
		case <-e.ready:
			return e.rb, e.err
		case <-ctx.Done():
			return nil, unavailable(source, ctx.Err())
		}
	}
	e := &loadEntry{ready: make(chan struct{})}
	l.loaded[key] = e
	l.mu.Unlock()

	e.rb, e.err = l.load(ctx, key)
	if e.err != nil {
		e.err = unavailable(source, e.err)
		l.mu.Lock()
		delete(l.loaded, key)
		l.mu.Unlock()
	}
	close(e.ready)

	return e.rb, e.err
}

// Forget drops source from the load-once cache and the document cache
func (l *Loader) Forget(source string) {
	key, err := normalizeSource(source)
	if err != nil {
		return
	}
	l.mu.Lock()
	delete(l.loaded, key)
	l.mu.Unlock()
	_ = l.raw.Delete(cache.Key(key))
}

// Check parses and validates source without caching the result
func (l *Loader) Check(ctx context.Context, source string) (*model.RuleBase, *validate.Result, error) {
	key, err := normalizeSource(source)
	if err != nil {
		return nil, nil, unavailable(source, err)
	}
	rb, err := l.parse(ctx, key)
	if err != nil {
		return nil, nil, unavailable(source, err)
	}
	return rb, l.validator.Validate(rb), nil
}

func (l *Loader) load(ctx context.Context, key string) (*model.RuleBase, error) {
	rb, err := l.parse(ctx, key)
	if err != nil {
		return nil, err
	}

	if l.validate {
		result := l.validator.Validate(rb)
		for _, issue := range result.Issues {
			if issue.Severity == validate.SeverityWarning {
				l.logger.Warn().Str("source", key).Msg(issue.String())
			}
		}
		if err := result.Err(); err != nil {
			return nil, err
		}
	}

	l.logger.Debug().
		Str("source", key).
		Int("facts", len(rb.Facts)).
		Int("rules", len(rb.Rules)).
		Msg("rule base loaded")

	return rb, nil
}

func (l *Loader) parse(ctx context.Context, key string) (*model.RuleBase, error) {
	data, contentType, remote, err := l.read(ctx, key)
	if err != nil {
		return nil, err
	}

	rb, warnings, err := Parse(data, DetectFormat(key, contentType, data))
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	for _, w := range warnings {
		l.logger.Warn().Str("source", key).Msg(w)
	}

	if remote {
		if err := l.raw.Set(cache.Key(key), data, 0); err != nil {
			l.logger.Debug().Err(err).Str("source", key).Msg("cache write failed")
		}
	}
	return rb, nil
}

// read returns the document bytes; remote reports a fresh network fetch
func (l *Loader) read(ctx context.Context, key string) ([]byte, string, bool, error) {
	if !isRemote(key) {
		info, err := os.Stat(key)
		if err != nil {
			return nil, "", false, fmt.Errorf("read rules: %w", err)
		}
		if l.maxBytes > 0 && info.Size() > l.maxBytes {
			return nil, "", false, fmt.Errorf("read rules: document exceeds %d bytes", l.maxBytes)
		}
		data, err := os.ReadFile(key)
		if err != nil {
			return nil, "", false, fmt.Errorf("read rules: %w", err)
		}
		return data, "", false, nil
	}

	if data, ok := l.raw.Get(cache.Key(key)); ok {
		l.logger.Debug().Str("source", key).Msg("document cache hit")
		return data, "", false, nil
	}

	result, err := l.fetcher.FetchWithRetry(ctx, key)
	if err != nil {
		return nil, "", false, err
	}
	return result.Body, result.ContentType, true, nil
}

// normalizeSource maps a source to its cache identity: URLs stay as given,
// local paths and file:// URLs become absolute paths.
func normalizeSource(source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", errors.New("empty source")
	}
	if isRemote(source) {
		return source, nil
	}

	if strings.HasPrefix(source, "file://") {
		u, err := url.Parse(source)
		if err != nil {
			return "", fmt.Errorf("parse source: %w", err)
		}
		source = u.Path
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	return abs, nil
}

func isRemote(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func unavailable(source string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRuleBaseUnavailable, source, err)
}
