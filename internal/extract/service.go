package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hyperjump/inqdoc/internal/models"
)

// MinSufficientChars is the trimmed length below which extracted text counts as a failure.
const MinSufficientChars = 10

// Fetcher reads raw document bytes by storage key.
type Fetcher interface {
	Fetch(ctx context.Context, storageKey string) ([]byte, error)
}

// Service resolves a storage key to plain text: cache, fetch, direct extraction,
// then the LLM fallback when the direct result is insufficient.
type Service struct {
	fetcher   Fetcher
	extractor *Extractor
	fallback  Fallback
	cache     Cache
	ttl       time.Duration
	group     singleflight.Group
	logger    *zap.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithFallback sets the LLM fallback. Without one, insufficient text fails immediately.
func WithFallback(f Fallback) ServiceOption {
	return func(s *Service) { s.fallback = f }
}

// WithCache replaces the default in-memory cache.
func WithCache(c Cache) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// WithTTL sets the TTL of the default in-memory cache.
func WithTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) { s.ttl = ttl }
}

// WithExtractor replaces the format dispatcher.
func WithExtractor(e *Extractor) ServiceOption {
	return func(s *Service) { s.extractor = e }
}

// NewService creates a Service reading from fetcher.
func NewService(fetcher Fetcher, opts ...ServiceOption) *Service {
	s := &Service{
		fetcher: fetcher,
		ttl:     DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.extractor == nil {
		s.extractor = NewExtractor()
	}
	if s.cache == nil {
		s.cache = NewMemoryCache(s.ttl)
	}
	return s
}

// Sufficient reports whether text has at least MinSufficientChars after trimming.
func Sufficient(text string) bool {
	return len([]rune(strings.TrimSpace(text))) >= MinSufficientChars
}

// GetDocumentTextContent returns the plain text of the document at storageKey.
// Concurrent calls for the same uncached key share one extraction.
func (s *Service) GetDocumentTextContent(ctx context.Context, storageKey string) (string, error) {
	if text, ok := s.cache.Get(ctx, storageKey); ok {
		s.logger.Debug("extract cache hit", zap.String("key", storageKey))
		return text, nil
	}
	// Shared work ignores the starting caller's cancellation; each caller waits on its own ctx.
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(storageKey, func() (interface{}, error) {
		if text, ok := s.cache.Get(detached, storageKey); ok {
			return text, nil
		}
		text, err := s.extract(detached, storageKey)
		if err != nil {
			return "", err
		}
		s.cache.Set(detached, storageKey, text)
		return text, nil
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			s.logger.Debug("extract shared in-flight result", zap.String("key", storageKey))
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached text for storageKey.
func (s *Service) Invalidate(ctx context.Context, storageKey string) {
	s.cache.Delete(ctx, storageKey)
}

func (s *Service) extract(ctx context.Context, storageKey string) (string, error) {
	content, err := s.fetcher.Fetch(ctx, storageKey)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", storageKey, err)
	}

	ext := ExtensionOf(storageKey)
	text, directErr := s.extractor.ExtractBytes(content, ext)
	if directErr == nil && Sufficient(text) {
		s.logger.Debug("direct extraction succeeded",
			zap.String("key", storageKey),
			zap.String("format", ext),
			zap.Int("chars", len(text)),
		)
		return text, nil
	}

	if directErr != nil {
		s.logger.Warn("direct extraction failed, trying LLM fallback",
			zap.String("key", storageKey), zap.Error(directErr))
	} else {
		s.logger.Info("direct extraction insufficient, trying LLM fallback",
			zap.String("key", storageKey), zap.Int("chars", len(strings.TrimSpace(text))))
	}

	if s.fallback == nil {
		return "", &models.ExtractionFailedError{StorageKey: storageKey, Cause: directErr}
	}
	recovered, fbErr := s.fallback.ExtractionFallback(ctx, BuildFallbackPrompt(storageKey, content))
	if fbErr == nil && Sufficient(recovered) {
		return strings.TrimSpace(recovered), nil
	}

	cause := directErr
	switch {
	case cause == nil && fbErr != nil:
		cause = fbErr
	case cause != nil && fbErr != nil:
		cause = errors.Join(directErr, fmt.Errorf("fallback: %w", fbErr))
	}
	return "", &models.ExtractionFailedError{StorageKey: storageKey, Cause: cause}
}
