package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"helm-assistant/internal/domain"
)

// Default circuit breaker settings.
const (
	defaultBreakerMaxFailures uint32        = 5
	defaultBreakerTimeout     time.Duration = 30 * time.Second
	defaultBreakerInterval    time.Duration = 60 * time.Second
)

// BreakerConfig configures the circuit breaker behavior.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before transitioning to half-open.
	Timeout time.Duration
	// Interval is the cyclic period of the closed state for clearing failure
	// counts. If 0, failures never reset until the circuit opens.
	Interval time.Duration
}

// BreakerService wraps a domain.ConversationService with circuit breaker
// protection. When the backend fails repeatedly, the circuit opens and calls
// fail fast without hitting the network, preventing retry storms while the
// user keeps an interactive session.
type BreakerService struct {
	inner   domain.ConversationService
	breaker *gobreaker.CircuitBreaker[any]
	logger  *slog.Logger
}

// NewBreakerService wraps inner with a circuit breaker.
// If cfg is zero-valued, sensible defaults are used.
func NewBreakerService(inner domain.ConversationService, cfg BreakerConfig, logger *slog.Logger) *BreakerService {
	if logger == nil {
		logger = slog.Default()
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultBreakerInterval
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "conversation-api",
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// Client-side rejections say nothing about backend health and must
		// not open the circuit.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, domain.ErrConversationNotFound) ||
				errors.Is(err, domain.ErrInvalidInput)
		},
	})

	return &BreakerService{inner: inner, breaker: cb, logger: logger}
}

func (s *BreakerService) GetConversation(ctx context.Context, id string) (*domain.ConversationSnapshot, error) {
	return execute(s, func() (*domain.ConversationSnapshot, error) {
		return s.inner.GetConversation(ctx, id)
	})
}

func (s *BreakerService) ListConversations(ctx context.Context, skip, limit int) (*domain.ConversationPage, error) {
	return execute(s, func() (*domain.ConversationPage, error) {
		return s.inner.ListConversations(ctx, skip, limit)
	})
}

func (s *BreakerService) CreateConversation(ctx context.Context, title string, sel domain.ContextSelection) (*domain.Conversation, error) {
	return execute(s, func() (*domain.Conversation, error) {
		return s.inner.CreateConversation(ctx, title, sel)
	})
}

func (s *BreakerService) DeleteConversation(ctx context.Context, id string) error {
	_, err := execute(s, func() (struct{}, error) {
		return struct{}{}, s.inner.DeleteConversation(ctx, id)
	})
	return err
}

func (s *BreakerService) UpdateContext(ctx context.Context, id string, patch domain.ContextPatch) (*domain.Conversation, error) {
	return execute(s, func() (*domain.Conversation, error) {
		return s.inner.UpdateContext(ctx, id, patch)
	})
}

// execute routes one call through the breaker and converts open-circuit
// rejections to the server-failure sentinel so callers classify them like
// any other backend outage.
func execute[T any](s *BreakerService, fn func() (T, error)) (T, error) {
	res, err := s.breaker.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: conversation api circuit open: %s", domain.ErrServerFailure, err)
		}
		return zero, err
	}
	out, _ := res.(T)
	return out, nil
}
