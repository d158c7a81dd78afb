package breaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/mnasir786/hms-unity-plugin/iap"
)

// Config configures the circuit breaker guarding vendor calls.
type Config struct {
	Name string

	// FailureThreshold is the number of consecutive failures that trips the
	// breaker.
	FailureThreshold uint32

	// Timeout is how long the breaker stays open before letting a probe
	// request through.
	Timeout time.Duration

	// IsSuccessful classifies errors that should not count against the
	// breaker. It is called with nil for calls that succeeded. Vendor
	// rejections such as consuming a non-consumable purchase are definite
	// answers and belong here. Nil counts every error.
	IsSuccessful func(err error) bool
}

func newCircuitBreaker(log *zap.Logger, cfg Config) *gobreaker.CircuitBreaker[any] {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 1
	}

	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:         cfg.Name,
		MaxRequests:  1,
		Timeout:      cfg.Timeout,
		IsSuccessful: cfg.IsSuccessful,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

func execute[T any](cb *gobreaker.CircuitBreaker[any], fn func() (T, error)) (T, error) {
	v, err := cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}

type backend struct {
	inner iap.Backend
	cb    *gobreaker.CircuitBreaker[any]
}

// NewBackend guards inner and every session it establishes with a single
// circuit breaker. While the breaker is open calls fail with
// gobreaker.ErrOpenState without reaching the vendor.
func NewBackend(log *zap.Logger, inner iap.Backend, cfg Config) iap.Backend {
	return &backend{
		inner: inner,
		cb:    newCircuitBreaker(log, cfg),
	}
}

func (b *backend) EstablishSession(ctx context.Context) (iap.Session, error) {
	session, err := execute(b.cb, func() (iap.Session, error) {
		return b.inner.EstablishSession(ctx)
	})
	if err != nil || session == nil {
		return nil, err
	}
	return &Session{inner: session, cb: b.cb}, nil
}

// Session guards the fallible calls of an underlying session.
type Session struct {
	inner iap.Session
	cb    *gobreaker.CircuitBreaker[any]
}

func NewSession(log *zap.Logger, inner iap.Session, cfg Config) *Session {
	return &Session{
		inner: inner,
		cb:    newCircuitBreaker(log, cfg),
	}
}

func (s *Session) QueryProducts(ctx context.Context, req *iap.ProductInfoRequest) (*iap.ProductInfoResult, error) {
	return execute(s.cb, func() (*iap.ProductInfoResult, error) {
		return s.inner.QueryProducts(ctx, req)
	})
}

func (s *Session) CreatePurchaseIntent(ctx context.Context, req *iap.PurchaseIntentRequest) (*iap.PurchaseIntent, error) {
	return execute(s.cb, func() (*iap.PurchaseIntent, error) {
		return s.inner.CreatePurchaseIntent(ctx, req)
	})
}

func (s *Session) QueryOwnedPurchases(ctx context.Context, req *iap.OwnedPurchasesRequest) (*iap.OwnedPurchasesResult, error) {
	return execute(s.cb, func() (*iap.OwnedPurchasesResult, error) {
		return s.inner.QueryOwnedPurchases(ctx, req)
	})
}

func (s *Session) ConsumePurchase(ctx context.Context, req *iap.ConsumeRequest) (*iap.ConsumeResult, error) {
	return execute(s.cb, func() (*iap.ConsumeResult, error) {
		return s.inner.ConsumePurchase(ctx, req)
	})
}

func (s *Session) ParsePurchaseResult(payload []byte) *iap.PurchaseResult {
	return s.inner.ParsePurchaseResult(payload)
}
