package iap

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Executor runs the asynchronous half of an operation. The default starts a
// goroutine per task.
type Executor func(task func())

// InlineExecutor runs tasks on the calling goroutine, so every notification
// has fired by the time an operation returns.
func InlineExecutor(task func()) {
	task()
}

func goExecutor(task func()) {
	go task()
}

type Option func(m *Manager)

func WithExecutor(e Executor) Option {
	return func(m *Manager) {
		m.executor = e
	}
}

// WithDeveloperPayload attaches a fixed developer payload to every purchase
// intent. Empty payloads are ignored.
func WithDeveloperPayload(payload string) Option {
	return func(m *Manager) {
		if payload != "" {
			m.payload = func() string { return payload }
		}
	}
}

func WithPayloadGenerator(f func() string) Option {
	return func(m *Manager) {
		m.payload = f
	}
}

type gate struct {
	state   AvailabilityState
	session Session
}

// Manager orchestrates the purchase lifecycle against a Backend.
//
// Operations return immediately and report through Handlers. Only
// CheckAvailability writes the availability state and session handle; every
// other operation reads a snapshot of both when it is called. Overlapping
// calls are not serialized: two concurrent BuyProduct calls both proceed, and
// a CheckAvailability racing another operation leaves that operation on
// whichever session it observed.
type Manager struct {
	log      *zap.Logger
	backend  Backend
	resolver Resolver
	handlers Handlers
	executor Executor
	payload  func() string

	gate atomic.Pointer[gate]
}

func NewManager(log *zap.Logger, backend Backend, resolver Resolver, handlers Handlers, opts ...Option) *Manager {
	m := &Manager{
		log:      log,
		backend:  backend,
		resolver: resolver,
		handlers: handlers,
		executor: goExecutor,
		payload:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the outcome of the most recent availability check.
func (m *Manager) State() AvailabilityState {
	g := m.gate.Load()
	if g == nil {
		return AvailabilityUnknown
	}
	return g.state
}

func (m *Manager) session() (Session, bool) {
	g := m.gate.Load()
	if g == nil || g.state != AvailabilityAvailable {
		return nil, false
	}
	return g.session, true
}

func (m *Manager) loggedOnly(log *zap.Logger, op Operation, msg string, err error) {
	log.Warn(msg, zap.Error(err))
	if m.handlers.OnLoggedOnly != nil {
		m.handlers.OnLoggedOnly(op, err)
	}
}

// CheckAvailability establishes a backend session. It overwrites the
// availability state unconditionally once the backend answers.
func (m *Manager) CheckAvailability(ctx context.Context) {
	log := m.log.With(zap.String("operation", string(OperationCheckAvailability)))

	m.executor(func() {
		session, err := m.backend.EstablishSession(ctx)
		if err == nil && session == nil {
			err = errNilSession
		}
		if err != nil {
			log.Warn("IAP not available", zap.Error(err))
			m.gate.Store(&gate{state: AvailabilityUnavailable})
			notifyWith(m.handlers.OnCheckAvailabilityFailure, err)
			return
		}

		log.Info("IAP available")
		m.gate.Store(&gate{state: AvailabilityAvailable, session: session})
		notify(m.handlers.OnCheckAvailabilitySuccess)
	})
}

// ObtainProductInfo queries consumable products, then non-consumable products,
// with the same filter and reports both results in that order.
func (m *Manager) ObtainProductInfo(ctx context.Context, productIDs []string) {
	session, ok := m.session()
	if !ok {
		notifyWith(m.handlers.OnObtainProductInfoFailure, ErrNotAvailable)
		return
	}

	log := m.log.With(
		zap.String("operation", string(OperationObtainProductInfo)),
		zap.Strings("product_ids", productIDs),
	)

	m.executor(func() {
		consumables, err := session.QueryProducts(ctx, &ProductInfoRequest{
			PriceType:  PriceTypeConsumable,
			ProductIDs: productIDs,
		})
		if err != nil {
			log.Warn("Failed to obtain consumable products", zap.Error(err))
			notifyWith(m.handlers.OnObtainProductInfoFailure, err)
			return
		}
		logProducts(log, PriceTypeConsumable, consumables)

		nonConsumables, err := session.QueryProducts(ctx, &ProductInfoRequest{
			PriceType:  PriceTypeNonConsumable,
			ProductIDs: productIDs,
		})
		if err != nil {
			log.Warn("Failed to obtain non-consumable products", zap.Error(err))
			notifyWith(m.handlers.OnObtainProductInfoFailure, err)
			return
		}
		logProducts(log, PriceTypeNonConsumable, nonConsumables)

		notifyWith(m.handlers.OnObtainProductInfoSuccess, []*ProductInfoResult{consumables, nonConsumables})
	})
}

func logProducts(log *zap.Logger, priceType PriceType, result *ProductInfoResult) {
	if result == nil {
		log.Debug("Found no products", zap.Stringer("price_type", priceType))
		return
	}
	log.Debug("Found products",
		zap.Stringer("price_type", priceType),
		zap.Int("count", len(result.ProductInfoList)),
		zap.Stringer("return_code", result.ReturnCode),
		zap.String("err_msg", result.ErrMsg),
	)
}

// BuyProduct creates a purchase intent for product and hands it to the
// Resolver. A resolved StatusSuccess fires OnBuyProductSuccess, any other
// resolved code fires OnBuyProductFailure with a *StatusError.
//
// If the backend rejects the intent or the Resolver fails, no purchase
// notification fires at all; the error goes to OnLoggedOnly.
func (m *Manager) BuyProduct(ctx context.Context, product *ProductInfo) {
	session, ok := m.session()
	if !ok {
		notifyWith(m.handlers.OnBuyProductFailure, ErrNotAvailable)
		return
	}
	if product == nil {
		notifyWith(m.handlers.OnBuyProductFailure, ErrNilProduct)
		return
	}

	req := &PurchaseIntentRequest{
		PriceType:        product.PriceType,
		ProductID:        product.ProductID,
		DeveloperPayload: m.payload(),
	}

	log := m.log.With(
		zap.String("operation", string(OperationBuyProduct)),
		zap.String("product_id", req.ProductID),
		zap.Stringer("price_type", req.PriceType),
	)

	m.executor(func() {
		intent, err := session.CreatePurchaseIntent(ctx, req)
		if err == nil && intent == nil {
			err = errNilIntent
		}
		if err != nil {
			m.loggedOnly(log, OperationBuyProduct, "Failed to create purchase intent", err)
			return
		}

		log.Debug("Created purchase intent",
			zap.Stringer("return_code", intent.ReturnCode),
			zap.String("err_msg", intent.ErrMsg),
		)

		payload, err := m.resolver.Resolve(ctx, intent)
		if err != nil {
			m.loggedOnly(log, OperationBuyProduct, "Failed to resolve purchase intent", err)
			return
		}

		result := session.ParsePurchaseResult(payload)
		if result == nil {
			m.loggedOnly(log, OperationBuyProduct, "Failed to parse purchase result", errNilResult)
			return
		}

		log.Debug("Resolved purchase",
			zap.Stringer("return_code", result.ReturnCode),
			zap.String("err_msg", result.ErrMsg),
		)

		if result.ReturnCode == StatusSuccess {
			notifyWith(m.handlers.OnBuyProductSuccess, result)
			return
		}
		notifyWith[error](m.handlers.OnBuyProductFailure, &StatusError{Code: result.ReturnCode, Result: result})
	})
}

// ObtainOwnedPurchases lists owned non-consumable purchases.
func (m *Manager) ObtainOwnedPurchases(ctx context.Context) {
	session, ok := m.session()
	if !ok {
		notifyWith(m.handlers.OnObtainOwnedPurchasesFailure, ErrNotAvailable)
		return
	}

	log := m.log.With(zap.String("operation", string(OperationObtainOwnedPurchases)))
	priceType := PriceTypeNonConsumable

	m.executor(func() {
		result, err := session.QueryOwnedPurchases(ctx, &OwnedPurchasesRequest{PriceType: &priceType})
		if err != nil {
			log.Warn("Failed to obtain owned purchases", zap.Error(err))
			notifyWith(m.handlers.OnObtainOwnedPurchasesFailure, err)
			return
		}

		log.Debug("Obtained owned purchases", zap.Int("count", ownedCount(result)))
		notifyWith(m.handlers.OnObtainOwnedPurchasesSuccess, result)
	})
}

// RecoverPurchases lists every owned purchase and consumes each one in turn.
// Individual consume failures are logged only; success means every listed
// purchase was attempted, not that every one was consumed.
func (m *Manager) RecoverPurchases(ctx context.Context) {
	session, ok := m.session()
	if !ok {
		notifyWith(m.handlers.OnRecoverPurchasesFailure, ErrNotAvailable)
		return
	}

	log := m.log.With(zap.String("operation", string(OperationRecoverPurchases)))

	m.executor(func() {
		req := &OwnedPurchasesRequest{}
		seen := map[string]bool{}
		for {
			result, err := session.QueryOwnedPurchases(ctx, req)
			if err != nil {
				log.Warn("Failed to recover purchases", zap.Error(err))
				notifyWith(m.handlers.OnRecoverPurchasesFailure, err)
				return
			}
			if result == nil {
				break
			}

			log.Debug("Recovering purchases",
				zap.Int("count", len(result.InAppPurchaseDataList)),
				zap.Stringer("return_code", result.ReturnCode),
			)
			for _, data := range result.InAppPurchaseDataList {
				m.recoverOne(ctx, log, session, data)
			}

			token := result.ContinuationToken
			if token == "" || seen[token] {
				break
			}
			seen[token] = true
			req = &OwnedPurchasesRequest{ContinuationToken: token}
		}

		notify(m.handlers.OnRecoverPurchasesSuccess)
	})
}

func (m *Manager) recoverOne(ctx context.Context, log *zap.Logger, session Session, data string) {
	token, err := RedemptionToken(data)
	if err != nil {
		m.loggedOnly(log, OperationRecoverPurchases, "Failed to extract purchase token", err)
		return
	}

	if _, err = session.ConsumePurchase(ctx, &ConsumeRequest{PurchaseToken: token}); err != nil {
		m.loggedOnly(log.With(zap.String("purchase_token", token)), OperationRecoverPurchases, "Failed to consume recovered purchase", err)
		return
	}
	log.Debug("Consumed recovered purchase", zap.String("purchase_token", token))
}

// ConsumePurchase consumes the purchase described by a resolved result.
func (m *Manager) ConsumePurchase(ctx context.Context, result *PurchaseResult) {
	var data string
	if result != nil {
		data = result.InAppPurchaseData
	}
	m.ConsumePurchaseWithPurchaseData(ctx, data)
}

// ConsumePurchaseWithPurchaseData consumes the purchase described by a raw
// vendor purchase record.
func (m *Manager) ConsumePurchaseWithPurchaseData(ctx context.Context, data string) {
	if _, ok := m.session(); !ok {
		notifyWith(m.handlers.OnConsumePurchaseFailure, ErrNotAvailable)
		return
	}

	token, err := RedemptionToken(data)
	if err != nil {
		m.log.Warn("Failed to extract purchase token",
			zap.String("operation", string(OperationConsumePurchase)),
			zap.Error(err),
		)
		notifyWith(m.handlers.OnConsumePurchaseFailure, err)
		return
	}
	m.ConsumePurchaseWithToken(ctx, token)
}

// ConsumePurchaseWithToken consumes a purchase by its redemption token. The
// backend decides whether the token is still consumable.
func (m *Manager) ConsumePurchaseWithToken(ctx context.Context, token string) {
	session, ok := m.session()
	if !ok {
		notifyWith(m.handlers.OnConsumePurchaseFailure, ErrNotAvailable)
		return
	}

	log := m.log.With(
		zap.String("operation", string(OperationConsumePurchase)),
		zap.String("purchase_token", token),
	)

	m.executor(func() {
		if _, err := session.ConsumePurchase(ctx, &ConsumeRequest{PurchaseToken: token}); err != nil {
			log.Warn("Failed to consume purchase", zap.Error(err))
			notifyWith(m.handlers.OnConsumePurchaseFailure, err)
			return
		}

		log.Debug("Consumed purchase")
		notify(m.handlers.OnConsumePurchaseSuccess)
	})
}

func ownedCount(result *OwnedPurchasesResult) int {
	if result == nil {
		return 0
	}
	return len(result.InAppPurchaseDataList)
}
