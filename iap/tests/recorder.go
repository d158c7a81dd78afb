package tests

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mnasir786/hms-unity-plugin/iap"
)

const (
	OutcomeSuccess    = "success"
	OutcomeFailure    = "failure"
	OutcomeLoggedOnly = "logged_only"
)

// Notification is one callback fired by a Manager.
type Notification struct {
	Operation iap.Operation
	Outcome   string
	Err       error
	Payload   any
}

// Recorder captures every notification a Manager fires.
type Recorder struct {
	mu            sync.Mutex
	notifications []Notification
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(n Notification) {
	r.mu.Lock()
	r.notifications = append(r.notifications, n)
	r.mu.Unlock()
}

func (r *Recorder) success(op iap.Operation) func() {
	return func() {
		r.record(Notification{Operation: op, Outcome: OutcomeSuccess})
	}
}

func (r *Recorder) failure(op iap.Operation) func(error) {
	return func(err error) {
		r.record(Notification{Operation: op, Outcome: OutcomeFailure, Err: err})
	}
}

func successWith[T any](r *Recorder, op iap.Operation) func(T) {
	return func(v T) {
		r.record(Notification{Operation: op, Outcome: OutcomeSuccess, Payload: v})
	}
}

func (r *Recorder) Handlers() iap.Handlers {
	return iap.Handlers{
		OnCheckAvailabilitySuccess: r.success(iap.OperationCheckAvailability),
		OnCheckAvailabilityFailure: r.failure(iap.OperationCheckAvailability),

		OnObtainProductInfoSuccess: successWith[[]*iap.ProductInfoResult](r, iap.OperationObtainProductInfo),
		OnObtainProductInfoFailure: r.failure(iap.OperationObtainProductInfo),

		OnBuyProductSuccess: successWith[*iap.PurchaseResult](r, iap.OperationBuyProduct),
		OnBuyProductFailure: r.failure(iap.OperationBuyProduct),

		OnConsumePurchaseSuccess: r.success(iap.OperationConsumePurchase),
		OnConsumePurchaseFailure: r.failure(iap.OperationConsumePurchase),

		OnObtainOwnedPurchasesSuccess: successWith[*iap.OwnedPurchasesResult](r, iap.OperationObtainOwnedPurchases),
		OnObtainOwnedPurchasesFailure: r.failure(iap.OperationObtainOwnedPurchases),

		OnRecoverPurchasesSuccess: r.success(iap.OperationRecoverPurchases),
		OnRecoverPurchasesFailure: r.failure(iap.OperationRecoverPurchases),

		OnLoggedOnly: func(op iap.Operation, err error) {
			r.record(Notification{Operation: op, Outcome: OutcomeLoggedOnly, Err: err})
		},
	}
}

func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	notifications := make([]Notification, len(r.notifications))
	copy(notifications, r.notifications)
	return notifications
}

// Fired returns the success and failure notifications of op, leaving out
// logged-only errors.
func (r *Recorder) Fired(op iap.Operation) []Notification {
	var fired []Notification
	for _, n := range r.Notifications() {
		if n.Operation == op && n.Outcome != OutcomeLoggedOnly {
			fired = append(fired, n)
		}
	}
	return fired
}

func (r *Recorder) LoggedOnly(op iap.Operation) []Notification {
	var logged []Notification
	for _, n := range r.Notifications() {
		if n.Operation == op && n.Outcome == OutcomeLoggedOnly {
			logged = append(logged, n)
		}
	}
	return logged
}

// RequireOne asserts op fired exactly one notification and returns it.
func (r *Recorder) RequireOne(t *testing.T, op iap.Operation) Notification {
	t.Helper()

	fired := r.Fired(op)
	require.Len(t, fired, 1, "notifications for %s: %+v", op, fired)
	return fired[0]
}

// WaitFor blocks until op has fired n notifications, for managers running
// on the default executor.
func (r *Recorder) WaitFor(t *testing.T, op iap.Operation, n int) {
	t.Helper()

	require.Eventually(t, func() bool {
		return len(r.Fired(op)) >= n
	}, time.Second, 5*time.Millisecond)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.notifications = nil
	r.mu.Unlock()
}
