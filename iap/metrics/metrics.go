package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mnasir786/hms-unity-plugin/iap"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type collector struct {
	notifications *prometheus.CounterVec
	loggedOnly    *prometheus.CounterVec
}

func newCollector() *collector {
	return &collector{
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "iap",
				Name:      "notifications_total",
				Help:      "Notifications fired by the purchase manager, by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		loggedOnly: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "iap",
				Name:      "logged_only_total",
				Help:      "Errors the purchase manager logged without firing a notification",
			},
			[]string{"operation"},
		),
	}
}

// Instrument returns a copy of h whose callbacks also count each notification
// in reg. Nil callbacks in h are counted and otherwise skipped.
func Instrument(h iap.Handlers, reg prometheus.Registerer) (iap.Handlers, error) {
	c := newCollector()
	if err := c.register(reg); err != nil {
		return iap.Handlers{}, err
	}
	return c.wrap(h), nil
}

func (c *collector) register(reg prometheus.Registerer) error {
	if err := reg.Register(c.notifications); err != nil {
		return err
	}
	return reg.Register(c.loggedOnly)
}

func (c *collector) wrap(h iap.Handlers) iap.Handlers {
	return iap.Handlers{
		OnCheckAvailabilitySuccess: c.success(iap.OperationCheckAvailability, h.OnCheckAvailabilitySuccess),
		OnCheckAvailabilityFailure: c.failure(iap.OperationCheckAvailability, h.OnCheckAvailabilityFailure),

		OnObtainProductInfoSuccess: successWith(c, iap.OperationObtainProductInfo, h.OnObtainProductInfoSuccess),
		OnObtainProductInfoFailure: c.failure(iap.OperationObtainProductInfo, h.OnObtainProductInfoFailure),

		OnBuyProductSuccess: successWith(c, iap.OperationBuyProduct, h.OnBuyProductSuccess),
		OnBuyProductFailure: c.failure(iap.OperationBuyProduct, h.OnBuyProductFailure),

		OnConsumePurchaseSuccess: c.success(iap.OperationConsumePurchase, h.OnConsumePurchaseSuccess),
		OnConsumePurchaseFailure: c.failure(iap.OperationConsumePurchase, h.OnConsumePurchaseFailure),

		OnObtainOwnedPurchasesSuccess: successWith(c, iap.OperationObtainOwnedPurchases, h.OnObtainOwnedPurchasesSuccess),
		OnObtainOwnedPurchasesFailure: c.failure(iap.OperationObtainOwnedPurchases, h.OnObtainOwnedPurchasesFailure),

		OnRecoverPurchasesSuccess: c.success(iap.OperationRecoverPurchases, h.OnRecoverPurchasesSuccess),
		OnRecoverPurchasesFailure: c.failure(iap.OperationRecoverPurchases, h.OnRecoverPurchasesFailure),

		OnLoggedOnly: func(op iap.Operation, err error) {
			c.loggedOnly.WithLabelValues(string(op)).Inc()
			if h.OnLoggedOnly != nil {
				h.OnLoggedOnly(op, err)
			}
		},
	}
}

func (c *collector) success(op iap.Operation, next func()) func() {
	counter := c.notifications.WithLabelValues(string(op), OutcomeSuccess)
	return func() {
		counter.Inc()
		if next != nil {
			next()
		}
	}
}

func (c *collector) failure(op iap.Operation, next func(error)) func(error) {
	counter := c.notifications.WithLabelValues(string(op), OutcomeFailure)
	return func(err error) {
		counter.Inc()
		if next != nil {
			next(err)
		}
	}
}

func successWith[T any](c *collector, op iap.Operation, next func(T)) func(T) {
	counter := c.notifications.WithLabelValues(string(op), OutcomeSuccess)
	return func(v T) {
		counter.Inc()
		if next != nil {
			next(v)
		}
	}
}
