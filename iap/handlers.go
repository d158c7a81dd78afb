package iap

// Operation names an orchestrator operation in logs, metrics and the
// logged-only channel.
type Operation string

const (
	OperationCheckAvailability    Operation = "check_availability"
	OperationObtainProductInfo    Operation = "obtain_product_info"
	OperationBuyProduct           Operation = "buy_product"
	OperationConsumePurchase      Operation = "consume_purchase"
	OperationObtainOwnedPurchases Operation = "obtain_owned_purchases"
	OperationRecoverPurchases     Operation = "recover_purchases"
)

// Handlers is the notification surface of a Manager. Every operation call
// fires at most one of its success/failure pair; nil handlers are skipped.
//
// BuyProduct and RecoverPurchases swallow some errors by design: a rejected
// purchase submission, a broken confirmation flow, or an individual consume
// failure during recovery fires neither the success nor the failure handler.
// Those errors are logged and delivered to OnLoggedOnly instead.
type Handlers struct {
	OnCheckAvailabilitySuccess func()
	OnCheckAvailabilityFailure func(err error)

	OnObtainProductInfoSuccess func(results []*ProductInfoResult)
	OnObtainProductInfoFailure func(err error)

	// OnBuyProductFailure receives ErrNotAvailable, ErrNilProduct, or a
	// *StatusError carrying the resolved status code.
	OnBuyProductSuccess func(result *PurchaseResult)
	OnBuyProductFailure func(err error)

	OnConsumePurchaseSuccess func()
	OnConsumePurchaseFailure func(err error)

	OnObtainOwnedPurchasesSuccess func(result *OwnedPurchasesResult)
	OnObtainOwnedPurchasesFailure func(err error)

	OnRecoverPurchasesSuccess func()
	OnRecoverPurchasesFailure func(err error)

	OnLoggedOnly func(op Operation, err error)
}

func notify(f func()) {
	if f != nil {
		f()
	}
}

func notifyWith[T any](f func(T), v T) {
	if f != nil {
		f(v)
	}
}
