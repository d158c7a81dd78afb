package iap

import "context"

// Backend is the vendor purchase service.
type Backend interface {

	// EstablishSession checks that the purchase environment is ready (account
	// signed in, region supported, service reachable) and returns a session
	// handle that every other call goes through.
	EstablishSession(ctx context.Context) (Session, error)
}

// Session is an established handle on the vendor purchase service. Returned
// errors are reported to callers verbatim.
type Session interface {
	QueryProducts(ctx context.Context, req *ProductInfoRequest) (*ProductInfoResult, error)
	CreatePurchaseIntent(ctx context.Context, req *PurchaseIntentRequest) (*PurchaseIntent, error)
	QueryOwnedPurchases(ctx context.Context, req *OwnedPurchasesRequest) (*OwnedPurchasesResult, error)
	ConsumePurchase(ctx context.Context, req *ConsumeRequest) (*ConsumeResult, error)

	// ParsePurchaseResult decodes the opaque payload a Resolver yields into a
	// purchase result. It performs no I/O.
	ParsePurchaseResult(payload []byte) *PurchaseResult
}

// Resolver turns a created purchase intent into a concrete outcome, usually
// by walking the user through a payment confirmation screen.
type Resolver interface {

	// Resolve returns the opaque platform payload describing the outcome, or
	// an error if the confirmation flow itself broke down.
	Resolve(ctx context.Context, intent *PurchaseIntent) ([]byte, error)
}
