package iap

// AvailabilityState is the cached outcome of the last CheckAvailability call.
// It stays put until the next check overwrites it.
type AvailabilityState uint8

const (
	AvailabilityUnknown AvailabilityState = iota
	AvailabilityAvailable
	AvailabilityUnavailable
)

func (s AvailabilityState) String() string {
	switch s {
	case AvailabilityAvailable:
		return "available"
	case AvailabilityUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// PriceType is the vendor's integer pricing class tag.
type PriceType int

const (
	PriceTypeConsumable    PriceType = 0
	PriceTypeNonConsumable PriceType = 1
)

func (p PriceType) String() string {
	switch p {
	case PriceTypeConsumable:
		return "consumable"
	case PriceTypeNonConsumable:
		return "non_consumable"
	default:
		return "unknown"
	}
}

// ProductInfo describes a purchasable item. Everything other than ProductID
// and PriceType is display metadata owned by the backend.
type ProductInfo struct {
	ProductID   string
	PriceType   PriceType
	ProductName string
	ProductDesc string
	Price       string
	MicrosPrice int64
	Currency    string
}

func (p *ProductInfo) Clone() *ProductInfo {
	if p == nil {
		return nil
	}
	cloned := *p
	return &cloned
}

type ProductInfoRequest struct {
	PriceType PriceType

	// ProductIDs filters the query. An empty filter is handed to the backend
	// as is, which decides what "all products" means.
	ProductIDs []string
}

type ProductInfoResult struct {
	ReturnCode      StatusCode
	ErrMsg          string
	ProductInfoList []*ProductInfo
}

func (r *ProductInfoResult) Clone() *ProductInfoResult {
	if r == nil {
		return nil
	}

	var products []*ProductInfo
	if r.ProductInfoList != nil {
		products = make([]*ProductInfo, len(r.ProductInfoList))
		for i, p := range r.ProductInfoList {
			products[i] = p.Clone()
		}
	}

	return &ProductInfoResult{
		ReturnCode:      r.ReturnCode,
		ErrMsg:          r.ErrMsg,
		ProductInfoList: products,
	}
}

type PurchaseIntentRequest struct {
	PriceType        PriceType
	ProductID        string
	DeveloperPayload string
}

// PurchaseIntent is the backend's handle on a created purchase. It is only
// meaningful to the Resolver that turns it into an outcome.
type PurchaseIntent struct {
	ReturnCode       StatusCode
	ErrMsg           string
	PaymentData      string
	PaymentSignature string
}

// PurchaseResult is a resolved purchase. InAppPurchaseData is the vendor's
// JSON purchase record and InAppDataSignature its signature.
type PurchaseResult struct {
	ReturnCode         StatusCode
	ErrMsg             string
	InAppPurchaseData  string
	InAppDataSignature string
}

// RedemptionToken extracts the token needed to consume this purchase.
func (r *PurchaseResult) RedemptionToken() (string, error) {
	return RedemptionToken(r.InAppPurchaseData)
}

type OwnedPurchasesRequest struct {
	// PriceType restricts the listing to one pricing class. Nil lists all.
	PriceType         *PriceType
	ContinuationToken string
}

type OwnedPurchasesResult struct {
	ReturnCode            StatusCode
	ErrMsg                string
	ItemList              []string
	InAppPurchaseDataList []string
	InAppSignature        []string
	ContinuationToken     string
}

type ConsumeRequest struct {
	PurchaseToken string
}

type ConsumeResult struct {
	ReturnCode          StatusCode
	ErrMsg              string
	ConsumePurchaseData string
}
