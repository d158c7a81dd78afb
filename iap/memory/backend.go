package memory

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mnasir786/hms-unity-plugin/iap"
)

// PackageName is the application package stamped on every purchase record.
const PackageName = "com.hms.iap.memory"

var (
	ErrProductNotFound          = errors.New("product not found")
	ErrPriceTypeMismatch        = errors.New("product price type mismatch")
	ErrIntentNotFound           = errors.New("purchase intent not found")
	ErrProductNotOwned          = errors.New("product not owned")
	ErrProductConsumed          = errors.New("product already consumed")
	ErrNotConsumable            = errors.New("product is not consumable")
	ErrInvalidContinuationToken = errors.New("invalid continuation token")
)

var rejections = []error{
	ErrProductNotFound,
	ErrPriceTypeMismatch,
	ErrIntentNotFound,
	ErrProductNotOwned,
	ErrProductConsumed,
	ErrNotConsumable,
	ErrInvalidContinuationToken,
}

// IsRejection reports whether err is the backend refusing a request it
// understood, as opposed to an injected fault.
func IsRejection(err error) bool {
	for _, rejection := range rejections {
		if errors.Is(err, rejection) {
			return true
		}
	}
	return false
}

// Op names a simulated vendor call.
type Op string

const (
	OpEstablishSession     Op = "establish_session"
	OpQueryProducts        Op = "query_products"
	OpCreatePurchaseIntent Op = "create_purchase_intent"
	OpQueryOwnedPurchases  Op = "query_owned_purchases"
	OpConsumePurchase      Op = "consume_purchase"
	OpResolve              Op = "resolve"
)

// Call records one vendor call as the backend received it.
type Call struct {
	Op                Op
	PriceType         *iap.PriceType
	ProductIDs        []string
	ProductID         string
	PurchaseToken     string
	ContinuationToken string
}

// Decision is the simulated user's answer to the payment confirmation.
type Decision func(intent *iap.PurchaseIntent) iap.StatusCode

func Approve(*iap.PurchaseIntent) iap.StatusCode { return iap.StatusSuccess }
func Cancel(*iap.PurchaseIntent) iap.StatusCode { return iap.StatusCancelled }

type ownedPurchase struct {
	product   *iap.ProductInfo
	token     string
	data      string
	signature string
	consumed  bool
}

type resultEnvelope struct {
	ReturnCode         iap.StatusCode `json:"returnCode"`
	ErrMsg             string         `json:"errMsg,omitempty"`
	InAppPurchaseData  string         `json:"inAppPurchaseData,omitempty"`
	InAppDataSignature string         `json:"inAppDataSignature,omitempty"`
}

// Backend simulates the vendor purchase service in memory. It implements both
// iap.Backend and iap.Resolver.
type Backend struct {
	sync.Mutex

	log    *zap.Logger
	signer *signer

	products  []*iap.ProductInfo
	intents   map[string]*iap.PurchaseIntentRequest
	purchases []*ownedPurchase
	byToken   map[string]*ownedPurchase

	decision    Decision
	resolverErr error
	faults      map[Op][]error
	pageSize    int
	calls       []Call
}

func NewBackend(log *zap.Logger, products ...*iap.ProductInfo) (*Backend, error) {
	s, err := newSigner()
	if err != nil {
		return nil, err
	}

	b := &Backend{
		log:    log,
		signer: s,
	}
	b.products = cloneProducts(products)
	b.reset()
	return b, nil
}

func (b *Backend) reset() {
	b.Lock()
	defer b.Unlock()

	b.intents = make(map[string]*iap.PurchaseIntentRequest)
	b.purchases = nil
	b.byToken = make(map[string]*ownedPurchase)
	b.decision = Approve
	b.resolverErr = nil
	b.faults = make(map[Op][]error)
	b.pageSize = 0
	b.calls = nil
}

// SetDecision scripts how the next purchase confirmations are answered.
func (b *Backend) SetDecision(d Decision) {
	b.Lock()
	defer b.Unlock()

	b.decision = d
}

// SetResolverError makes every confirmation flow fail with err until cleared
// with nil.
func (b *Backend) SetResolverError(err error) {
	b.Lock()
	defer b.Unlock()

	b.resolverErr = err
}

// FailNext queues outcomes for the next calls of op. A nil entry lets that
// call through, so FailNext(op, nil, err) fails only the second call.
func (b *Backend) FailNext(op Op, errs ...error) {
	b.Lock()
	defer b.Unlock()

	b.faults[op] = append(b.faults[op], errs...)
}

// SetPageSize limits how many purchases QueryOwnedPurchases returns per page.
// Zero returns everything at once.
func (b *Backend) SetPageSize(n int) {
	b.Lock()
	defer b.Unlock()

	b.pageSize = n
}

func (b *Backend) Calls() []Call {
	b.Lock()
	defer b.Unlock()

	calls := make([]Call, len(b.calls))
	copy(calls, b.calls)
	return calls
}

func (b *Backend) CallCount(op Op) int {
	b.Lock()
	defer b.Unlock()

	var n int
	for _, c := range b.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// VerifySignature reports whether signature was produced by this backend for
// data.
func (b *Backend) VerifySignature(data, signature string) bool {
	return b.signer.verify(data, signature)
}

// Grant records an owned purchase of productID without going through a
// purchase intent, as if it had been bought on another device.
func (b *Backend) Grant(productID string) (*iap.PurchaseResult, error) {
	b.Lock()
	defer b.Unlock()

	product := b.product(productID)
	if product == nil {
		return nil, ErrProductNotFound
	}

	p, err := b.grant(product, "")
	if err != nil {
		return nil, err
	}
	return &iap.PurchaseResult{
		ReturnCode:         iap.StatusSuccess,
		ErrMsg:             "success",
		InAppPurchaseData:  p.data,
		InAppDataSignature: p.signature,
	}, nil
}

func (b *Backend) EstablishSession(_ context.Context) (iap.Session, error) {
	b.Lock()
	defer b.Unlock()

	b.calls = append(b.calls, Call{Op: OpEstablishSession})
	if err := b.fault(OpEstablishSession); err != nil {
		return nil, err
	}
	return &session{b: b}, nil
}

func (b *Backend) Resolve(_ context.Context, intent *iap.PurchaseIntent) ([]byte, error) {
	b.Lock()
	defer b.Unlock()

	b.calls = append(b.calls, Call{Op: OpResolve})
	if err := b.fault(OpResolve); err != nil {
		return nil, err
	}
	if b.resolverErr != nil {
		return nil, b.resolverErr
	}

	req, ok := b.intents[intent.PaymentData]
	if !ok {
		return nil, ErrIntentNotFound
	}
	delete(b.intents, intent.PaymentData)

	envelope := resultEnvelope{ReturnCode: b.decision(intent)}
	if envelope.ReturnCode == iap.StatusSuccess {
		product := b.product(req.ProductID)
		if product == nil {
			return nil, ErrProductNotFound
		}

		if b.owns(product.ProductID) {
			envelope.ReturnCode = iap.StatusProductOwned
		} else {
			p, err := b.grant(product, req.DeveloperPayload)
			if err != nil {
				return nil, err
			}
			envelope.InAppPurchaseData = p.data
			envelope.InAppDataSignature = p.signature
		}
	}
	envelope.ErrMsg = envelope.ReturnCode.String()

	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode purchase result")
	}
	return payload, nil
}

func (b *Backend) fault(op Op) error {
	queue := b.faults[op]
	if len(queue) == 0 {
		return nil
	}
	b.faults[op] = queue[1:]
	return queue[0]
}

func (b *Backend) product(productID string) *iap.ProductInfo {
	for _, p := range b.products {
		if p.ProductID == productID {
			return p
		}
	}
	return nil
}

func (b *Backend) owns(productID string) bool {
	for _, p := range b.purchases {
		if !p.consumed && p.product.ProductID == productID {
			return true
		}
	}
	return false
}

func (b *Backend) grant(product *iap.ProductInfo, developerPayload string) (*ownedPurchase, error) {
	record := &iap.InAppPurchaseData{
		OrderID:          uuid.NewString(),
		PackageName:      PackageName,
		ProductID:        product.ProductID,
		ProductName:      product.ProductName,
		PurchaseTime:     time.Now().UnixMilli(),
		PurchaseToken:    product.ProductID + "." + uuid.NewString(),
		DeveloperPayload: developerPayload,
		PriceType:        product.PriceType,
	}

	data, err := record.Marshal()
	if err != nil {
		return nil, err
	}

	p := &ownedPurchase{
		product:   product,
		token:     record.PurchaseToken,
		data:      data,
		signature: b.signer.sign(data),
	}
	b.purchases = append(b.purchases, p)
	b.byToken[p.token] = p

	b.log.Debug("Granted purchase",
		zap.String("product_id", product.ProductID),
		zap.String("purchase_token", p.token),
	)
	return p, nil
}

func cloneProducts(products []*iap.ProductInfo) []*iap.ProductInfo {
	cloned := make([]*iap.ProductInfo, len(products))
	for i, p := range products {
		cloned[i] = p.Clone()
	}
	return cloned
}

type session struct {
	b *Backend
}

func (s *session) QueryProducts(_ context.Context, req *iap.ProductInfoRequest) (*iap.ProductInfoResult, error) {
	b := s.b
	b.Lock()
	defer b.Unlock()

	priceType := req.PriceType
	b.calls = append(b.calls, Call{
		Op:         OpQueryProducts,
		PriceType:  &priceType,
		ProductIDs: req.ProductIDs,
	})
	if err := b.fault(OpQueryProducts); err != nil {
		return nil, err
	}

	wanted := make(map[string]struct{}, len(req.ProductIDs))
	for _, id := range req.ProductIDs {
		wanted[id] = struct{}{}
	}

	products := []*iap.ProductInfo{}
	for _, p := range b.products {
		if p.PriceType != req.PriceType {
			continue
		}
		if _, ok := wanted[p.ProductID]; len(wanted) > 0 && !ok {
			continue
		}
		products = append(products, p.Clone())
	}

	return &iap.ProductInfoResult{
		ReturnCode:      iap.StatusSuccess,
		ErrMsg:          "success",
		ProductInfoList: products,
	}, nil
}

func (s *session) CreatePurchaseIntent(_ context.Context, req *iap.PurchaseIntentRequest) (*iap.PurchaseIntent, error) {
	b := s.b
	b.Lock()
	defer b.Unlock()

	priceType := req.PriceType
	b.calls = append(b.calls, Call{
		Op:        OpCreatePurchaseIntent,
		PriceType: &priceType,
		ProductID: req.ProductID,
	})
	if err := b.fault(OpCreatePurchaseIntent); err != nil {
		return nil, err
	}

	product := b.product(req.ProductID)
	if product == nil {
		return nil, ErrProductNotFound
	}
	if product.PriceType != req.PriceType {
		return nil, ErrPriceTypeMismatch
	}

	intentID := uuid.NewString()
	stored := *req
	b.intents[intentID] = &stored

	return &iap.PurchaseIntent{
		ReturnCode:       iap.StatusSuccess,
		ErrMsg:           "success",
		PaymentData:      intentID,
		PaymentSignature: b.signer.sign(intentID),
	}, nil
}

func (s *session) QueryOwnedPurchases(_ context.Context, req *iap.OwnedPurchasesRequest) (*iap.OwnedPurchasesResult, error) {
	b := s.b
	b.Lock()
	defer b.Unlock()

	call := Call{Op: OpQueryOwnedPurchases, ContinuationToken: req.ContinuationToken}
	if req.PriceType != nil {
		priceType := *req.PriceType
		call.PriceType = &priceType
	}
	b.calls = append(b.calls, call)
	if err := b.fault(OpQueryOwnedPurchases); err != nil {
		return nil, err
	}

	offset := 0
	if req.ContinuationToken != "" {
		n, err := strconv.Atoi(req.ContinuationToken)
		if err != nil || n < 0 {
			return nil, ErrInvalidContinuationToken
		}
		offset = n
	}

	result := &iap.OwnedPurchasesResult{
		ReturnCode:            iap.StatusSuccess,
		ErrMsg:                "success",
		ItemList:              []string{},
		InAppPurchaseDataList: []string{},
		InAppSignature:        []string{},
	}

	// Continuation tokens index into the grant history, so consuming items
	// between pages does not shift later pages.
	for i := min(offset, len(b.purchases)); i < len(b.purchases); i++ {
		p := b.purchases[i]
		if p.consumed {
			continue
		}
		if req.PriceType != nil && p.product.PriceType != *req.PriceType {
			continue
		}
		if b.pageSize > 0 && len(result.ItemList) == b.pageSize {
			result.ContinuationToken = strconv.Itoa(i)
			break
		}

		result.ItemList = append(result.ItemList, p.product.ProductID)
		result.InAppPurchaseDataList = append(result.InAppPurchaseDataList, p.data)
		result.InAppSignature = append(result.InAppSignature, p.signature)
	}
	return result, nil
}

func (s *session) ConsumePurchase(_ context.Context, req *iap.ConsumeRequest) (*iap.ConsumeResult, error) {
	b := s.b
	b.Lock()
	defer b.Unlock()

	b.calls = append(b.calls, Call{Op: OpConsumePurchase, PurchaseToken: req.PurchaseToken})
	if err := b.fault(OpConsumePurchase); err != nil {
		return nil, err
	}

	p, ok := b.byToken[req.PurchaseToken]
	if !ok {
		return nil, ErrProductNotOwned
	}
	if p.consumed {
		return nil, ErrProductConsumed
	}
	if p.product.PriceType != iap.PriceTypeConsumable {
		return nil, ErrNotConsumable
	}
	p.consumed = true

	b.log.Debug("Consumed purchase",
		zap.String("product_id", p.product.ProductID),
		zap.String("purchase_token", p.token),
	)

	return &iap.ConsumeResult{
		ReturnCode:          iap.StatusSuccess,
		ErrMsg:              "success",
		ConsumePurchaseData: p.data,
	}, nil
}

func (s *session) ParsePurchaseResult(payload []byte) *iap.PurchaseResult {
	var envelope resultEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return &iap.PurchaseResult{
			ReturnCode: iap.StatusFailed,
			ErrMsg:     errors.Wrap(err, "failed to decode purchase result").Error(),
		}
	}

	return &iap.PurchaseResult{
		ReturnCode:         envelope.ReturnCode,
		ErrMsg:             envelope.ErrMsg,
		InAppPurchaseData:  envelope.InAppPurchaseData,
		InAppDataSignature: envelope.InAppDataSignature,
	}
}
