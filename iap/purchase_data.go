package iap

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// InAppPurchaseData is the decoded vendor purchase record.
type InAppPurchaseData struct {
	OrderID          string    `json:"orderId"`
	PackageName      string    `json:"packageName"`
	ProductID        string    `json:"productId"`
	ProductName      string    `json:"productName,omitempty"`
	PurchaseTime     int64     `json:"purchaseTime"`
	PurchaseToken    string    `json:"purchaseToken"`
	DeveloperPayload string    `json:"developerPayload,omitempty"`
	PriceType        PriceType `json:"kind"`
	PurchaseState    int       `json:"purchaseState"`
	ConsumptionState int       `json:"consumptionState"`
}

// ParsePurchaseData decodes a raw purchase record.
func ParsePurchaseData(raw string) (*InAppPurchaseData, error) {
	var data InAppPurchaseData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, errors.Wrap(err, "failed to decode purchase data")
	}
	return &data, nil
}

// RedemptionToken extracts the purchase token from a raw purchase record.
func RedemptionToken(raw string) (string, error) {
	data, err := ParsePurchaseData(raw)
	if err != nil {
		return "", err
	}
	if data.PurchaseToken == "" {
		return "", ErrMissingPurchaseToken
	}
	return data.PurchaseToken, nil
}

// Marshal encodes the record in the vendor's wire form.
func (d *InAppPurchaseData) Marshal() (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode purchase data")
	}
	return string(b), nil
}
