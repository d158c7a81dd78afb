package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mnasir786/hms-unity-plugin/iap"
)

// Fixture describes the catalog a backend under test was seeded with. The
// backend must approve purchase confirmations.
type Fixture struct {
	Backend       iap.Backend
	Resolver      iap.Resolver
	Consumable    *iap.ProductInfo
	NonConsumable *iap.ProductInfo
}

// RunBackendTests runs a set of conformance tests against an iap.Backend.
func RunBackendTests(t *testing.T, f Fixture, teardown func()) {
	for _, tf := range []func(t *testing.T, f Fixture){
		testBackend_QueryProducts,
		testBackend_PurchaseAndConsume,
		testBackend_OwnedPurchases,
		testBackend_ConsumeUnknownToken,
	} {
		tf(t, f)
		teardown()
	}
}

func mustSession(t *testing.T, f Fixture) iap.Session {
	session, err := f.Backend.EstablishSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, session)
	return session
}

func purchase(t *testing.T, f Fixture, session iap.Session, product *iap.ProductInfo) *iap.PurchaseResult {
	ctx := context.Background()

	intent, err := session.CreatePurchaseIntent(ctx, &iap.PurchaseIntentRequest{
		PriceType:        product.PriceType,
		ProductID:        product.ProductID,
		DeveloperPayload: "payload",
	})
	require.NoError(t, err)
	require.NotNil(t, intent)

	payload, err := f.Resolver.Resolve(ctx, intent)
	require.NoError(t, err)

	result := session.ParsePurchaseResult(payload)
	require.NotNil(t, result)
	require.Equal(t, iap.StatusSuccess, result.ReturnCode)
	return result
}

func testBackend_QueryProducts(t *testing.T, f Fixture) {
	ctx := context.Background()
	session := mustSession(t, f)

	consumables, err := session.QueryProducts(ctx, &iap.ProductInfoRequest{
		PriceType:  iap.PriceTypeConsumable,
		ProductIDs: []string{f.Consumable.ProductID, f.NonConsumable.ProductID},
	})
	require.NoError(t, err)
	require.Len(t, consumables.ProductInfoList, 1)
	require.Equal(t, f.Consumable.ProductID, consumables.ProductInfoList[0].ProductID)

	nonConsumables, err := session.QueryProducts(ctx, &iap.ProductInfoRequest{
		PriceType:  iap.PriceTypeNonConsumable,
		ProductIDs: []string{f.Consumable.ProductID, f.NonConsumable.ProductID},
	})
	require.NoError(t, err)
	require.Len(t, nonConsumables.ProductInfoList, 1)
	require.Equal(t, f.NonConsumable.ProductID, nonConsumables.ProductInfoList[0].ProductID)

	unknown, err := session.QueryProducts(ctx, &iap.ProductInfoRequest{
		PriceType:  iap.PriceTypeConsumable,
		ProductIDs: []string{"does-not-exist"},
	})
	require.NoError(t, err)
	require.Empty(t, unknown.ProductInfoList)
}

func testBackend_PurchaseAndConsume(t *testing.T, f Fixture) {
	ctx := context.Background()
	session := mustSession(t, f)

	result := purchase(t, f, session, f.Consumable)

	data, err := iap.ParsePurchaseData(result.InAppPurchaseData)
	require.NoError(t, err)
	require.Equal(t, f.Consumable.ProductID, data.ProductID)
	require.Equal(t, "payload", data.DeveloperPayload)

	token, err := result.RedemptionToken()
	require.NoError(t, err)
	require.Equal(t, data.PurchaseToken, token)

	_, err = session.ConsumePurchase(ctx, &iap.ConsumeRequest{PurchaseToken: token})
	require.NoError(t, err)

	_, err = session.ConsumePurchase(ctx, &iap.ConsumeRequest{PurchaseToken: token})
	require.Error(t, err)
}

func testBackend_OwnedPurchases(t *testing.T, f Fixture) {
	ctx := context.Background()
	session := mustSession(t, f)

	purchase(t, f, session, f.Consumable)
	purchase(t, f, session, f.NonConsumable)

	priceType := iap.PriceTypeNonConsumable
	owned, err := session.QueryOwnedPurchases(ctx, &iap.OwnedPurchasesRequest{PriceType: &priceType})
	require.NoError(t, err)
	require.Equal(t, []string{f.NonConsumable.ProductID}, owned.ItemList)
	require.Len(t, owned.InAppPurchaseDataList, 1)

	all, err := session.QueryOwnedPurchases(ctx, &iap.OwnedPurchasesRequest{})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{f.Consumable.ProductID, f.NonConsumable.ProductID}, all.ItemList)
	require.Len(t, all.InAppSignature, len(all.InAppPurchaseDataList))
}

func testBackend_ConsumeUnknownToken(t *testing.T, f Fixture) {
	session := mustSession(t, f)

	_, err := session.ConsumePurchase(context.Background(), &iap.ConsumeRequest{PurchaseToken: "unknown"})
	require.Error(t, err)
}
