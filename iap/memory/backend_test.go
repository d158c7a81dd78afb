package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mnasir786/hms-unity-plugin/iap"
	"github.com/mnasir786/hms-unity-plugin/iap/tests"
)

var (
	coins = &iap.ProductInfo{
		ProductID:   "coins_100",
		PriceType:   iap.PriceTypeConsumable,
		ProductName: "100 Coins",
		Price:       "$0.99",
		MicrosPrice: 990000,
		Currency:    "USD",
	}
	noAds = &iap.ProductInfo{
		ProductID:   "remove_ads",
		PriceType:   iap.PriceTypeNonConsumable,
		ProductName: "Remove Ads",
		Price:       "$2.99",
		MicrosPrice: 2990000,
		Currency:    "USD",
	}
)

func newTestBackend(t *testing.T) *Backend {
	b, err := NewBackend(zap.NewNop(), coins, noAds)
	require.NoError(t, err)
	return b
}

func TestMemoryBackend(t *testing.T) {
	b := newTestBackend(t)
	fixture := tests.Fixture{
		Backend:       b,
		Resolver:      b,
		Consumable:    coins,
		NonConsumable: noAds,
	}

	tests.RunBackendTests(t, fixture, b.reset)
}

func TestMemoryBackend_Manager(t *testing.T) {
	b := newTestBackend(t)
	fixture := tests.Fixture{
		Backend:       b,
		Resolver:      b,
		Consumable:    coins,
		NonConsumable: noAds,
	}

	tests.RunManagerTests(t, fixture, b.reset)
}

func TestMemoryBackend_Signature(t *testing.T) {
	b := newTestBackend(t)

	result, err := b.Grant(coins.ProductID)
	require.NoError(t, err)
	require.True(t, b.VerifySignature(result.InAppPurchaseData, result.InAppDataSignature))
	require.False(t, b.VerifySignature(result.InAppPurchaseData+"x", result.InAppDataSignature))
	require.False(t, b.VerifySignature(result.InAppPurchaseData, "not base64"))

	_, err = b.Grant("unknown")
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestMemoryBackend_Paging(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	b.SetPageSize(2)

	for i := 0; i < 3; i++ {
		_, err := b.Grant(coins.ProductID)
		require.NoError(t, err)
	}

	session, err := b.EstablishSession(ctx)
	require.NoError(t, err)

	first, err := session.QueryOwnedPurchases(ctx, &iap.OwnedPurchasesRequest{})
	require.NoError(t, err)
	require.Len(t, first.InAppPurchaseDataList, 2)
	require.Equal(t, "2", first.ContinuationToken)

	second, err := session.QueryOwnedPurchases(ctx, &iap.OwnedPurchasesRequest{ContinuationToken: first.ContinuationToken})
	require.NoError(t, err)
	require.Len(t, second.InAppPurchaseDataList, 1)
	require.Empty(t, second.ContinuationToken)

	_, err = session.QueryOwnedPurchases(ctx, &iap.OwnedPurchasesRequest{ContinuationToken: "bogus"})
	require.ErrorIs(t, err, ErrInvalidContinuationToken)
}

func TestMemoryBackend_Faults(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	boom := errors.New("boom")

	b.FailNext(OpEstablishSession, boom)
	_, err := b.EstablishSession(ctx)
	require.ErrorIs(t, err, boom)

	session, err := b.EstablishSession(ctx)
	require.NoError(t, err)

	b.FailNext(OpQueryProducts, nil, boom)
	_, err = session.QueryProducts(ctx, &iap.ProductInfoRequest{})
	require.NoError(t, err)
	_, err = session.QueryProducts(ctx, &iap.ProductInfoRequest{})
	require.ErrorIs(t, err, boom)
	_, err = session.QueryProducts(ctx, &iap.ProductInfoRequest{})
	require.NoError(t, err)

	require.Equal(t, 3, b.CallCount(OpQueryProducts))
	require.Equal(t, 2, b.CallCount(OpEstablishSession))

	require.False(t, IsRejection(boom))
	require.False(t, IsRejection(nil))
	require.True(t, IsRejection(ErrNotConsumable))
}

func TestMemoryBackend_IntentValidation(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	session, err := b.EstablishSession(ctx)
	require.NoError(t, err)

	_, err = session.CreatePurchaseIntent(ctx, &iap.PurchaseIntentRequest{ProductID: "unknown"})
	require.ErrorIs(t, err, ErrProductNotFound)

	_, err = session.CreatePurchaseIntent(ctx, &iap.PurchaseIntentRequest{
		PriceType: iap.PriceTypeNonConsumable,
		ProductID: coins.ProductID,
	})
	require.ErrorIs(t, err, ErrPriceTypeMismatch)

	_, err = b.Resolve(ctx, &iap.PurchaseIntent{PaymentData: "unknown"})
	require.ErrorIs(t, err, ErrIntentNotFound)
}

func TestMemoryBackend_ParseGarbage(t *testing.T) {
	b := newTestBackend(t)

	session, err := b.EstablishSession(context.Background())
	require.NoError(t, err)

	result := session.ParsePurchaseResult([]byte("not json"))
	require.Equal(t, iap.StatusFailed, result.ReturnCode)
	require.NotEmpty(t, result.ErrMsg)
}
