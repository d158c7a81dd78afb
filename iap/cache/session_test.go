package cache

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mnasir786/hms-unity-plugin/iap"
	"github.com/mnasir786/hms-unity-plugin/iap/memory"
	"github.com/mnasir786/hms-unity-plugin/iap/tests"
)

var coins = &iap.ProductInfo{ProductID: "coins_100", PriceType: iap.PriceTypeConsumable, Price: "$0.99"}

func TestSession_CachesProductQueries(t *testing.T) {
	ctx := context.Background()
	b, err := memory.NewBackend(zap.NewNop(), coins)
	require.NoError(t, err)

	backend := NewBackend(b, time.Minute)
	defer backend.Close()

	session, err := backend.EstablishSession(ctx)
	require.NoError(t, err)

	req := &iap.ProductInfoRequest{PriceType: iap.PriceTypeConsumable, ProductIDs: []string{"b", coins.ProductID}}
	first, err := session.QueryProducts(ctx, req)
	require.NoError(t, err)
	require.Len(t, first.ProductInfoList, 1)

	// Mutating a returned result must not leak into the cache.
	first.ProductInfoList[0].Price = "free"

	reordered := &iap.ProductInfoRequest{PriceType: iap.PriceTypeConsumable, ProductIDs: []string{coins.ProductID, "b"}}
	second, err := session.QueryProducts(ctx, reordered)
	require.NoError(t, err)
	require.Equal(t, "$0.99", second.ProductInfoList[0].Price)
	require.Equal(t, 1, b.CallCount(memory.OpQueryProducts))

	_, err = session.QueryProducts(ctx, &iap.ProductInfoRequest{PriceType: iap.PriceTypeNonConsumable, ProductIDs: req.ProductIDs})
	require.NoError(t, err)
	require.Equal(t, 2, b.CallCount(memory.OpQueryProducts))
}

func TestSession_DoesNotCacheFailures(t *testing.T) {
	ctx := context.Background()
	b, err := memory.NewBackend(zap.NewNop(), coins)
	require.NoError(t, err)

	inner, err := b.EstablishSession(ctx)
	require.NoError(t, err)
	session := NewSession(inner, time.Minute)
	defer session.Close()

	boom := errors.New("boom")
	b.FailNext(memory.OpQueryProducts, boom)

	req := &iap.ProductInfoRequest{PriceType: iap.PriceTypeConsumable}
	_, err = session.QueryProducts(ctx, req)
	require.ErrorIs(t, err, boom)

	result, err := session.QueryProducts(ctx, req)
	require.NoError(t, err)
	require.Len(t, result.ProductInfoList, 1)
	require.Equal(t, 2, b.CallCount(memory.OpQueryProducts))
}

func TestSession_PassesThrough(t *testing.T) {
	ctx := context.Background()
	b, err := memory.NewBackend(zap.NewNop(), coins)
	require.NoError(t, err)

	backend := NewBackend(b, time.Minute)
	defer backend.Close()

	b.FailNext(memory.OpEstablishSession, errors.New("network down"))
	_, err = backend.EstablishSession(ctx)
	require.Error(t, err)

	granted, err := b.Grant(coins.ProductID)
	require.NoError(t, err)
	token, err := granted.RedemptionToken()
	require.NoError(t, err)

	session, err := backend.EstablishSession(ctx)
	require.NoError(t, err)

	_, err = session.ConsumePurchase(ctx, &iap.ConsumeRequest{PurchaseToken: token})
	require.NoError(t, err)
	require.Equal(t, 1, b.CallCount(memory.OpConsumePurchase))
}

func TestSession_ProductIDsAreNotSplit(t *testing.T) {
	ctx := context.Background()
	b, err := memory.NewBackend(zap.NewNop(),
		&iap.ProductInfo{ProductID: "a", PriceType: iap.PriceTypeConsumable},
		&iap.ProductInfo{ProductID: "b", PriceType: iap.PriceTypeConsumable},
		&iap.ProductInfo{ProductID: "a,b", PriceType: iap.PriceTypeConsumable},
	)
	require.NoError(t, err)

	inner, err := b.EstablishSession(ctx)
	require.NoError(t, err)
	session := NewSession(inner, time.Minute)
	defer session.Close()

	pair, err := session.QueryProducts(ctx, &iap.ProductInfoRequest{ProductIDs: []string{"a", "b"}})
	require.NoError(t, err)
	require.Len(t, pair.ProductInfoList, 2)

	joined, err := session.QueryProducts(ctx, &iap.ProductInfoRequest{ProductIDs: []string{"a,b"}})
	require.NoError(t, err)
	require.Len(t, joined.ProductInfoList, 1)
	require.Equal(t, "a,b", joined.ProductInfoList[0].ProductID)
	require.Equal(t, 2, b.CallCount(memory.OpQueryProducts))
}

func TestBackend_SharesCacheAcrossSessions(t *testing.T) {
	ctx := context.Background()
	b, err := memory.NewBackend(zap.NewNop(), coins)
	require.NoError(t, err)

	backend := NewBackend(b, time.Minute)
	defer backend.Close()

	recorder := tests.NewRecorder()
	m := iap.NewManager(zap.NewNop(), backend, b, recorder.Handlers(), iap.WithExecutor(iap.InlineExecutor))

	before := runtime.NumGoroutine()
	for i := 0; i < 50; i++ {
		m.CheckAvailability(ctx)
	}
	require.Len(t, recorder.Fired(iap.OperationCheckAvailability), 50)
	require.LessOrEqual(t, runtime.NumGoroutine(), before+1)

	// A catalog cached before a re-check is still served after it.
	m.ObtainProductInfo(ctx, []string{coins.ProductID})
	m.CheckAvailability(ctx)
	m.ObtainProductInfo(ctx, []string{coins.ProductID})
	require.Len(t, recorder.Fired(iap.OperationObtainProductInfo), 2)
	require.Equal(t, 2, b.CallCount(memory.OpQueryProducts))
}
