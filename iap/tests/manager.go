package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mnasir786/hms-unity-plugin/iap"
)

// RunManagerTests runs the purchase lifecycle end to end through an
// iap.Manager on top of the fixture's backend.
func RunManagerTests(t *testing.T, f Fixture, teardown func()) {
	for _, tf := range []func(t *testing.T, f Fixture){
		testManager_Lifecycle,
		testManager_Recover,
	} {
		tf(t, f)
		teardown()
	}
}

func newManager(t *testing.T, f Fixture) (*iap.Manager, *Recorder) {
	recorder := NewRecorder()
	m := iap.NewManager(zap.Must(zap.NewDevelopment()), f.Backend, f.Resolver, recorder.Handlers(),
		iap.WithExecutor(iap.InlineExecutor),
	)

	m.CheckAvailability(context.Background())
	recorder.RequireOne(t, iap.OperationCheckAvailability)
	require.Equal(t, iap.AvailabilityAvailable, m.State())
	return m, recorder
}

func testManager_Lifecycle(t *testing.T, f Fixture) {
	ctx := context.Background()
	m, recorder := newManager(t, f)

	m.ObtainProductInfo(ctx, []string{f.Consumable.ProductID, f.NonConsumable.ProductID})
	n := recorder.RequireOne(t, iap.OperationObtainProductInfo)
	require.Equal(t, OutcomeSuccess, n.Outcome)

	catalog := n.Payload.([]*iap.ProductInfoResult)
	require.Len(t, catalog, 2)
	require.Len(t, catalog[0].ProductInfoList, 1)
	require.Equal(t, f.Consumable.ProductID, catalog[0].ProductInfoList[0].ProductID)
	require.Len(t, catalog[1].ProductInfoList, 1)
	require.Equal(t, f.NonConsumable.ProductID, catalog[1].ProductInfoList[0].ProductID)

	m.BuyProduct(ctx, catalog[0].ProductInfoList[0])
	n = recorder.RequireOne(t, iap.OperationBuyProduct)
	require.Equal(t, OutcomeSuccess, n.Outcome)
	result := n.Payload.(*iap.PurchaseResult)
	require.Equal(t, iap.StatusSuccess, result.ReturnCode)

	m.ConsumePurchase(ctx, result)
	n = recorder.RequireOne(t, iap.OperationConsumePurchase)
	require.Equal(t, OutcomeSuccess, n.Outcome)

	m.ConsumePurchase(ctx, result)
	fired := recorder.Fired(iap.OperationConsumePurchase)
	require.Len(t, fired, 2)
	require.Equal(t, OutcomeFailure, fired[1].Outcome)
	require.Error(t, fired[1].Err)

	m.BuyProduct(ctx, catalog[1].ProductInfoList[0])
	m.ObtainOwnedPurchases(ctx)
	n = recorder.RequireOne(t, iap.OperationObtainOwnedPurchases)
	require.Equal(t, OutcomeSuccess, n.Outcome)
	owned := n.Payload.(*iap.OwnedPurchasesResult)
	require.Equal(t, []string{f.NonConsumable.ProductID}, owned.ItemList)

	m.BuyProduct(ctx, catalog[1].ProductInfoList[0])
	fired = recorder.Fired(iap.OperationBuyProduct)
	require.Len(t, fired, 3)
	code, ok := iap.StatusCodeOf(fired[2].Err)
	require.True(t, ok)
	require.Equal(t, iap.StatusProductOwned, code)

	require.Empty(t, recorder.LoggedOnly(iap.OperationBuyProduct))
}

func testManager_Recover(t *testing.T, f Fixture) {
	ctx := context.Background()
	m, recorder := newManager(t, f)

	m.BuyProduct(ctx, f.Consumable)
	m.BuyProduct(ctx, f.NonConsumable)
	require.Len(t, recorder.Fired(iap.OperationBuyProduct), 2)

	m.RecoverPurchases(ctx)
	n := recorder.RequireOne(t, iap.OperationRecoverPurchases)
	require.Equal(t, OutcomeSuccess, n.Outcome)

	// The consumable is gone, the non-consumable cannot be consumed and only
	// shows up as a logged-only failure.
	require.Len(t, recorder.LoggedOnly(iap.OperationRecoverPurchases), 1)
	require.Empty(t, recorder.Fired(iap.OperationConsumePurchase))

	m.BuyProduct(ctx, f.Consumable)
	fired := recorder.Fired(iap.OperationBuyProduct)
	require.Len(t, fired, 3)
	require.Equal(t, OutcomeSuccess, fired[2].Outcome)
}
