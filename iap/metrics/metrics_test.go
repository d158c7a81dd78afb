package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mnasir786/hms-unity-plugin/iap"
	"github.com/mnasir786/hms-unity-plugin/iap/memory"
	"github.com/mnasir786/hms-unity-plugin/iap/tests"
)

var coins = &iap.ProductInfo{ProductID: "coins_100", PriceType: iap.PriceTypeConsumable}

func TestCollector_CountsNotifications(t *testing.T) {
	ctx := context.Background()
	recorder := tests.NewRecorder()

	c := newCollector()
	require.NoError(t, c.register(prometheus.NewRegistry()))

	b, err := memory.NewBackend(zap.NewNop(), coins)
	require.NoError(t, err)
	m := iap.NewManager(zap.NewNop(), b, b, c.wrap(recorder.Handlers()), iap.WithExecutor(iap.InlineExecutor))

	m.ObtainProductInfo(ctx, nil)
	m.CheckAvailability(ctx)
	m.BuyProduct(ctx, coins)

	b.SetResolverError(errors.New("activity destroyed"))
	m.BuyProduct(ctx, coins)

	count := func(op iap.Operation, outcome string) float64 {
		return testutil.ToFloat64(c.notifications.WithLabelValues(string(op), outcome))
	}
	require.Equal(t, 1.0, count(iap.OperationObtainProductInfo, OutcomeFailure))
	require.Equal(t, 1.0, count(iap.OperationCheckAvailability, OutcomeSuccess))
	require.Equal(t, 1.0, count(iap.OperationBuyProduct, OutcomeSuccess))
	require.Equal(t, 0.0, count(iap.OperationBuyProduct, OutcomeFailure))
	require.Equal(t, 1.0, testutil.ToFloat64(c.loggedOnly.WithLabelValues(string(iap.OperationBuyProduct))))

	// The wrapped handlers still fire.
	require.Len(t, recorder.Fired(iap.OperationBuyProduct), 1)
	require.Len(t, recorder.LoggedOnly(iap.OperationBuyProduct), 1)
}

func TestCollector_NilHandlers(t *testing.T) {
	c := newCollector()
	h := c.wrap(iap.Handlers{})

	h.OnRecoverPurchasesSuccess()
	h.OnConsumePurchaseFailure(errors.New("boom"))
	h.OnLoggedOnly(iap.OperationRecoverPurchases, errors.New("boom"))

	require.Equal(t, 1.0, testutil.ToFloat64(c.notifications.WithLabelValues(string(iap.OperationRecoverPurchases), OutcomeSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(c.notifications.WithLabelValues(string(iap.OperationConsumePurchase), OutcomeFailure)))
	require.Equal(t, 1.0, testutil.ToFloat64(c.loggedOnly.WithLabelValues(string(iap.OperationRecoverPurchases))))
}

func TestInstrument(t *testing.T) {
	reg := prometheus.NewRegistry()

	h, err := Instrument(iap.Handlers{}, reg)
	require.NoError(t, err)
	h.OnCheckAvailabilitySuccess()

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	require.Contains(t, names, "iap_notifications_total")

	_, err = Instrument(iap.Handlers{}, reg)
	require.Error(t, err)
}
