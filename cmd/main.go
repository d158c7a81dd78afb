package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mnasir786/hms-unity-plugin/iap"
	"github.com/mnasir786/hms-unity-plugin/iap/breaker"
	"github.com/mnasir786/hms-unity-plugin/iap/cache"
	"github.com/mnasir786/hms-unity-plugin/iap/memory"
	"github.com/mnasir786/hms-unity-plugin/iap/metrics"
)

var sampleCatalog = []*iap.ProductInfo{
	{
		ProductID:   "coins_100",
		PriceType:   iap.PriceTypeConsumable,
		ProductName: "100 Coins",
		ProductDesc: "A small pouch of coins",
		Price:       "$0.99",
		MicrosPrice: 990000,
		Currency:    "USD",
	},
	{
		ProductID:   "coins_500",
		PriceType:   iap.PriceTypeConsumable,
		ProductName: "500 Coins",
		ProductDesc: "A chest of coins",
		Price:       "$3.99",
		MicrosPrice: 3990000,
		Currency:    "USD",
	},
	{
		ProductID:   "remove_ads",
		PriceType:   iap.PriceTypeNonConsumable,
		ProductName: "Remove Ads",
		ProductDesc: "Never see an ad again",
		Price:       "$2.99",
		MicrosPrice: 2990000,
		Currency:    "USD",
	},
}

type flags struct {
	products []string
	buy      string
	decision string
	recover  bool
	metrics  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "iapdemo",
		Short: "Run a purchase lifecycle against the in-memory store",
		Long: `iapdemo checks availability, fetches the product catalog, optionally buys a
product and then either consumes it or runs a full entitlement recovery sweep.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}

	cmd.Flags().StringSliceVar(&f.products, "product", []string{"coins_100", "coins_500", "remove_ads"}, "product ids to fetch")
	cmd.Flags().StringVar(&f.buy, "buy", "", "product id to buy")
	cmd.Flags().StringVar(&f.decision, "decision", "approve", "purchase confirmation outcome (approve|cancel)")
	cmd.Flags().BoolVar(&f.recover, "recover", false, "recover owned purchases instead of consuming the new one")
	cmd.Flags().BoolVar(&f.metrics, "metrics", false, "print notification counters when done")
	return cmd
}

func run(ctx context.Context, f flags) error {
	cfg, err := iap.LoadConfig()
	if err != nil {
		return err
	}
	log, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	store, err := memory.NewBackend(log, sampleCatalog...)
	if err != nil {
		return err
	}
	switch f.decision {
	case "approve":
		store.SetDecision(memory.Approve)
	case "cancel":
		store.SetDecision(memory.Cancel)
	default:
		return errors.Errorf("unknown decision %q", f.decision)
	}

	var backend iap.Backend = store
	if cfg.BreakerFailures > 0 {
		backend = breaker.NewBackend(log, backend, breaker.Config{
			Name:             "iap",
			FailureThreshold: cfg.BreakerFailures,
			Timeout:          cfg.BreakerTimeout,
			IsSuccessful: func(err error) bool {
				return err == nil || memory.IsRejection(err)
			},
		})
	}
	if cfg.CatalogCacheTTL > 0 {
		cached := cache.NewBackend(backend, cfg.CatalogCacheTTL)
		defer cached.Close()
		backend = cached
	}

	reg := prometheus.NewRegistry()
	p := &printer{}
	handlers, err := metrics.Instrument(p.handlers(), reg)
	if err != nil {
		return errors.Wrap(err, "failed to register metrics")
	}

	opts := append(cfg.Options(), iap.WithExecutor(iap.InlineExecutor))
	m := iap.NewManager(log, backend, store, handlers, opts...)

	m.CheckAvailability(ctx)
	if m.State() != iap.AvailabilityAvailable {
		return iap.ErrNotAvailable
	}

	m.ObtainProductInfo(ctx, f.products)

	if f.buy != "" {
		product := p.product(f.buy)
		if product == nil {
			return errors.Errorf("product %q is not in the catalog", f.buy)
		}

		m.BuyProduct(ctx, product)
		if p.purchase != nil && !f.recover && product.PriceType == iap.PriceTypeConsumable {
			m.ConsumePurchase(ctx, p.purchase)
		}
	}

	if f.recover {
		m.RecoverPurchases(ctx)
	}
	m.ObtainOwnedPurchases(ctx)

	if f.metrics {
		return printMetrics(reg)
	}
	return nil
}

// printer prints every notification and remembers what later steps need.
type printer struct {
	catalog  []*iap.ProductInfoResult
	purchase *iap.PurchaseResult
}

func (p *printer) product(productID string) *iap.ProductInfo {
	for _, result := range p.catalog {
		for _, product := range result.ProductInfoList {
			if product.ProductID == productID {
				return product
			}
		}
	}
	return nil
}

func (p *printer) handlers() iap.Handlers {
	failed := func(op iap.Operation) func(error) {
		return func(err error) {
			fmt.Printf("%s: failed: %v\n", op, err)
		}
	}

	return iap.Handlers{
		OnCheckAvailabilitySuccess: func() {
			fmt.Println("check_availability: available")
		},
		OnCheckAvailabilityFailure: failed(iap.OperationCheckAvailability),

		OnObtainProductInfoSuccess: func(results []*iap.ProductInfoResult) {
			p.catalog = results
			for _, result := range results {
				for _, product := range result.ProductInfoList {
					fmt.Printf("obtain_product_info: %-12s %-14s %s %s\n", product.ProductID, product.PriceType, product.Price, product.ProductName)
				}
			}
		},
		OnObtainProductInfoFailure: failed(iap.OperationObtainProductInfo),

		OnBuyProductSuccess: func(result *iap.PurchaseResult) {
			p.purchase = result
			data, err := iap.ParsePurchaseData(result.InAppPurchaseData)
			if err != nil {
				fmt.Printf("buy_product: succeeded with unreadable data: %v\n", err)
				return
			}
			fmt.Printf("buy_product: bought %s (order %s)\n", data.ProductID, data.OrderID)
		},
		OnBuyProductFailure: failed(iap.OperationBuyProduct),

		OnConsumePurchaseSuccess: func() {
			fmt.Println("consume_purchase: consumed")
		},
		OnConsumePurchaseFailure: failed(iap.OperationConsumePurchase),

		OnObtainOwnedPurchasesSuccess: func(result *iap.OwnedPurchasesResult) {
			if len(result.ItemList) == 0 {
				fmt.Println("obtain_owned_purchases: none")
				return
			}
			fmt.Printf("obtain_owned_purchases: %s\n", strings.Join(result.ItemList, ", "))
		},
		OnObtainOwnedPurchasesFailure: failed(iap.OperationObtainOwnedPurchases),

		OnRecoverPurchasesSuccess: func() {
			fmt.Println("recover_purchases: done")
		},
		OnRecoverPurchasesFailure: failed(iap.OperationRecoverPurchases),

		OnLoggedOnly: func(op iap.Operation, err error) {
			fmt.Printf("%s: logged: %v\n", op, err)
		},
	}
}

func printMetrics(reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return errors.Wrap(err, "failed to gather metrics")
	}

	for _, family := range families {
		for _, metric := range family.GetMetric() {
			if metric.GetCounter().GetValue() == 0 {
				continue
			}

			var labels []string
			for _, label := range metric.GetLabel() {
				labels = append(labels, label.GetName()+"="+label.GetValue())
			}
			fmt.Printf("%s{%s} %v\n", family.GetName(), strings.Join(labels, ","), metric.GetCounter().GetValue())
		}
	}
	return nil
}
