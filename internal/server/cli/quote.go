package cli

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/neoma/internal/server/pricing"
	"github.com/spf13/cobra"
)

type quoteOptions struct {
	format   string
	quality  string
	promo    string
	version  string
	catalog  string
	quantity int
}

func newQuoteCmd(env *Env) *cobra.Command {
	o := &quoteOptions{}
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Print display and checkout prices for a poster",
		Example: `  neomactl quote --format A2 --quality premium
  neomactl quote --format A2 --quality premium --promo NEOMA25`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(env, o.catalog)
			if err != nil {
				return err
			}

			cat := reg.Current()
			if o.version != "" {
				c, ok := reg.Get(o.version)
				if !ok {
					return fmt.Errorf("unknown catalog version %q (known: %s)", o.version, strings.Join(reg.Versions(), ", "))
				}
				cat = c
			}

			f, err := pricing.ParseFormat(o.format)
			if err != nil {
				return err
			}
			q, err := pricing.ParseQuality(o.quality)
			if err != nil {
				return err
			}

			quote, err := cat.NewQuote([]pricing.Item{{Format: f, Quality: q, Quantity: o.quantity}})
			if err != nil {
				return err
			}
			if o.promo != "" {
				if err := quote.ApplyPromo(o.promo); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "catalog:   %s\n", quote.Version())
			fmt.Fprintf(out, "item:      %d x %s %s\n", quote.ItemCount(), f, q)
			fmt.Fprintf(out, "display:   %s\n", cents(quote.SubtotalCents, cat.Currency))
			if quote.PromoCode != "" {
				fmt.Fprintf(out, "promo:     %s (-%d%%)\n", quote.PromoCode, quote.PercentOff)
				fmt.Fprintf(out, "goods:     %s\n", cents(quote.DiscountedCents(), cat.Currency))
			}
			fmt.Fprintf(out, "shipping:  %s\n", cents(quote.ShippingCents(), cat.Currency))
			fmt.Fprintf(out, "checkout:  %s\n", cents(quote.TotalCents(), cat.Currency))
			return nil
		},
	}

	cmd.Flags().StringVar(&o.format, "format", "", "poster format (A4..A0)")
	cmd.Flags().StringVar(&o.quality, "quality", "", "print quality (standard, superior, premium)")
	cmd.Flags().StringVar(&o.promo, "promo", "", "promo code to apply")
	cmd.Flags().StringVar(&o.version, "version", "", "catalog version (default: current)")
	cmd.Flags().StringVar(&o.catalog, "catalog", "", "YAML catalog file (default: configured pricing file)")
	cmd.Flags().IntVar(&o.quantity, "quantity", 1, "number of posters")
	_ = cmd.MarkFlagRequired("format")
	_ = cmd.MarkFlagRequired("quality")
	return cmd
}

func newCatalogCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Pricing catalog tools",
	}

	var file string
	check := &cobra.Command{
		Use:   "check",
		Short: "Validate a catalog file and list its versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(env, file)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, v := range reg.Versions() {
				marker := " "
				if v == reg.Current().Version {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\n", marker, v)
			}
			return nil
		},
	}
	check.Flags().StringVar(&file, "file", "", "YAML catalog file (default: configured pricing file)")
	cmd.AddCommand(check)
	return cmd
}

func loadRegistry(env *Env, file string) (*pricing.Registry, error) {
	if file == "" {
		file = env.LoadConfig().PricingCatalogFile
	}
	return pricing.LoadRegistry(file)
}

func cents(amount int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", amount/100, amount%100, strings.ToUpper(currency))
}
