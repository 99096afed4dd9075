package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/sales-discount/internal/sales/discount"
)

// DiscountOptions defines the flags of the discount command.
type DiscountOptions struct {
	Mode       string
	Discounts  [3]float64
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// DiscountSummary is the JSON output of the discount command.
type DiscountSummary struct {
	Mode          discount.Mode `json:"discounting_mode"`
	Discounts     [3]float64    `json:"discounts"`
	FinalDiscount float64       `json:"final_discount"`
}

// DiscountCommand prints the single discount equivalent to three stacked ones.
// It returns 1 when the mode is unknown.
func DiscountCommand(opts DiscountOptions) int {
	stdout, stderr := writers(opts.Stdout, opts.Stderr)
	mode, err := discount.ParseMode(opts.Mode)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "discount: %v\n", err)
		return 1
	}
	final, err := discount.Combine(mode, opts.Discounts[:]...)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "discount: %v\n", err)
		return 1
	}

	if opts.JSONOutput {
		summary := DiscountSummary{Mode: mode, Discounts: opts.Discounts, FinalDiscount: final}
		if err := json.NewEncoder(stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(stderr, "discount: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(stdout, "%s %s%% %s%% %s%% -> %s%%\n", mode,
		formatPct(opts.Discounts[0]), formatPct(opts.Discounts[1]), formatPct(opts.Discounts[2]), formatPct(final))
	return 0
}

func formatPct(v float64) string {
	return decimal.NewFromFloat(v).Round(4).String()
}
