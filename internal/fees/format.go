package fees

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/kalshimm/internal/domain"
)

// FormatFeeCalculation renders a fee breakdown for terminal output.
func FormatFeeCalculation(c domain.FeeCalculation) string {
	var sb strings.Builder
	sb.WriteString("Fee Calculation:\n")
	fmt.Fprintf(&sb, "  Contracts:     %d\n", c.Contracts)
	fmt.Fprintf(&sb, "  Price:         %d¢ (%.2f)\n", c.PriceCents, c.PriceDecimal)
	fmt.Fprintf(&sb, "  Fee Rate:      %.2f%%\n", c.FeeRate*100)
	fmt.Fprintf(&sb, "  Risk/Contract: $%.4f\n", c.RiskPerContract)
	fmt.Fprintf(&sb, "  Total Risk:    $%.2f\n", c.TotalRisk)
	fmt.Fprintf(&sb, "  Fee:           %.4f¢ ($%.6f)", c.FeeCents, c.FeeDollars)
	return sb.String()
}

// FormatProfitabilityAnalysis renders a round-trip analysis for terminal
// output.
func FormatProfitabilityAnalysis(a domain.ProfitabilityAnalysis) string {
	rule := strings.Repeat("=", 60)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\nProfitability Analysis\n%s\n", rule, rule)

	sb.WriteString("\nTrade Details:\n")
	fmt.Fprintf(&sb, "  Contracts:     %d\n", a.Contracts)
	fmt.Fprintf(&sb, "  Entry:         %d¢\n", a.EntryPriceCents)
	fmt.Fprintf(&sb, "  Exit:          %d¢\n", a.ExitPriceCents)
	fmt.Fprintf(&sb, "  Spread:        %d¢\n", a.SpreadCents)

	sb.WriteString("\nGross P&L (before fees):\n")
	fmt.Fprintf(&sb, "  Total:         %.2f¢ ($%.4f)\n", a.GrossProfitCents, a.GrossProfitDollars)
	fmt.Fprintf(&sb, "  Per Contract:  %d¢\n", a.SpreadCents)

	sb.WriteString("\nFees:\n")
	fmt.Fprintf(&sb, "  Entry Fee:     %.4f¢ ($%.6f)\n", a.EntryFee.FeeCents, a.EntryFee.FeeDollars)
	fmt.Fprintf(&sb, "  Exit Fee:      %.4f¢ ($%.6f)\n", a.ExitFee.FeeCents, a.ExitFee.FeeDollars)
	fmt.Fprintf(&sb, "  Total Fees:    %.4f¢ ($%.6f)\n", a.TotalFeesCents, a.TotalFeesDollars)

	sb.WriteString("\nNet P&L (after fees):\n")
	fmt.Fprintf(&sb, "  Total:         %.2f¢ ($%.4f)\n", a.NetProfitCents, a.NetProfitDollars)
	fmt.Fprintf(&sb, "  Per Contract:  %.4f¢\n", a.ProfitPerContractCents)
	fmt.Fprintf(&sb, "  ROI:           %.2f%%\n", a.ROIPercent)

	status := "❌ UNPROFITABLE"
	if a.IsProfitable {
		status = "✅ PROFITABLE"
	}
	fmt.Fprintf(&sb, "\nStatus: %s\n%s", status, rule)

	return sb.String()
}
