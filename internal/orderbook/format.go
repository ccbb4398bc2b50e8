package orderbook

import (
	"fmt"
	"strings"
)

const ruleWidth = 60

// Format renders the top levels of b as a two-column ladder, asks on the left
// and bids on the right, preceded by warnings for degenerate books.
func Format(b *Book, levels int) string {
	var sb strings.Builder
	rule := strings.Repeat("=", ruleWidth)

	fmt.Fprintf(&sb, "\n%s\nOrder Book: %s\n%s\n", rule, b.ticker, rule)

	if b.IsEmpty() {
		sb.WriteString("⚠ EMPTY ORDERBOOK")
		return sb.String()
	}
	if b.IsCrossed() {
		sb.WriteString("⚠ CROSSED MARKET (bid >= ask)\n")
	}
	if b.IsOneSided() {
		sb.WriteString("⚠ ONE-SIDED MARKET\n")
	}

	fmt.Fprintf(&sb, "\nBest Bid:  %s (depth: %d contracts)\n", centsOrNA(b.bestBid), b.bidDepth)
	fmt.Fprintf(&sb, "Best Ask:  %s (depth: %d contracts)\n", centsOrNA(b.bestAsk), b.askDepth)
	if b.midPrice != nil {
		fmt.Fprintf(&sb, "Mid Price: %.2f¢\n", *b.midPrice)
		fmt.Fprintf(&sb, "Spread:    %s\n", centsOrNA(b.spread))
	}

	fmt.Fprintf(&sb, "\n%s | %s\n", center("ASKS (Sell YES)", 30), center("BIDS (Buy YES)", 30))
	sb.WriteString(strings.Repeat("-", ruleWidth) + "\n")

	asks := b.bestFirst(SideAsk)
	bids := b.bestFirst(SideBid)
	asks = asks[:min(levels, len(asks))]
	bids = bids[:min(levels, len(bids))]

	for i := range max(len(asks), len(bids)) {
		var askCell, bidCell string
		if i < len(asks) {
			askCell = fmt.Sprintf("%3d¢ × %4d", asks[i].Price, asks[i].Quantity)
		}
		if i < len(bids) {
			bidCell = fmt.Sprintf("%3d¢ × %4d", bids[i].Price, bids[i].Quantity)
		}
		fmt.Fprintf(&sb, "%s | %s\n", center(askCell, 30), center(bidCell, 30))
	}
	sb.WriteString(rule)

	return sb.String()
}

func center(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	left := (width - n) / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", width-n-left)
}
