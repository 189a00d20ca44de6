package report

// console.go — resumen de sesión por stdout.

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/afuentes7/kalshibot/internal/domain"
)

// Console imprime el resumen de fin de sesión.
type Console struct {
	out io.Writer
}

// NewConsole crea un Console que escribe en out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// PrintSummary imprime el PnL por ticker y los totales de la sesión.
func (c *Console) PrintSummary(trades []domain.TradeRecord, startCash, endCash, pending float64, positions map[string]domain.Position) {
	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "\n[%s] session summary: %d fills\n", now, len(trades))

	perTicker := aggregateByTicker(trades)
	tickers := make([]string, 0, len(perTicker))
	for t := range perTicker {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	table := tablewriter.NewWriter(c.out)
	table.Header("Ticker", "Fills", "Qty", "Cost", "Fees", "Pos Y/N", "Src x/p")

	var totalQty int
	var totalCost, totalFees float64
	for _, t := range tickers {
		agg := perTicker[t]
		pos := positions[t]
		table.Append(
			t,
			fmt.Sprintf("%d", agg.fills),
			fmt.Sprintf("%d", agg.qty),
			fmt.Sprintf("$%.2f", agg.cost),
			fmt.Sprintf("$%.2f", agg.fees),
			fmt.Sprintf("%d/%d", pos.Yes, pos.No),
			fmt.Sprintf("%d/%d", agg.cross, agg.passive),
		)
		totalQty += agg.qty
		totalCost += agg.cost
		totalFees += agg.fees
	}
	table.Render()

	fmt.Fprintf(c.out, "  contracts: %d | gross cost: $%.2f | fees: $%.2f\n",
		totalQty, totalCost, totalFees)
	fmt.Fprintf(c.out, "  cash: $%.2f → $%.2f (Δ $%+.2f)", startCash, endCash, endCash-startCash)
	if pending > 0 {
		fmt.Fprintf(c.out, " | pending payouts: $%.2f", pending)
	}
	fmt.Fprintln(c.out)
}

type tickerAgg struct {
	fills   int
	qty     int
	cost    float64
	fees    float64
	cross   int
	passive int
}

func aggregateByTicker(trades []domain.TradeRecord) map[string]tickerAgg {
	out := make(map[string]tickerAgg)
	for _, tr := range trades {
		agg := out[tr.Ticker]
		agg.fills++
		agg.qty += tr.Qty
		agg.cost += tr.Cost
		agg.fees += tr.Fee
		switch tr.Source {
		case "cross":
			agg.cross++
		case "passive":
			agg.passive++
		}
		out[tr.Ticker] = agg
	}
	return out
}
