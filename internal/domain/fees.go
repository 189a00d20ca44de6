package domain

import "math"

// feeRate is the exchange's convex fee coefficient: fee = 0.07·q·p·(1-p).
const feeRate = 0.07

// Fee returns the exact per-fill fee in dollars for qty contracts at
// priceCents, rounded up to the cent: ceil(0.07·q·p·(1-p)·100)/100.
func Fee(qty, priceCents int) float64 {
	p := float64(priceCents) / 100
	raw := feeRate * float64(qty) * p * (1 - p) * 100
	return math.Ceil(raw-1e-9) / 100
}

// FeePerContract returns the continuous per-contract fee approximation in
// dollars: 0.07·p·(1-p). Used for gating and sizing, not accounting.
func FeePerContract(priceCents int) float64 {
	p := float64(priceCents) / 100
	return feeRate * p * (1 - p)
}

// FeePerContractCents is FeePerContract expressed in cents.
func FeePerContractCents(priceCents int) float64 {
	return FeePerContract(priceCents) * 100
}

// SnapSettlement maps a last known mid to a settlement price in cents:
// near-certain markets snap to 0 or 100, everything else values at the mid.
func SnapSettlement(mid float64) float64 {
	switch {
	case mid >= 99:
		return 100
	case mid <= 1:
		return 0
	default:
		return mid
	}
}

// SettlementPayout returns the dollars a position is worth at settlement
// price sp (cents): yes·sp/100 + no·(100-sp)/100.
func SettlementPayout(pos Position, sp float64) float64 {
	return float64(pos.Yes)*sp/100 + float64(pos.No)*(100-sp)/100
}
