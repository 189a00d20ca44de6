package domain

import "time"

// Position is the per-ticker holding. Quantities are never negative:
// YES and NO on the same ticker net 1:1 as soon as both exist.
type Position struct {
	Yes  int
	No   int
	Cost float64 // dollars paid to build the position, fees included
}

// Empty reports whether nothing is held.
func (p Position) Empty() bool {
	return p.Yes == 0 && p.No == 0
}

// Net returns yes - no (positive = net long YES).
func (p Position) Net() int {
	return p.Yes - p.No
}

// NetPairs removes min(yes, no) from both sides and returns the number of
// pairs netted. Each pair returns $1 to cash at the caller's ledger.
func (p *Position) NetPairs() int {
	n := min(p.Yes, p.No)
	if n <= 0 {
		return 0
	}
	p.Yes -= n
	p.No -= n
	p.Cost -= float64(n) // pairs return $1, cost basis shrinks accordingly
	if p.Cost < 0 {
		p.Cost = 0
	}
	return n
}

// Inventory is the held+pending view the engine hands the strategy.
type Inventory struct {
	Yes int
	No  int
}

// pendingPayout es un abono pendiente de liberar en la wallet.
type pendingPayout struct {
	Amount   float64
	SettleAt time.Time
}

// Wallet holds spendable cash plus queued settlement payouts that only
// become spendable at their payout time.
type Wallet struct {
	Available float64
	queue     []pendingPayout
}

// Debit removes dollars from available cash. Callers enforce their own
// overdraft policy; the wallet itself does not reject.
func (w *Wallet) Debit(amount float64) {
	w.Available -= amount
}

// Credit adds dollars to available cash immediately.
func (w *Wallet) Credit(amount float64) {
	w.Available += amount
}

// QueuePayout schedules a settlement credit for settleAt.
func (w *Wallet) QueuePayout(amount float64, settleAt time.Time) {
	w.queue = append(w.queue, pendingPayout{Amount: amount, SettleAt: settleAt})
}

// CheckSettlements releases every queued payout with settle_time <= t into
// available cash and returns the total released.
func (w *Wallet) CheckSettlements(t time.Time) float64 {
	released := 0.0
	kept := w.queue[:0]
	for _, p := range w.queue {
		if !p.SettleAt.After(t) {
			released += p.Amount
			continue
		}
		kept = append(kept, p)
	}
	w.queue = kept
	w.Available += released
	return released
}

// PendingTotal returns the sum of not-yet-released payouts.
func (w *Wallet) PendingTotal() float64 {
	total := 0.0
	for _, p := range w.queue {
		total += p.Amount
	}
	return total
}
