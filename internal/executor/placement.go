package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tradekit/signalpilot/internal/domain"
)

// placeRetryPause is the pause before the single placement retry.
const placeRetryPause = 500 * time.Millisecond

// Placer submits a signal's slot plan to the venue. Placement is idempotent
// per (fingerprint, slot): a slot the venue already holds, as a position or a
// resting order, is never placed again.
type Placer struct {
	venue  domain.ExecutionVenue
	logger *slog.Logger
}

// NewPlacer creates a Placer against the given venue.
func NewPlacer(venue domain.ExecutionVenue, logger *slog.Logger) *Placer {
	return &Placer{
		venue:  venue,
		logger: logger.With(slog.String("component", "placer")),
	}
}

// PlaceAll submits every slot of the plan and returns the tickets the venue
// issued, keyed by slot ordinal. A single slot failure does not abort the
// rest; the error is non-nil only when no slot could be placed at all.
func (p *Placer) PlaceAll(ctx context.Context, sig domain.Signal, plan []domain.SlotPlan) (map[int]int64, error) {
	live, err := p.liveSlots(ctx, sig)
	if err != nil {
		return nil, err
	}

	tickets := make(map[int]int64, len(plan))
	attempted := 0

	for _, slot := range plan {
		if ticket, ok := live[slot.Slot]; ok {
			p.logger.Info("slot already live at venue, skipping",
				slog.String("fingerprint", sig.Fingerprint),
				slog.Int("slot", slot.Slot),
				slog.Int64("ticket", ticket),
			)
			tickets[slot.Slot] = ticket
			continue
		}

		attempted++
		ticket, err := p.placeSlot(ctx, sig, slot)
		if err != nil {
			p.logger.Error("slot placement failed",
				slog.String("fingerprint", sig.Fingerprint),
				slog.Int("slot", slot.Slot),
				slog.String("error", err.Error()),
			)
			continue
		}
		tickets[slot.Slot] = ticket
	}

	if attempted > 0 && len(tickets) == 0 {
		return nil, fmt.Errorf("executor: no slot of %s could be placed: %w",
			sig.Fingerprint, domain.ErrOrderRejected)
	}
	return tickets, nil
}

// liveSlots returns the slots the venue already holds for the signal, from
// open positions and resting orders, keyed by slot ordinal.
func (p *Placer) liveSlots(ctx context.Context, sig domain.Signal) (map[int]int64, error) {
	live := make(map[int]int64)

	positions, err := p.venue.OpenPositions(ctx, sig.Symbol)
	if err != nil {
		return nil, fmt.Errorf("executor: fetch positions: %w", err)
	}
	for _, pos := range domain.PositionsForSignal(positions, sig.Fingerprint) {
		if _, slot, ok := domain.ParseOrderComment(pos.Comment); ok {
			live[slot] = pos.Ticket
		}
	}

	pendings, err := p.venue.PendingOrders(ctx, sig.Symbol)
	if err != nil {
		return nil, fmt.Errorf("executor: fetch pending orders: %w", err)
	}
	for _, o := range domain.OrdersForSignal(pendings, sig.Fingerprint) {
		if _, slot, ok := domain.ParseOrderComment(o.Comment); ok {
			live[slot] = o.Ticket
		}
	}
	return live, nil
}

// placeSlot submits one slot, retrying once when the venue says the rejection
// is transient.
func (p *Placer) placeSlot(ctx context.Context, sig domain.Signal, slot domain.SlotPlan) (int64, error) {
	req := domain.OrderRequest{
		ClientID:  uuid.New().String(),
		Symbol:    sig.Symbol,
		Direction: sig.Direction,
		Kind:      slot.Kind,
		Volume:    slot.Volume,
		Price:     slot.Entry,
		StopLoss:  slot.StopLoss,
		Comment:   domain.OrderComment(sig.Fingerprint, slot.Slot),
	}
	if slot.TakeProfit != nil {
		req.TakeProfit = *slot.TakeProfit
	}

	res, err := p.venue.PlaceOrder(ctx, req)
	if err != nil {
		return 0, err
	}
	if res.Success {
		p.logger.Info("slot placed",
			slog.String("fingerprint", sig.Fingerprint),
			slog.Int("slot", slot.Slot),
			slog.String("kind", string(slot.Kind)),
			slog.Int64("ticket", res.Ticket),
			slog.Float64("volume", slot.Volume),
		)
		return res.Ticket, nil
	}
	if !res.ShouldRetry {
		return 0, fmt.Errorf("%w: %s", domain.ErrOrderRejected, res.Message)
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(placeRetryPause):
	}

	// New client ID for the retry; the first request was rejected, not lost.
	req.ClientID = uuid.New().String()
	res, err = p.venue.PlaceOrder(ctx, req)
	if err != nil {
		return 0, err
	}
	if !res.Success {
		return 0, fmt.Errorf("%w: %s", domain.ErrOrderRejected, res.Message)
	}
	p.logger.Info("slot placed on retry",
		slog.String("fingerprint", sig.Fingerprint),
		slog.Int("slot", slot.Slot),
		slog.Int64("ticket", res.Ticket),
	)
	return res.Ticket, nil
}
