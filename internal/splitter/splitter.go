// Package splitter divides a bill instance amount across its
// cost-sharing participants.
//
// Assignment happens in three tiers: explicit per-participant override
// amounts, fixed percentages carried by the participant, and an equal
// division of whatever remains among everyone else. The computed
// shares always sum to the total exactly; the final rounding residual
// lands on the last participant in iteration order.
package splitter

import (
	"fmt"

	"github.com/shopspring/decimal"

	"expense-reconciliation-engine/pkg/errors"
)

// Participant is one cost-sharing participant, optionally carrying a
// fixed percentage of the total.
type Participant struct {
	ID      string
	Percent *decimal.Decimal
}

// Share is one participant's computed portion of the total
type Share struct {
	ParticipantID string
	Amount        decimal.Decimal
	Percent       *decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// centTolerance is the acceptable residual per participant before the
// inputs are rejected as inconsistent rather than rounded.
var centTolerance = decimal.NewFromFloat(0.01)

// Compute splits total across participants. Overrides map participant
// IDs to verbatim amounts and win over percentages; participants with
// neither share the remainder equally. Amounts are rounded to two
// decimal places and the rounding residual is added to the last share
// so the sum equals the total exactly.
//
// Zero participants yields no shares and no error; the caller tracks
// the instance unsplit.
func Compute(total decimal.Decimal, participants []Participant, overrides map[string]decimal.Decimal) ([]Share, error) {
	if len(participants) == 0 {
		return nil, nil
	}

	if total.IsNegative() {
		return nil, errors.ValidationError(errors.CodeInvalidAmount, "total", total.String(), nil)
	}

	shares := make([]Share, len(participants))
	assigned := decimal.Zero
	var equalIdx []int

	for i, p := range participants {
		shares[i] = Share{ParticipantID: p.ID, Percent: p.Percent}

		if override, ok := overrides[p.ID]; ok {
			shares[i].Amount = override.Round(2)
			shares[i].Percent = nil
			assigned = assigned.Add(shares[i].Amount)
			continue
		}

		if p.Percent != nil {
			amount := total.Mul(*p.Percent).DivRound(hundred, 2)
			shares[i].Amount = amount
			assigned = assigned.Add(amount)
			continue
		}

		equalIdx = append(equalIdx, i)
	}

	remaining := total.Sub(assigned)

	if len(equalIdx) > 0 {
		if remaining.IsNegative() {
			return nil, errors.ValidationError(errors.CodeSplitMismatch, "participants",
				fmt.Sprintf("assigned %s exceeds total %s", assigned.String(), total.String()), nil)
		}

		each := remaining.DivRound(decimal.NewFromInt(int64(len(equalIdx))), 2)
		for _, i := range equalIdx {
			shares[i].Amount = each
		}
	}

	// Reconcile rounding drift onto the last participant. Anything
	// beyond one cent per participant is an input inconsistency, not
	// rounding.
	sum := decimal.Zero
	for _, s := range shares {
		sum = sum.Add(s.Amount)
	}

	residual := total.Sub(sum)
	if !residual.IsZero() {
		tolerance := centTolerance.Mul(decimal.NewFromInt(int64(len(shares))))
		if residual.Abs().GreaterThan(tolerance) {
			return nil, errors.ValidationError(errors.CodeSplitMismatch, "splits",
				fmt.Sprintf("shares sum to %s against total %s", sum.String(), total.String()), nil)
		}

		last := len(shares) - 1
		shares[last].Amount = shares[last].Amount.Add(residual)
		if shares[last].Amount.IsNegative() {
			return nil, errors.ValidationError(errors.CodeSplitMismatch, "splits",
				fmt.Sprintf("residual %s drives the last share negative", residual.String()), nil)
		}
	}

	return shares, nil
}
