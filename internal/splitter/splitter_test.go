package splitter

import (
	"testing"

	"github.com/shopspring/decimal"
)

func pct(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

func shareSum(shares []Share) decimal.Decimal {
	sum := decimal.Zero
	for _, s := range shares {
		sum = sum.Add(s.Amount)
	}
	return sum
}

func TestComputeEqualSplit(t *testing.T) {
	total := decimal.NewFromInt(120)
	participants := []Participant{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	shares, err := Compute(total, participants, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(shares) != 3 {
		t.Fatalf("Expected 3 shares, got %d", len(shares))
	}

	expected := decimal.NewFromInt(40)
	for _, s := range shares {
		if !s.Amount.Equal(expected) {
			t.Errorf("Participant %s: expected 40, got %s", s.ParticipantID, s.Amount)
		}
	}

	if !shareSum(shares).Equal(total) {
		t.Errorf("Expected shares to sum to %s, got %s", total, shareSum(shares))
	}
}

func TestComputeRoundingResidualToLast(t *testing.T) {
	// 100 / 3 = 33.33 each, residual 0.01 goes to the last participant
	total := decimal.NewFromInt(100)
	participants := []Participant{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	shares, err := Compute(total, participants, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !shares[0].Amount.Equal(decimal.NewFromFloat(33.33)) {
		t.Errorf("Expected first share 33.33, got %s", shares[0].Amount)
	}
	if !shares[1].Amount.Equal(decimal.NewFromFloat(33.33)) {
		t.Errorf("Expected second share 33.33, got %s", shares[1].Amount)
	}
	if !shares[2].Amount.Equal(decimal.NewFromFloat(33.34)) {
		t.Errorf("Expected last share 33.34, got %s", shares[2].Amount)
	}

	if !shareSum(shares).Equal(total) {
		t.Errorf("Expected exact sum %s, got %s", total, shareSum(shares))
	}
}

func TestComputeFixedPercentages(t *testing.T) {
	total := decimal.NewFromInt(200)
	participants := []Participant{
		{ID: "a", Percent: pct(50)},
		{ID: "b", Percent: pct(30)},
		{ID: "c", Percent: pct(20)},
	}

	shares, err := Compute(total, participants, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expected := map[string]string{"a": "100", "b": "60", "c": "40"}
	for _, s := range shares {
		if s.Amount.String() != expected[s.ParticipantID] {
			t.Errorf("Participant %s: expected %s, got %s", s.ParticipantID, expected[s.ParticipantID], s.Amount)
		}
	}
}

func TestComputePercentageAndEqualRemainder(t *testing.T) {
	// a takes 50%, b and c split the remaining 60 equally
	total := decimal.NewFromInt(120)
	participants := []Participant{
		{ID: "a", Percent: pct(50)},
		{ID: "b"},
		{ID: "c"},
	}

	shares, err := Compute(total, participants, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !shares[0].Amount.Equal(decimal.NewFromInt(60)) {
		t.Errorf("Expected a=60, got %s", shares[0].Amount)
	}
	if !shares[1].Amount.Equal(decimal.NewFromInt(30)) {
		t.Errorf("Expected b=30, got %s", shares[1].Amount)
	}
	if !shares[2].Amount.Equal(decimal.NewFromInt(30)) {
		t.Errorf("Expected c=30, got %s", shares[2].Amount)
	}
}

func TestComputeOverridesWinOverPercent(t *testing.T) {
	total := decimal.NewFromInt(100)
	participants := []Participant{
		{ID: "a", Percent: pct(90)},
		{ID: "b"},
	}
	overrides := map[string]decimal.Decimal{
		"a": decimal.NewFromInt(25),
	}

	shares, err := Compute(total, participants, overrides)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !shares[0].Amount.Equal(decimal.NewFromInt(25)) {
		t.Errorf("Expected override 25 for a, got %s", shares[0].Amount)
	}
	if shares[0].Percent != nil {
		t.Error("Expected percent to be cleared when an override applies")
	}
	if !shares[1].Amount.Equal(decimal.NewFromInt(75)) {
		t.Errorf("Expected b to take the 75 remainder, got %s", shares[1].Amount)
	}
}

func TestComputeZeroParticipants(t *testing.T) {
	shares, err := Compute(decimal.NewFromInt(50), nil, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(shares) != 0 {
		t.Errorf("Expected no shares for zero participants, got %d", len(shares))
	}
}

func TestComputeZeroTotal(t *testing.T) {
	shares, err := Compute(decimal.Zero, []Participant{{ID: "a"}, {ID: "b"}}, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for _, s := range shares {
		if !s.Amount.IsZero() {
			t.Errorf("Expected zero share, got %s", s.Amount)
		}
	}
}

func TestComputeAssignedExceedsTotal(t *testing.T) {
	total := decimal.NewFromInt(100)
	participants := []Participant{
		{ID: "a"},
		{ID: "b"},
	}
	overrides := map[string]decimal.Decimal{
		"a": decimal.NewFromInt(150),
	}

	if _, err := Compute(total, participants, overrides); err == nil {
		t.Error("Expected error when overrides exceed the total with equal-split participants remaining")
	}
}

func TestComputeInconsistentOverrides(t *testing.T) {
	// All participants overridden but far from the total: rejected,
	// not silently corrected.
	total := decimal.NewFromInt(100)
	participants := []Participant{{ID: "a"}, {ID: "b"}}
	overrides := map[string]decimal.Decimal{
		"a": decimal.NewFromInt(10),
		"b": decimal.NewFromInt(10),
	}

	if _, err := Compute(total, participants, overrides); err == nil {
		t.Error("Expected split mismatch error for materially inconsistent overrides")
	}
}

func TestComputeNegativeTotal(t *testing.T) {
	if _, err := Compute(decimal.NewFromInt(-5), []Participant{{ID: "a"}}, nil); err == nil {
		t.Error("Expected error for negative total")
	}
}

func TestComputeSevenWaySplitSumsExactly(t *testing.T) {
	total := decimal.NewFromFloat(199.99)
	participants := make([]Participant, 7)
	for i := range participants {
		participants[i] = Participant{ID: string(rune('a' + i))}
	}

	shares, err := Compute(total, participants, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !shareSum(shares).Equal(total) {
		t.Errorf("Expected exact sum %s, got %s", total, shareSum(shares))
	}
}
