package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 {
	return &v
}

func TestValidateSnapshot_Valid(t *testing.T) {
	s := testSnapshot()
	s.Holdings[0].QualityScore = floatPtr(70)
	s.Holdings[0].ThematicScore = floatPtr(50)
	assert.NoError(t, ValidateSnapshot(s))
}

func TestValidateSnapshot_Fatal(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Snapshot)
		problem string
	}{
		{
			name:    "negative shares",
			mutate:  func(s *Snapshot) { s.Holdings[0].Shares = -1 },
			problem: "AAA has negative shares",
		},
		{
			name:    "negative price",
			mutate:  func(s *Snapshot) { s.Holdings[0].CurrentPrice = -5 },
			problem: "AAA has negative price",
		},
		{
			name:    "zero price with shares",
			mutate:  func(s *Snapshot) { s.Holdings[0].CurrentPrice = 0 },
			problem: "AAA holds 10.0000 shares with no price",
		},
		{
			name:    "nan price",
			mutate:  func(s *Snapshot) { s.Holdings[1].CurrentPrice = math.NaN() },
			problem: "BBB price is not a finite number",
		},
		{
			name:    "negative cash",
			mutate:  func(s *Snapshot) { s.Cash = -10 },
			problem: "negative cash",
		},
		{
			name:    "duplicate ticker",
			mutate:  func(s *Snapshot) { s.Holdings[1].Ticker = "AAA" },
			problem: "duplicate ticker AAA",
		},
		{
			name:    "empty ticker",
			mutate:  func(s *Snapshot) { s.Holdings[1].Ticker = " " },
			problem: "holding[1] has an empty ticker",
		},
		{
			name:    "quality out of range",
			mutate:  func(s *Snapshot) { s.Holdings[0].QualityScore = floatPtr(101) },
			problem: "quality score 101.00 outside 0-100",
		},
		{
			name:    "thematic out of range",
			mutate:  func(s *Snapshot) { s.Holdings[0].ThematicScore = floatPtr(51) },
			problem: "thematic score 51.00 outside 0-50",
		},
		{
			name:    "nan profitability",
			mutate:  func(s *Snapshot) { s.Holdings[0].Profitability = []float64{0.1, math.NaN()} },
			problem: "profitability series contains a non-finite value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSnapshot()
			tt.mutate(s)

			err := ValidateSnapshot(s)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrFatalInput))

			var fatal *FatalInputError
			require.True(t, errors.As(err, &fatal))
			assert.Contains(t, err.Error(), tt.problem)
		})
	}
}

func TestValidateSnapshot_ListsEveryProblem(t *testing.T) {
	s := testSnapshot()
	s.Cash = -1
	s.Holdings[0].Shares = -1
	s.Holdings[1].CurrentPrice = -1

	err := ValidateSnapshot(s)
	var fatal *FatalInputError
	require.True(t, errors.As(err, &fatal))
	assert.Len(t, fatal.Problems, 3)
}

func TestValidateSnapshot_Nil(t *testing.T) {
	assert.ErrorIs(t, ValidateSnapshot(nil), ErrFatalInput)
}
