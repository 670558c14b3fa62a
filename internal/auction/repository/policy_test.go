package repository_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bazaarhq/bazaar/internal/auction/repository"
)

func TestBidPolicyAccepts(t *testing.T) {
	highest := func(v int64) *int64 { return &v }

	tests := []struct {
		name     string
		policy   repository.BidPolicy
		amount   int64
		minPrice int64
		highest  *int64
		want     bool
	}{
		{
			name:     "first_bid_above_minimum",
			amount:   1100,
			minPrice: 1000,
			want:     true,
		},
		{
			name:     "first_bid_equal_minimum_strict",
			amount:   1000,
			minPrice: 1000,
			want:     false,
		},
		{
			name:     "first_bid_equal_minimum_allowed",
			policy:   repository.BidPolicy{AllowEqualMinimum: true},
			amount:   1000,
			minPrice: 1000,
			want:     true,
		},
		{
			name:     "first_bid_below_minimum_allowed",
			policy:   repository.BidPolicy{AllowEqualMinimum: true},
			amount:   999,
			minPrice: 1000,
			want:     false,
		},
		{
			name:     "over_highest",
			amount:   1201,
			minPrice: 1000,
			highest:  highest(1200),
			want:     true,
		},
		{
			name:     "equal_highest_rejected",
			amount:   1200,
			minPrice: 1000,
			highest:  highest(1200),
			want:     false,
		},
		{
			name:     "equal_highest_rejected_even_when_equality_allowed",
			policy:   repository.BidPolicy{AllowEqualMinimum: true},
			amount:   1200,
			minPrice: 1000,
			highest:  highest(1200),
			want:     false,
		},
		{
			name:     "below_highest_rejected",
			amount:   1100,
			minPrice: 1000,
			highest:  highest(1200),
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.policy.Accepts(tt.amount, tt.minPrice, tt.highest)
			require.Equal(t, tt.want, got)
		})
	}
}
