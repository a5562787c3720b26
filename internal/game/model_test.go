package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPenaltyChance(t *testing.T) {
	cases := []struct {
		count int64
		want  int
	}{
		{count: 0, want: 0},
		{count: 1, want: 5},
		{count: 3, want: 15},
		{count: 5, want: 25},
		{count: 6, want: 25},
		{count: 100, want: 25},
		{count: -4, want: 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, PenaltyChance(tc.count), "count=%d", tc.count)
	}
}

func TestLockOrderSortsAndDedups(t *testing.T) {
	got := lockOrder(
		balanceRef{7, 2},
		balanceRef{3, 9},
		balanceRef{7, 1},
		balanceRef{3, 9},
	)
	assert.Equal(t, []balanceRef{{3, 9}, {7, 1}, {7, 2}}, got)
}

func TestLockOrderIsOrderInsensitive(t *testing.T) {
	a := lockOrder(balanceRef{1, 1}, balanceRef{2, 2}, balanceRef{1, 2}, balanceRef{2, 1})
	b := lockOrder(balanceRef{2, 1}, balanceRef{1, 2}, balanceRef{2, 2}, balanceRef{1, 1})
	assert.Equal(t, a, b)
}
