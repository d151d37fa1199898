package draw

import (
	"testing"

	"github.com/google/uuid"
	"github.com/rifalabs/raffle-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numberedTickets(n int) []domain.Ticket {
	tickets := make([]domain.Ticket, n)
	for i := range tickets {
		tickets[i] = domain.Ticket{ID: uuid.New(), Number: i + 1}
	}
	return tickets
}

func TestShufflePreservesElements(t *testing.T) {
	tickets := numberedTickets(50)
	require.NoError(t, shuffleTickets(tickets, cryptoIntn))

	seen := make(map[int]bool)
	for _, tk := range tickets {
		seen[tk.Number] = true
	}
	assert.Len(t, seen, 50, "shuffle permutes, never drops or duplicates")
}

func TestShuffleDeterministicWithInjectedSource(t *testing.T) {
	// intn always returning 0 rotates the slice by one: each element at
	// index i swaps to the front in turn.
	tickets := numberedTickets(4)
	require.NoError(t, shuffleTickets(tickets, func(n int) (int, error) { return 0, nil }))

	got := []int{tickets[0].Number, tickets[1].Number, tickets[2].Number, tickets[3].Number}
	assert.Equal(t, []int{2, 3, 4, 1}, got)
}

func TestShuffleSingleAndEmpty(t *testing.T) {
	require.NoError(t, shuffleTickets(nil, cryptoIntn))

	one := numberedTickets(1)
	require.NoError(t, shuffleTickets(one, cryptoIntn))
	assert.Equal(t, 1, one[0].Number)
}

func TestCryptoIntnBounds(t *testing.T) {
	for i := 0; i < 1000; i++ {
		v, err := cryptoIntn(7)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 7)
	}

	_, err := cryptoIntn(0)
	assert.Error(t, err)
}

// Every ticket should land in position 0 about equally often. With 10
// tickets and 10000 shuffles the chi-square statistic over 9 degrees of
// freedom stays below 27.88 (p=0.001) unless the shuffle is biased.
func TestShuffleFairness(t *testing.T) {
	const (
		size   = 10
		trials = 10000
	)
	counts := make([]int, size)
	for i := 0; i < trials; i++ {
		tickets := numberedTickets(size)
		require.NoError(t, shuffleTickets(tickets, cryptoIntn))
		counts[tickets[0].Number-1]++
	}

	expected := float64(trials) / float64(size)
	chi2 := 0.0
	for _, c := range counts {
		d := float64(c) - expected
		chi2 += d * d / expected
	}
	assert.Less(t, chi2, 27.88, "first-position distribution: %v", counts)
}
