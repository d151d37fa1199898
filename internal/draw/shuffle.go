package draw

import (
	"crypto/rand"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/rifalabs/raffle-engine/internal/domain"
)

// shuffleTickets permutes the slice in place with a Fisher–Yates walk:
// for i from len-1 down to 1, swap i with a uniform j in [0, i]. The
// source is injected so tests can drive it; production uses cryptoIntn.
func shuffleTickets(tickets []domain.Ticket, intn func(n int) (int, error)) error {
	for i := len(tickets) - 1; i >= 1; i-- {
		j, err := intn(i + 1)
		if err != nil {
			return err
		}
		tickets[i], tickets[j] = tickets[j], tickets[i]
	}
	return nil
}

// cryptoIntn returns a uniform integer in [0, n). crypto/rand, not
// math/rand: the raffle owner triggers the draw and must not be able to
// predict or bias the permutation.
func cryptoIntn(n int) (int, error) {
	if n <= 0 {
		return 0, errors.Newf("cryptoIntn: n must be positive, got %d", n)
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
