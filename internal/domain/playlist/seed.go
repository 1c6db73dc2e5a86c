package playlist

import (
	"hash/fnv"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

const seedLength = 16

// newSeed returns a random alphanumeric shuffle token that differs from prev.
func newSeed(prev string) string {
	for {
		s := strings.ReplaceAll(uuid.NewString(), "-", "")[:seedLength]
		if s != prev {
			return s
		}
	}
}

// shuffleIndices permutes idx in place. The permutation depends only on seed
// and len(idx), so the same seed always yields the same order.
func shuffleIndices(idx []int, seed string) {
	rng := rand.New(rand.NewPCG(hashSeed(seed, 0), hashSeed(seed, 1)))
	for i := len(idx) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		idx[i], idx[j] = idx[j], idx[i]
	}
}

func hashSeed(seed string, salt byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte{salt})
	_, _ = h.Write([]byte(seed))
	return h.Sum64()
}
