package partition

import (
	"slices"
	"strings"

	"github.com/spaolacci/murmur3"
)

// Fingerprint returns a 64-bit murmur3 hash of a strategy's kind, key
// columns and partitions. Partitions are hashed in suffix order, so two
// strategies that ComputeDelta reports as unchanged hash the same. A nil
// strategy hashes to 0.
func Fingerprint(s Strategy) uint64 {
	if s == nil {
		return 0
	}

	h := murmur3.New64()
	h.Write([]byte(s.Kind()))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(s.Columns(), ",")))
	h.Write([]byte{0})

	parts := s.Partitions()
	slices.SortStableFunc(parts, func(a, b Partition) int {
		return strings.Compare(a.NameSuffix(), b.NameSuffix())
	})
	for _, p := range parts {
		h.Write([]byte(p.NameSuffix()))
		h.Write([]byte{0})
		h.Write([]byte(p.ForValues()))
		h.Write([]byte{0})
	}
	return h.Sum64()
}
