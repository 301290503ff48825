package population

import (
	"fmt"
	"math/rand"
)

// Sample draws a deterministic sample of up to size targets from the
// (already filtered) population. It performs a full seeded Fisher-Yates
// shuffle over a copy of the input and takes the first
// min(size, len(targets)) elements, so the selected prefix is an
// unbiased sample for any size. For a fixed seed and input sequence the
// result is identical across runs and machines.
func Sample(targets []Target, size int, seed int64) []Target {
	if size < 0 {
		size = 0
	}
	shuffled := make([]Target, len(targets))
	copy(shuffled, targets)

	r := rand.New(rand.NewSource(seed))
	for i := len(shuffled) - 1; i >= 1; i-- {
		j := r.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}

	if size < len(shuffled) {
		shuffled = shuffled[:size]
	}
	return shuffled
}

// Shard returns the 1-indexed shard `index` of `total` contiguous
// shards of the sampled sequence: the slice
// [ceil(N/total)*(index-1), min(ceil(N/total)*index, N)). The partition
// depends only on the sequence and the shard arithmetic, never on
// concurrency or timing, so independent executors can split one run.
func Shard(targets []Target, index, total int) ([]Target, error) {
	if total < 1 {
		return nil, fmt.Errorf("shard: total must be >= 1, got %d", total)
	}
	if index < 1 || index > total {
		return nil, fmt.Errorf("shard: index %d out of range [1, %d]", index, total)
	}
	n := len(targets)
	per := (n + total - 1) / total
	start := per * (index - 1)
	end := per * index
	if start > n {
		start = n
	}
	if end > n {
		end = n
	}
	return targets[start:end], nil
}
