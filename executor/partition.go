package executor

// Partition is a contiguous slice of a request assigned to one worker.
type Partition struct {
	Worker int
	Start  uint64
	Size   uint64
}

// Plan splits count into workers disjoint partitions that cover it exactly.
// Every partition gets count/workers flips; the last one also absorbs
// count%workers and is run by the calling goroutine.
func Plan(count uint64, workers int) []Partition {
	if workers < 1 {
		workers = 1
	}
	base := count / uint64(workers)
	parts := make([]Partition, workers)
	var start uint64
	for i := range parts {
		size := base
		if i == workers-1 {
			size += count % uint64(workers)
		}
		parts[i] = Partition{Worker: i, Start: start, Size: size}
		start += size
	}
	return parts
}
