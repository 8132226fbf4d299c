package engine

// settleSamples is the number of equal folder size samples required before
// changes are considered settled.
const settleSamples = 4

// sizeBuffer holds the most recent folder size samples. Writes to a folder
// are assumed to be finished once its size stops changing.
type sizeBuffer struct {
	samples []int64
}

// push records a sample, and returns whether the folder has settled. The
// buffer is emptied when it settles so that every settle needs a fresh set
// of samples.
func (b *sizeBuffer) push(size int64) bool {
	if len(b.samples) >= settleSamples {
		b.samples = b.samples[1:]
	}
	b.samples = append(b.samples, size)

	if len(b.samples) < settleSamples {
		return false
	}
	for _, sample := range b.samples[1:] {
		if sample != b.samples[0] {
			return false
		}
	}

	b.reset()
	return true
}

func (b *sizeBuffer) reset() {
	b.samples = nil
}
