package task

import "errors"

// Partition assigns task indices to array slots. Slot i owns the ordered
// index list Partition[i]; every task index appears in exactly one slot.
type Partition [][]int

var (
	ErrNoTasks = errors.New("task: no tasks to partition")
	ErrNoSlots = errors.New("task: slot count must be positive")
)

// Plan splits n tasks over at most s slots by contiguous block division:
// slot i receives [i*n/used, (i+1)*n/used) with used = min(s, n). Slot
// sizes differ by at most one, original order is preserved and no slot
// is ever empty, so the same (n, s) always yields the same partition.
func Plan(n, s int) (Partition, error) {
	if n <= 0 {
		return nil, ErrNoTasks
	}
	if s <= 0 {
		return nil, ErrNoSlots
	}
	used := s
	if used > n {
		used = n
	}
	p := make(Partition, used)
	for i := 0; i < used; i++ {
		lo := i * n / used
		hi := (i + 1) * n / used
		slot := make([]int, 0, hi-lo)
		for idx := lo; idx < hi; idx++ {
			slot = append(slot, idx)
		}
		p[i] = slot
	}
	return p, nil
}

// Tasks returns the total number of task indices across all slots.
func (p Partition) Tasks() int {
	n := 0
	for _, slot := range p {
		n += len(slot)
	}
	return n
}
