package enroll

import "errors"

// DefaultMaxSlots is the template capacity of the sensor.
const DefaultMaxSlots = 127

// ErrNoCapacity is returned when every slot is stored or reserved.
var ErrNoCapacity = errors.New("no available fingerprint slot found or sensor is full")

// Allocator picks sensor template slots.
type Allocator struct {
	MaxSlots int
}

// Next returns the lowest slot in 1..MaxSlots found in neither used nor pending.
func (a Allocator) Next(used, pending []int) (int, error) {
	limit := a.MaxSlots
	if limit <= 0 {
		limit = DefaultMaxSlots
	}

	taken := make(map[int]struct{}, len(used)+len(pending))
	for _, id := range used {
		taken[id] = struct{}{}
	}
	for _, id := range pending {
		taken[id] = struct{}{}
	}

	for id := 1; id <= limit; id++ {
		if _, ok := taken[id]; !ok {
			return id, nil
		}
	}
	return 0, ErrNoCapacity
}
