package common

import (
	"fmt"
	"math"
)

// SafeInt64ToUint32 safely converts int64 to uint32 with bounds checking.
// Disc offsets and file sizes are 32-bit on disc, so host file sizes pass through here.
func SafeInt64ToUint32(value int64) (uint32, error) {
	if value < 0 {
		return 0, fmt.Errorf("value %d is negative, cannot convert to uint32", value)
	}
	if value > math.MaxUint32 {
		return 0, fmt.Errorf("value %d out of range for uint32 (0-%d)", value, uint32(math.MaxUint32))
	}
	return uint32(value), nil
}
