package env

import "time"

// microsToDuration converts spec.md §6's microsecond timeout convention
// (matching the original's muse_elapsed_us/timeout_us fields) into a
// time.Duration; any negative value means "wait indefinitely" and is
// mapped to -1 for mailbox.Receive to interpret.
func microsToDuration(us int64) time.Duration {
	if us < 0 {
		return -1
	}
	return time.Duration(us) * time.Microsecond
}
