package coordination

import "time"

// IntervalKey buckets a point in time into the scheduling interval it falls
// in. Two workers deciding to run the same strategy in the same bucket
// contend for the same lock key. The truncated timestamp is encoded at full
// resolution so sub-minute intervals map to distinct buckets.
func IntervalKey(t time.Time, interval time.Duration) string {
	return t.UTC().Truncate(interval).Format(time.RFC3339)
}
