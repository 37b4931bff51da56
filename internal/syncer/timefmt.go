package syncer

import (
	"fmt"
	"time"
)

// FormatPublishTime renders t the way Halo stores publish times: UTC with
// nine fractional digits and a literal Z, e.g. 2024-01-22T05:12:33.716773000Z.
func FormatPublishTime(t time.Time) string {
	u := t.UTC()
	return fmt.Sprintf("%s.%09dZ", u.Format("2006-01-02T15:04:05"), u.Nanosecond())
}
