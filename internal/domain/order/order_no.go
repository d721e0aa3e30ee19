package order

import (
	"fmt"
	"math/rand"
	"time"
)

// GenerateOrderNo order number
//
// Format: FM + unix seconds + 6 random digits, e.g. FM1699248000123456.
// Time-ordered and hard to enumerate; uniqueness is finally enforced by
// the unique index on order_no.
func GenerateOrderNo(now time.Time) string {
	return fmt.Sprintf("FM%d%06d", now.Unix(), rand.Intn(1000000))
}
