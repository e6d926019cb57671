package appointments

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeWindow is how close to the start a cancellation starts costing money.
const FeeWindow = 24 * time.Hour

var feeRate = decimal.RequireFromString("0.5")

// CancellationFee is half the total when fewer than 24 hours remain before
// scheduledAt (including appointments already in the past), otherwise zero.
func CancellationFee(total decimal.Decimal, scheduledAt, now time.Time) decimal.Decimal {
	if scheduledAt.Sub(now) < FeeWindow {
		return total.Mul(feeRate)
	}
	return decimal.Zero
}
