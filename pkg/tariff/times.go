package tariff

import (
	"iter"
	"time"

	"github.com/bolletta/bolletta/pkg/common"
	"github.com/bolletta/bolletta/pkg/types"
)

// ARERA and Portale Offerte publish on Italian calendar days.
var romeLocation = common.Rome

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// BackwardDays yields start and then each preceding calendar day, at most n
// dates in total. AddDate keeps the walk DST-safe.
func BackwardDays(start time.Time, n int) iter.Seq[time.Time] {
	start = truncateDay(start)
	return func(yield func(time.Time) bool) {
		for i := range n {
			if !yield(start.AddDate(0, 0, -i)) {
				return
			}
		}
	}
}

// LastDayOfPreviousMonth returns the final day of the month before t.
func LastDayOfPreviousMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 0, -1)
}

// BillingPeriods returns mp, the month before now, and mpp, the month before
// that.
func BillingPeriods(now time.Time) (mp, mpp types.PeriodKey) {
	mp = types.MonthPeriod(now.Year(), now.Month()).Previous()
	return mp, mp.Previous()
}
