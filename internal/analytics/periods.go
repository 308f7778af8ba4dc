package analytics

import "time"

// Range tokens accepted by the reporting endpoints.
const (
	Range7Days    = "7_days"
	Range28Days   = "28_days"
	Range30Days   = "30_days"
	Range3Months  = "3_months"
	Range6Months  = "6_months"
	Range12Months = "12_months"
	Range16Months = "16_months"
)

var rangeDays = map[string]int{
	Range7Days:    7,
	Range28Days:   28,
	Range30Days:   30,
	Range3Months:  90,
	Range6Months:  180,
	Range12Months: 365,
	Range16Months: 480,
}

// Period is a reporting window paired with the prior window of equal
// length immediately before it. The two windows are adjacent and
// never overlap.
type Period struct {
	Start    time.Time `json:"-"`
	End      time.Time `json:"-"`
	OldStart time.Time `json:"-"`
	OldEnd   time.Time `json:"-"`

	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	OldStartDate string `json:"old_start_date"`
	OldEndDate   string `json:"old_end_date"`
}

const periodLayout = "2006-01-02 15:04:05"

// ResolvePeriod maps a range token onto its Period, anchored at now
// in UTC. Unknown tokens fall back to 30 days.
func ResolvePeriod(rangeToken string, now time.Time) Period {
	days, ok := rangeDays[rangeToken]
	if !ok {
		days = 30
	}

	// Both windows cover exactly `days` calendar days: the current one
	// ends today at 23:59:59 and the prior one ends one second before
	// the current one starts.
	today := now.UTC().Truncate(24 * time.Hour)
	end := today.Add(24*time.Hour - time.Second)
	start := today.AddDate(0, 0, -(days - 1))
	oldStart := today.AddDate(0, 0, -(2*days - 1))
	oldEnd := start.Add(-time.Second)

	return Period{
		Start:        start,
		End:          end,
		OldStart:     oldStart,
		OldEnd:       oldEnd,
		StartDate:    start.Format(periodLayout),
		EndDate:      end.Format(periodLayout),
		OldStartDate: oldStart.Format(periodLayout),
		OldEndDate:   oldEnd.Format(periodLayout),
	}
}
