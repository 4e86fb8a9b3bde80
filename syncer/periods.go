package syncer

import (
	"fmt"
	"time"
)

// Period is one publication unit of the upstream source: an ISO week within
// a year. The source names at most 52 weeks per year, so week 53 dates clamp
// to 52.
type Period struct {
	Year int
	Week int
}

const weeksPerYear = 52

func (p Period) String() string {
	return fmt.Sprintf("%d-W%02d", p.Year, p.Week)
}

func (p Period) next() Period {
	if p.Week >= weeksPerYear {
		return Period{Year: p.Year + 1, Week: 1}
	}
	return Period{Year: p.Year, Week: p.Week + 1}
}

func (p Period) after(q Period) bool {
	if p.Year != q.Year {
		return p.Year > q.Year
	}
	return p.Week > q.Week
}

// PeriodOf places a date in its period using ISO-8601 week numbering
// (Monday start). The ISO year is used, not the calendar year, so late
// December dates landing in week 1 resolve to the following year.
func PeriodOf(t time.Time) Period {
	year, week := t.ISOWeek()
	if week > weeksPerYear {
		week = weeksPerYear
	}
	return Period{Year: year, Week: week}
}

// MissingPeriods enumerates, oldest first, every period after the cursor up
// to and including the current period of now. A nil cursor starts from the
// epoch period itself. The result is recomputed fresh each run; re-listing
// an already-ingested period is harmless because merging deduplicates by
// reference.
func MissingPeriods(lastKnown *time.Time, now time.Time, epoch Period) []Period {
	current := PeriodOf(now)

	start := epoch
	if lastKnown != nil {
		start = PeriodOf(*lastKnown).next()
	}
	if start.after(current) {
		return nil
	}

	var out []Period
	for p := start; !p.after(current); p = p.next() {
		out = append(out, p)
	}
	return out
}
