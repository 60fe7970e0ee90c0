package scheduler

import (
	"fmt"
	"time"

	"fincore/internal/core"
)

// Period is one discrete recurrence bucket of a rule: a calendar month, an
// ISO week, or one custom-day interval. The key is unique per rule and is
// what the (rule, period) exactly-once contract hangs on.
type Period struct {
	Key string
	Due core.Date
}

// DuePeriods returns the periods of the rule that still need materializing
// at the given time, oldest first, bounded to the most recent maxCatchUp
// entries. A rule that was offline for longer than the bound permanently
// skips the older periods: the watermark jumps forward past them.
func DuePeriods(rule core.RecurringRule, now time.Time, maxCatchUp int) []Period {
	if !rule.Active || rule.StartDate.IsZero() || now.Before(rule.StartDate.Time) {
		return nil
	}

	end := now
	if !rule.EndDate.IsZero() && rule.EndDate.Time.Before(end) {
		end = rule.EndDate.Time
	}

	all := periodsThrough(rule, end)

	// Drop everything at or before the rule's watermark.
	if rule.LastPeriod != "" {
		for i, p := range all {
			if p.Key == rule.LastPeriod {
				all = all[i+1:]
				break
			}
		}
	}

	if maxCatchUp > 0 && len(all) > maxCatchUp {
		all = all[len(all)-maxCatchUp:]
	}
	return all
}

// periodsThrough enumerates every period of the rule from its start date
// through end, inclusive. A period counts as reached as soon as end falls
// inside it; its due date may still be a few days ahead.
func periodsThrough(rule core.RecurringRule, end time.Time) []Period {
	switch rule.Cadence {
	case core.CadenceMonthly:
		return monthlyPeriods(rule, end)
	case core.CadenceWeekly:
		return weeklyPeriods(rule, end)
	case core.CadenceInterval:
		return intervalPeriods(rule, end)
	default:
		return nil
	}
}

func monthlyPeriods(rule core.RecurringRule, end time.Time) []Period {
	anchor := rule.AnchorDay
	if anchor == 0 {
		anchor = rule.StartDate.Day()
	}

	var periods []Period
	year, month := rule.StartDate.Year(), rule.StartDate.Time.Month()
	for {
		first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		if first.After(end) {
			break
		}
		periods = append(periods, Period{
			Key: fmt.Sprintf("%04d-%02d", year, int(month)),
			Due: core.NewDate(year, int(month), clampDay(anchor, year, month)),
		})
		year, month = nextMonth(year, month)
	}
	return periods
}

func weeklyPeriods(rule core.RecurringRule, end time.Time) []Period {
	anchor := rule.AnchorDay
	if anchor == 0 {
		anchor = (int(rule.StartDate.Weekday()) + 6) % 7
	}

	var periods []Period
	monday := mondayOf(rule.StartDate.Time)
	for !monday.After(end) {
		isoYear, isoWeek := monday.ISOWeek()
		due := monday.AddDate(0, 0, anchor)
		periods = append(periods, Period{
			Key: fmt.Sprintf("%04d-W%02d", isoYear, isoWeek),
			Due: core.Date{Time: due},
		})
		monday = monday.AddDate(0, 0, 7)
	}
	return periods
}

func intervalPeriods(rule core.RecurringRule, end time.Time) []Period {
	if rule.IntervalDays < 1 {
		return nil
	}

	var periods []Period
	for n := 0; ; n++ {
		start := rule.StartDate.Time.AddDate(0, 0, n*rule.IntervalDays)
		if start.After(end) {
			break
		}
		periods = append(periods, Period{
			Key: fmt.Sprintf("iv%d", n),
			Due: core.Date{Time: start},
		})
	}
	return periods
}

// clampDay pins an anchor day to the month's last day, so a rule anchored
// on the 31st fires on Feb 28/29.
func clampDay(day int, year int, month time.Month) int {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		return last
	}
	return day
}

// mondayOf returns the Monday of the ISO week containing t.
func mondayOf(t time.Time) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}

func nextMonth(year int, month time.Month) (int, time.Month) {
	if month == time.December {
		return year + 1, time.January
	}
	return year, month + 1
}
