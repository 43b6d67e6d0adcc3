package progress

import (
	"strings"
	"time"
)

// Pattern 描述任务的重复方式
type Pattern string

const (
	PatternOnce     Pattern = "once"
	PatternDaily    Pattern = "daily"
	PatternWeekdays Pattern = "weekdays"
	PatternWeekends Pattern = "weekends"
	PatternWeekly   Pattern = "weekly"
	PatternCustom   Pattern = "custom"
)

func (p Pattern) IsValid() bool {
	switch p {
	case PatternOnce, PatternDaily, PatternWeekdays, PatternWeekends, PatternWeekly, PatternCustom:
		return true
	default:
		return false
	}
}

func ParsePattern(input string) (Pattern, error) {
	p := Pattern(strings.TrimSpace(strings.ToLower(input)))
	if !p.IsValid() {
		return "", validationError("invalid recurrence pattern %q", input)
	}
	return p, nil
}

// Normalize 截断到 UTC 当天零点
func Normalize(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(Normalize(to).Sub(Normalize(from)).Hours() / 24)
}

// IsDue 判断任务在 date 当天是否需要完成，未知的重复方式永远不到期
func IsDue(task Task, date time.Time) bool {
	day := Normalize(date)
	created := Normalize(task.CreatedAt)

	if task.Pattern == PatternOnce {
		return day.Equal(created)
	}
	if day.Before(created) {
		return false
	}

	switch task.Pattern {
	case PatternDaily:
		return true
	case PatternWeekdays:
		wd := day.Weekday()
		return wd >= time.Monday && wd <= time.Friday
	case PatternWeekends:
		wd := day.Weekday()
		return wd == time.Saturday || wd == time.Sunday
	case PatternWeekly:
		return daysBetween(created, day)%7 == 0
	case PatternCustom:
		for _, wd := range task.CustomDays {
			if wd == day.Weekday() {
				return true
			}
		}
		return false
	default:
		return false
	}
}
