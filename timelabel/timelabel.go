// Package timelabel resolves the relative and partial date labels rendered
// on feed cards ("3天前", "08月19日") into calendar dates.
package timelabel

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"
)

// ErrUnresolvable is returned when a label matches none of the accepted
// grammars or names an impossible date.
var ErrUnresolvable = errors.New("time label could not be resolved")

// YearPolicy decides which year a month/day label belongs to.
type YearPolicy string

const (
	// YearCurrent always assigns the current year.
	YearCurrent YearPolicy = "current"
	// YearRollback assigns the previous year when the current year would
	// put the date after today.
	YearRollback YearPolicy = "rollback"
)

// ParseYearPolicy converts a configuration value into a YearPolicy. The
// empty string selects YearCurrent.
func ParseYearPolicy(s string) (YearPolicy, error) {
	switch YearPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", YearCurrent:
		return YearCurrent, nil
	case YearRollback:
		return YearRollback, nil
	default:
		return "", fmt.Errorf("unknown year policy %q (want current or rollback)", s)
	}
}

var (
	daysAgoPattern  = regexp.MustCompile(`^(\d{1,3})天前`)
	monthDayPattern = regexp.MustCompile(`^(\d{1,2})月(\d{1,2})日`)

	// Extended grammars.
	justNowPattern     = regexp.MustCompile(`^刚刚`)
	sameDayPattern     = regexp.MustCompile(`^\d{1,3}(分钟|小时)前`)
	yesterdayPattern   = regexp.MustCompile(`^昨天`)
	twoDaysAgoPattern  = regexp.MustCompile(`^前天`)
	fullChinesePattern = regexp.MustCompile(`^(\d{4})年(\d{1,2})月(\d{1,2})日`)
	isoDatePattern     = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})`)
)

// Normalizer turns time labels into dates at midnight in Location. It holds
// no mutable state; Now is consulted on every call.
type Normalizer struct {
	// Now reports the current instant. Defaults to time.Now.
	Now func() time.Time
	// Location is the zone dates are anchored in. Defaults to time.Local.
	Location *time.Location
	// Extended enables the additional grammars: 刚刚, N分钟前, N小时前,
	// 昨天, 前天, YYYY年MM月DD日 and YYYY-MM-DD.
	Extended bool
	// YearPolicy applies to month/day labels. Defaults to YearCurrent.
	YearPolicy YearPolicy
}

// New creates a normalizer using the wall clock and local time zone.
func New() *Normalizer {
	return &Normalizer{
		Now:        time.Now,
		Location:   time.Local,
		YearPolicy: YearCurrent,
	}
}

// Today returns midnight of the current day.
func (n *Normalizer) Today() time.Time {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	t := now().In(n.location())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, n.location())
}

func (n *Normalizer) location() *time.Location {
	if n.Location == nil {
		return time.Local
	}
	return n.Location
}

// Normalize resolves label into a date. Labels are matched as prefixes, so
// trailing decorations such as " · 投稿了视频" are ignored.
func (n *Normalizer) Normalize(label string) (time.Time, error) {
	s := Fold(label)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty label", ErrUnresolvable)
	}

	today := n.Today()

	if m := daysAgoPattern.FindStringSubmatch(s); m != nil {
		days, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrUnresolvable, label)
		}
		return today.AddDate(0, 0, -days), nil
	}

	if m := monthDayPattern.FindStringSubmatch(s); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])

		d, err := n.date(today.Year(), month, day)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", err, label)
		}
		if n.YearPolicy == YearRollback && d.After(today) {
			d, err = n.date(today.Year()-1, month, day)
			if err != nil {
				return time.Time{}, fmt.Errorf("%w: %q", err, label)
			}
		}
		return d, nil
	}

	if n.Extended {
		if d, ok, err := n.normalizeExtended(s, today); ok {
			if err != nil {
				return time.Time{}, fmt.Errorf("%w: %q", err, label)
			}
			return d, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrUnresolvable, label)
}

func (n *Normalizer) normalizeExtended(s string, today time.Time) (time.Time, bool, error) {
	switch {
	case justNowPattern.MatchString(s), sameDayPattern.MatchString(s):
		return today, true, nil
	case yesterdayPattern.MatchString(s):
		return today.AddDate(0, 0, -1), true, nil
	case twoDaysAgoPattern.MatchString(s):
		return today.AddDate(0, 0, -2), true, nil
	}

	m := fullChinesePattern.FindStringSubmatch(s)
	if m == nil {
		m = isoDatePattern.FindStringSubmatch(s)
	}
	if m == nil {
		return time.Time{}, false, nil
	}

	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	d, err := n.date(year, month, day)
	return d, true, err
}

// date builds a midnight date, rejecting values time.Date would normalize
// (for example 02月30日).
func (n *Normalizer) date(year, month, day int) (time.Time, error) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, ErrUnresolvable
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, n.location())
	if d.Month() != time.Month(month) || d.Day() != day {
		return time.Time{}, ErrUnresolvable
	}
	return d, nil
}

// Fold narrows full-width characters and strips all whitespace so labels
// rendered as "３天前" or "08 月 19 日" match the grammars.
func Fold(label string) string {
	return strings.Join(strings.Fields(width.Narrow.String(label)), "")
}
