// Package scheduler provides a minimal cron scheduler with file-lock overlap
// prevention and channel-based concurrency caps.
package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronExpr is a parsed 5-field cron expression. Each field is a bitmask
// over its valid range (minute 0-59, hour 0-23, day-of-month 1-31,
// month 1-12, day-of-week 0-6 with Sunday = 0).
type CronExpr struct {
	minutes uint64
	hours   uint64
	days    uint64
	months  uint64
	dows    uint64
}

type cronField struct {
	name string
	min  int
	max  int
}

var cronFields = [5]cronField{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// ParseCron parses a standard 5-field cron expression.
// Supports: *, */N, N, N-M, N-M/S, comma-separated lists.
func ParseCron(expr string) (*CronExpr, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return nil, fmt.Errorf("cron: expected 5 fields, got %d", len(parts))
	}

	var masks [5]uint64
	for i, f := range cronFields {
		mask, err := parseCronField(parts[i], f.min, f.max)
		if err != nil {
			return nil, fmt.Errorf("cron: %s: %w", f.name, err)
		}
		masks[i] = mask
	}
	return &CronExpr{
		minutes: masks[0],
		hours:   masks[1],
		days:    masks[2],
		months:  masks[3],
		dows:    masks[4],
	}, nil
}

func (c *CronExpr) bit(mask uint64, v int) bool {
	return mask&(1<<uint(v)) != 0
}

// Matches reports whether t falls on the expression, at minute
// granularity.
func (c *CronExpr) Matches(t time.Time) bool {
	return c.bit(c.minutes, t.Minute()) &&
		c.bit(c.hours, t.Hour()) &&
		c.bit(c.days, t.Day()) &&
		c.bit(c.months, int(t.Month())) &&
		c.bit(c.dows, int(t.Weekday()))
}

// Next returns the first time strictly after t that matches, searching
// up to two years ahead. Returns the zero time when nothing matches.
func (c *CronExpr) Next(t time.Time) time.Time {
	cur := t.Truncate(time.Minute).Add(time.Minute)
	horizon := t.Add(2 * 365 * 24 * time.Hour)

	for cur.Before(horizon) {
		switch {
		case !c.bit(c.months, int(cur.Month())):
			cur = time.Date(cur.Year(), cur.Month()+1, 1, 0, 0, 0, 0, cur.Location())
		case !c.bit(c.days, cur.Day()) || !c.bit(c.dows, int(cur.Weekday())):
			cur = time.Date(cur.Year(), cur.Month(), cur.Day()+1, 0, 0, 0, 0, cur.Location())
		case !c.bit(c.hours, cur.Hour()):
			cur = time.Date(cur.Year(), cur.Month(), cur.Day(), cur.Hour()+1, 0, 0, 0, cur.Location())
		case !c.bit(c.minutes, cur.Minute()):
			cur = cur.Add(time.Minute)
		default:
			return cur
		}
	}
	return time.Time{}
}

// parseCronField turns one comma-separated field into a bitmask.
func parseCronField(field string, min, max int) (uint64, error) {
	var mask uint64
	for _, part := range strings.Split(field, ",") {
		m, err := parseCronPart(part, min, max)
		if err != nil {
			return 0, err
		}
		mask |= m
	}
	return mask, nil
}

// parseCronPart handles a single list element: *, */N, N, N-M, N-M/S.
func parseCronPart(part string, min, max int) (uint64, error) {
	lo, hi, step := min, max, 1

	body := part
	if slash := strings.IndexByte(part, '/'); slash >= 0 {
		s, err := strconv.Atoi(part[slash+1:])
		if err != nil || s <= 0 {
			return 0, fmt.Errorf("invalid step %q", part)
		}
		step = s
		body = part[:slash]
	}

	switch {
	case body == "*":
		// full range
	case strings.Contains(body, "-"):
		bounds := strings.SplitN(body, "-", 2)
		var err error
		if lo, err = strconv.Atoi(bounds[0]); err != nil {
			return 0, fmt.Errorf("invalid range start %q", bounds[0])
		}
		if hi, err = strconv.Atoi(bounds[1]); err != nil {
			return 0, fmt.Errorf("invalid range end %q", bounds[1])
		}
		if lo < min || hi > max || lo > hi {
			return 0, fmt.Errorf("range %d-%d out of bounds [%d,%d]", lo, hi, min, max)
		}
	default:
		v, err := strconv.Atoi(body)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q", body)
		}
		if v < min || v > max {
			return 0, fmt.Errorf("value %d out of bounds [%d,%d]", v, min, max)
		}
		if step != 1 {
			return 0, fmt.Errorf("step on single value %q", part)
		}
		lo, hi = v, v
	}

	var mask uint64
	for v := lo; v <= hi; v += step {
		mask |= 1 << uint(v)
	}
	return mask, nil
}
