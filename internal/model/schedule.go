package model

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ParseCron parses a 5 field cron expression or a descriptor such as
// @daily or @every 1h.
func ParseCron(expr string) (cron.Schedule, error) {
	e := strings.TrimSpace(expr)
	if e == "" {
		return nil, errors.New("empty cron expression")
	}

	// Macros / @every handled by ParseStandard.
	if strings.HasPrefix(e, "@") {
		return cron.ParseStandard(e)
	}

	parser5 := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser5.Parse(e)
}

var durationRx = regexp.MustCompile(`^(\d+d)?(\d+h)?(\d+m)?(\d+s)?$`)

// ParseDuration parses strings matching ^(\d+d)?(\d+h)?(\d+m)?(\d+s)?$
// into time.Duration. Empty string is rejected.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, errors.New("empty duration")
	}
	m := durationRx.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid duration format: %q", s)
	}
	var total time.Duration
	for _, seg := range m[1:] {
		if seg == "" {
			continue
		}
		val, err := strconv.ParseInt(seg[:len(seg)-1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number in %s", seg)
		}
		var unit time.Duration
		switch seg[len(seg)-1] {
		case 'd':
			unit = 24 * time.Hour
		case 'h':
			unit = time.Hour
		case 'm':
			unit = time.Minute
		case 's':
			unit = time.Second
		}
		if val > int64(math.MaxInt64/unit) {
			return 0, errors.New("duration overflow")
		}
		add := unit * time.Duration(val)
		if total > time.Duration(math.MaxInt64)-add {
			return 0, errors.New("duration overflow")
		}
		total += add
	}
	return total, nil
}
