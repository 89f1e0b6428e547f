// Package schedule parses and matches "HH:MM#destination#source" delivery rules.
package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"newsnow_bot/internal/model"
)

const cronPrefix = "cron:"

var reHHMM = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// ParseError describes a rule that was skipped.
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid rule %q: %s", e.Raw, e.Reason)
}

// Rule is a validated schedule rule. Rules hold no resources and are
// rebuilt on every tick.
type Rule struct {
	model.ScheduleRule

	cron cron.Schedule
}

// Parse parses one rule. The time field is either HH:MM (24h) or
// "cron:" followed by a standard five-field cron expression.
func Parse(raw string) (Rule, error) {
	parts := strings.Split(strings.TrimSpace(raw), "#")
	if len(parts) != 3 {
		return Rule{}, &ParseError{Raw: raw, Reason: fmt.Sprintf("want 3 fields separated by '#', got %d", len(parts))}
	}
	tod := strings.TrimSpace(parts[0])
	dest := strings.TrimSpace(parts[1])
	src := strings.TrimSpace(parts[2])
	if dest == "" {
		return Rule{}, &ParseError{Raw: raw, Reason: "destination is empty"}
	}
	if src == "" {
		return Rule{}, &ParseError{Raw: raw, Reason: "source is empty"}
	}

	r := Rule{ScheduleRule: model.ScheduleRule{Destination: dest, Source: src}}

	if len(tod) >= len(cronPrefix) && strings.EqualFold(tod[:len(cronPrefix)], cronPrefix) {
		expr := strings.TrimSpace(tod[len(cronPrefix):])
		sched, err := parseCron(expr)
		if err != nil {
			return Rule{}, &ParseError{Raw: raw, Reason: err.Error()}
		}
		r.TimeOfDay = cronPrefix + expr
		r.cron = sched
		return r, nil
	}

	norm, err := ParseTimeOfDay(tod)
	if err != nil {
		return Rule{}, &ParseError{Raw: raw, Reason: err.Error()}
	}
	r.TimeOfDay = norm
	return r, nil
}

func parseCron(expr string) (cron.Schedule, error) {
	if expr == "" {
		return nil, fmt.Errorf("cron expression required after %q", cronPrefix)
	}
	if strings.HasPrefix(expr, "@every") {
		return nil, fmt.Errorf("interval schedules are not supported")
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("cron: %w", err)
	}
	return sched, nil
}

// ParseTimeOfDay validates a 24h time and returns it zero-padded as HH:MM.
func ParseTimeOfDay(s string) (string, error) {
	m := reHHMM.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", fmt.Errorf("time %q is not HH:MM", s)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if hh > 23 || mm > 59 {
		return "", fmt.Errorf("time %q out of range", s)
	}
	return fmt.Sprintf("%02d:%02d", hh, mm), nil
}

// Matches reports whether the rule fires in the minute containing now.
func (r Rule) Matches(now time.Time) bool {
	if r.cron != nil {
		minute := now.Truncate(time.Minute)
		return r.cron.Next(minute.Add(-time.Second)).Equal(minute)
	}
	return r.TimeOfDay == now.Format("15:04")
}

// ParseAll parses every raw rule, returning the valid ones and one error per
// skipped entry. A bad entry never affects the others.
func ParseAll(raws []string) ([]Rule, []error) {
	var (
		rules []Rule
		errs  []error
	)
	for _, raw := range raws {
		r, err := Parse(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rules = append(rules, r)
	}
	return rules, errs
}
