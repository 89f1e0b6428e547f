package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// ErrNoAPIURL is returned when the news API base URL is not configured.
var ErrNoAPIURL = errors.New("api_url is not configured")

// Defaults applied to zero-valued settings.
const (
	DefaultScheduledTimeout = 30 * time.Second
	DefaultSendRatePerSec   = 20
)

// Settings is the hot-reloadable part of the configuration.
//
// A *Settings obtained from a Provider must be treated as read-only: the
// manager swaps whole snapshots, so a single decision never sees a mix of
// old and new lists.
type Settings struct {
	APIURL           string            `yaml:"api_url"`
	UserBlacklist    []string          `yaml:"user_blacklist"`
	UserWhitelist    []string          `yaml:"user_whitelist"`
	GroupWhitelist   []string          `yaml:"whitelist"`
	Sources          []string          `yaml:"sources"`
	ScheduledTasks   []string          `yaml:"scheduled_tasks"`
	Feeds            map[string]string `yaml:"feeds"`
	Timezone         string            `yaml:"timezone"`
	ScheduledTimeout string            `yaml:"scheduled_timeout"`
	SendRatePerSec   int               `yaml:"send_rate_per_sec"`

	location *time.Location
	timeout  time.Duration
}

// ParseSettings decodes a YAML settings document. Unknown keys are rejected.
// An empty document yields zero settings.
func ParseSettings(data []byte) (*Settings, error) {
	var s Settings
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if err := s.normalize(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) normalize() error {
	s.APIURL = strings.TrimRight(strings.TrimSpace(s.APIURL), "/")
	s.UserBlacklist = trimList(s.UserBlacklist)
	s.UserWhitelist = trimList(s.UserWhitelist)
	s.GroupWhitelist = trimList(s.GroupWhitelist)
	s.Sources = trimList(s.Sources)

	s.location = time.Local
	if tz := strings.TrimSpace(s.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
		s.location = loc
	}

	s.timeout = DefaultScheduledTimeout
	if raw := strings.TrimSpace(s.ScheduledTimeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("scheduled_timeout: invalid duration %q: %w", raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("scheduled_timeout: duration must be > 0")
		}
		s.timeout = d
	}

	if s.SendRatePerSec < 0 {
		return fmt.Errorf("send_rate_per_sec must be >= 0")
	}
	if s.SendRatePerSec == 0 {
		s.SendRatePerSec = DefaultSendRatePerSec
	}
	return nil
}

func trimList(in []string) []string {
	var out []string
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// RequireAPIURL returns ErrNoAPIURL when no base URL is configured.
func (s *Settings) RequireAPIURL() error {
	if s == nil || s.APIURL == "" {
		return ErrNoAPIURL
	}
	return nil
}

// Location returns the timezone schedule rules are evaluated in.
func (s *Settings) Location() *time.Location {
	if s == nil || s.location == nil {
		return time.Local
	}
	return s.location
}

// Timeout returns the per-action timeout of scheduled deliveries.
func (s *Settings) Timeout() time.Duration {
	if s == nil || s.timeout <= 0 {
		return DefaultScheduledTimeout
	}
	return s.timeout
}

// SendRate returns the dispatch rate limit in messages per second.
func (s *Settings) SendRate() int {
	if s == nil || s.SendRatePerSec <= 0 {
		return DefaultSendRatePerSec
	}
	return s.SendRatePerSec
}

// FeedURL returns the RSS/Atom URL mapped to a source id, if any.
func (s *Settings) FeedURL(source string) (string, bool) {
	if s == nil {
		return "", false
	}
	u, ok := s.Feeds[source]
	return u, ok && strings.TrimSpace(u) != ""
}

// Provider hands out the current settings snapshot.
type Provider interface {
	Current() *Settings
}

// Static is a Provider that always returns the same snapshot.
type Static struct {
	S *Settings
}

// Current implements Provider.
func (p Static) Current() *Settings {
	if p.S == nil {
		return &Settings{}
	}
	return p.S
}
