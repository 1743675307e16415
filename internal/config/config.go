// Package config provides centralized configuration loaded from environment
// variables. Shared by all lifetimebot subcommands.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"lifetimebot/internal/schedule"
)

// --------------------------------------------------------------------------
// Defaults — the timing constants come from the original deployment: the
// club opens registration 7 days 22 hours (11400 minutes) before class
// start, and the schedule endpoint is queried for a 10-day window starting
// a week out.
// --------------------------------------------------------------------------

const (
	DefaultLeadMinutes       = 11400
	DefaultRefreshSeconds    = 24 * 60 * 60
	DefaultPollSeconds       = 1
	DefaultRetryCount        = 5
	DefaultRetryBackoffSecs  = 2
	DefaultFetchOffsetDays   = 7
	DefaultFetchDurationDays = 10
	DefaultRequestsPerMinute = 30
	DefaultSMTPServer        = "smtp.gmail.com"
	DefaultSMTPPort          = 587
	DefaultStateFile         = "processed_events.json"
	DefaultSnapshotFile      = "schedule_snapshot.json"
)

// --------------------------------------------------------------------------
// Config struct — populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Life Time account
	Username  string
	Password  string
	MemberIDs []int

	// Schedule query
	Interest          string
	Club              string
	FetchOffsetDays   int
	FetchDurationDays int

	// Filter rules
	IncludeTerms        []string
	ExcludeTerms        []string
	WeekendDays         []string
	AllowedWeekdayParts []string

	// Timing
	LeadTime        time.Duration
	RefreshInterval time.Duration
	PollInterval    time.Duration
	RetryCount      int
	RetryBackoff    time.Duration

	// API client
	APIBaseURL        string
	RequestsPerMinute int

	// State files
	StateFile    string
	SnapshotFile string

	// Notifications
	SMSRecipient      string
	EmailSender       string
	EmailPassword     string
	SMTPServer        string
	SMTPPort          int
	DiscordWebhookURL string

	// Status server (disabled when empty)
	StatusAddr       string
	CORSAllowOrigins []string
}

// Load reads configuration from environment variables with sensible
// defaults. Account credentials are required; everything else has a default
// or degrades to disabled.
func Load() (*Config, error) {
	username := os.Getenv("LIFETIME_USERNAME")
	password := os.Getenv("LIFETIME_PASSWORD")
	if username == "" || password == "" {
		return nil, fmt.Errorf("LIFETIME_USERNAME and LIFETIME_PASSWORD must be set")
	}

	memberIDs, err := envIntList("LIFETIME_MEMBER_IDS")
	if err != nil {
		return nil, fmt.Errorf("LIFETIME_MEMBER_IDS must be a comma-separated list of numbers: %w", err)
	}

	return &Config{
		Username:  username,
		Password:  password,
		MemberIDs: memberIDs,

		Interest:          envOr("LIFETIME_INTEREST", "Pickleball Open Play"),
		Club:              envOr("LIFETIME_CLUB", "Denver West"),
		FetchOffsetDays:   envInt("FETCH_START_OFFSET_DAYS", DefaultFetchOffsetDays),
		FetchDurationDays: envInt("FETCH_DURATION_DAYS", DefaultFetchDurationDays),

		IncludeTerms:        envList("INCLUDE_TERMS", []string{"intermediate"}),
		ExcludeTerms:        envList("EXCLUDE_TERMS", []string{"advanced", "singles"}),
		WeekendDays:         envList("WEEKEND_DAYS", []string{"saturday", "sunday"}),
		AllowedWeekdayParts: envList("ALLOWED_WEEKDAY_DAY_PARTS", []string{"Evening"}),

		LeadTime:        time.Duration(envInt("REGISTRATION_LEAD_MINUTES", DefaultLeadMinutes)) * time.Minute,
		RefreshInterval: time.Duration(envInt("SCHEDULE_REFRESH_SECONDS", DefaultRefreshSeconds)) * time.Second,
		PollInterval:    time.Duration(envInt("REGISTRATION_POLL_SECONDS", DefaultPollSeconds)) * time.Second,
		RetryCount:      envInt("RETRY_COUNT", DefaultRetryCount),
		RetryBackoff:    time.Duration(envInt("RETRY_BACKOFF_SECONDS", DefaultRetryBackoffSecs)) * time.Second,

		APIBaseURL:        envOr("LIFETIME_API_BASE_URL", ""),
		RequestsPerMinute: envInt("API_REQUESTS_PER_MINUTE", DefaultRequestsPerMinute),

		StateFile:    envOr("STATE_FILE", DefaultStateFile),
		SnapshotFile: envOr("SNAPSHOT_FILE", DefaultSnapshotFile),

		SMSRecipient:      os.Getenv("SMS_RECIPIENT_EMAIL"),
		EmailSender:       os.Getenv("EMAIL_SENDER_ADDRESS"),
		EmailPassword:     os.Getenv("EMAIL_SENDER_PASSWORD"),
		SMTPServer:        envOr("SMTP_SERVER", DefaultSMTPServer),
		SMTPPort:          envInt("SMTP_PORT", DefaultSMTPPort),
		DiscordWebhookURL: os.Getenv("DISCORD_WEBHOOK_URL"),

		StatusAddr: os.Getenv("STATUS_ADDR"),
		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
		}),
	}, nil
}

// Rules assembles the immutable filter rule set from configuration.
func (c *Config) Rules() schedule.RuleSet {
	return schedule.RuleSet{
		IncludeTerms:        c.IncludeTerms,
		ExcludeTerms:        c.ExcludeTerms,
		WeekendDays:         c.WeekendDays,
		AllowedWeekdayParts: c.AllowedWeekdayParts,
	}
}

// RequireMembers validates that at least one member ID is configured.
// Needed by every mode that registers; the fetch-only mode does not.
func (c *Config) RequireMembers() error {
	if len(c.MemberIDs) == 0 {
		return fmt.Errorf("LIFETIME_MEMBER_IDS must list at least one member ID")
	}
	return nil
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// envIntList parses a comma-separated list of integers. Unlike envInt, a
// malformed value is an error rather than a silent fallback: silently
// registering the wrong member is worse than refusing to start.
func envIntList(key string) ([]int, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, nil
	}
	parts := strings.Split(v, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		n, err := strconv.Atoi(trimmed)
		if err != nil {
			return nil, fmt.Errorf("bad entry %q", trimmed)
		}
		ids = append(ids, n)
	}
	return ids, nil
}
