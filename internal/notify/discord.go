package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"lifetimebot/internal/schedule"
)

// Discord API limits.
const (
	discordContentLimit     = 2000
	discordDescriptionLimit = 4096
	discordTimeout          = 15 * time.Second
)

// DiscordSender posts messages and schedule digests to a Discord webhook.
type DiscordSender struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewDiscordSender creates a Discord notifier. Returns nil when no webhook
// URL is configured (Discord notifications disabled).
func NewDiscordSender(webhookURL string, logger *slog.Logger) *DiscordSender {
	if webhookURL == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscordSender{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: discordTimeout},
		logger:     logger,
		now:        time.Now,
	}
}

// embed is the subset of Discord's embed object this bot uses.
type embed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Color       int    `json:"color,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

type webhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []embed `json:"embeds,omitempty"`
}

// Send posts a plain content message.
func (d *DiscordSender) Send(ctx context.Context, subject, body string) error {
	if d == nil {
		return nil
	}
	content := body
	if subject != "" {
		content = "**" + subject + "**\n" + body
	}
	if len(content) > discordContentLimit {
		content = content[:discordContentLimit]
	}
	return d.post(ctx, webhookPayload{Content: content})
}

// SendScheduleDigest posts an embed summarizing a fresh schedule fetch: each
// watched class with its start time and computed registration-open instant.
func (d *DiscordSender) SendScheduleDigest(ctx context.Context, activities []schedule.Activity, lead time.Duration) error {
	if d == nil || len(activities) == 0 {
		return nil
	}

	var lines []string
	lines = append(lines, "The latest schedule fetch includes the following classes:", "")
	for _, a := range activities {
		opens := "N/A"
		if !a.StartsAt.IsZero() {
			opens = schedule.RegistrationOpens(a.StartsAt, lead).Format("Mon Jan 02, 15:04 MST")
		}
		lines = append(lines,
			fmt.Sprintf("- **%s**", a.ClassName),
			fmt.Sprintf("  - Class Time: %s %s", a.Date, a.StartTime),
			fmt.Sprintf("  - Reg. Opens: %s", opens),
		)
	}

	description := strings.Join(lines, "\n")
	if len(description) > discordDescriptionLimit-100 {
		description = description[:discordDescriptionLimit-100] + "\n... (truncated)"
	}

	payload := webhookPayload{
		Embeds: []embed{{
			Title:       fmt.Sprintf("Schedule Update: %d Classes Fetched", len(activities)),
			Description: description,
			Color:       0x1ABC9C,
			Timestamp:   d.now().UTC().Format(time.RFC3339),
		}},
	}
	return d.post(ctx, payload)
}

// post delivers a webhook payload.
func (d *DiscordSender) post(ctx context.Context, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("discord webhook returned %d", resp.StatusCode)
	}

	d.logger.Info("Discord notification sent")
	return nil
}
