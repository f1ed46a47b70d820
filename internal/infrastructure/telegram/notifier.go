package telegram

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"time"

	"RegulatoryTracker/internal/config"
	"RegulatoryTracker/internal/domain"
	"RegulatoryTracker/internal/ports"
)

const defaultBaseURL = "https://api.telegram.org"

// Notifier sends assessments and digests to a Telegram chat via bot API.
type Notifier struct {
	baseURL  string
	botToken string
	chatID   string
	minTier  domain.RiskTier
	client   *http.Client
}

var (
	_ ports.Notifier = (*Notifier)(nil)
	_ ports.Sink     = (*Notifier)(nil)
)

// NewNotifier registers bot token and chat identifier. Assessments below
// cfg.MinTier are not sent.
func NewNotifier(cfg config.TelegramConfig) *Notifier {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	minTier, ok := domain.ParseRiskTier(cfg.MinTier)
	if !ok {
		minTier = domain.RiskMedium
	}
	return &Notifier{
		baseURL:  base,
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		minTier:  minTier,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Name identifies the sink in logs.
func (n *Notifier) Name() string {
	return "telegram"
}

// Publish sends one alert per assessment at or above the configured tier.
func (n *Notifier) Publish(ctx context.Context, a domain.Assessment) error {
	if a.RiskTier.Rank() < n.minTier.Rank() {
		return nil
	}
	return n.send(ctx, FormatAssessment(a))
}

// PublishDigest posts a pre-rendered message to Telegram.
func (n *Notifier) PublishDigest(ctx context.Context, digest string) error {
	return n.send(ctx, html.EscapeString(digest))
}

// FormatAssessment renders an alert using Telegram's HTML subset.
func FormatAssessment(a domain.Assessment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>[%s] %s</b>\n", a.RiskTier, html.EscapeString(a.Document.Title))
	fmt.Fprintf(&b, "%s · %s", html.EscapeString(a.Document.SourceID), a.Change.Status)
	if a.Change.DiffSummary != "" {
		fmt.Fprintf(&b, " (%s)", html.EscapeString(a.Change.DiffSummary))
	}
	b.WriteString("\n\n")
	b.WriteString(html.EscapeString(a.Summary))

	if len(a.ImpactAreas) > 0 {
		areas := make([]string, 0, len(a.ImpactAreas))
		for _, area := range a.ImpactAreas {
			areas = append(areas, string(area))
		}
		fmt.Fprintf(&b, "\n\nAreas: %s", strings.Join(areas, ", "))
	}
	if len(a.AffectedProducts) > 0 {
		products := make([]string, 0, len(a.AffectedProducts))
		for _, p := range a.AffectedProducts {
			products = append(products, fmt.Sprintf("%s (%.0f%%)", html.EscapeString(p.ProductID), p.Confidence*100))
		}
		fmt.Fprintf(&b, "\nProducts: %s", strings.Join(products, ", "))
	}
	for _, item := range a.ActionItems {
		fmt.Fprintf(&b, "\n- %s", html.EscapeString(item))
	}
	if a.Document.URL != "" {
		fmt.Fprintf(&b, "\n\n%s", html.EscapeString(a.Document.URL))
	}
	return b.String()
}

func (n *Notifier) send(ctx context.Context, text string) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", text)
	form.Set("parse_mode", "HTML")
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}
