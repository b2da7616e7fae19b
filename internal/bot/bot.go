// Package bot is the operator command surface, a long-polled Telegram
// command router. Read-only commands are open to any user reaching the
// bot; control commands require the configured admin user id.
package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pump-signal-bot/internal/coordinator"
	"pump-signal-bot/internal/database"
	"pump-signal-bot/internal/notification"
)

const pollTimeout = 30 * time.Second

// Reporter generates the on-demand daily summary.
type Reporter interface {
	Generate(ctx context.Context, now time.Time) (string, error)
}

// Deps are the collaborators the command handlers consult.
type Deps struct {
	DB         *database.DB
	Health     *coordinator.Health
	Reporter   Reporter
	Settings   *SettingsStore
	Symbols    []string
	ConfigText string                          // rendered config for /config
	TestSignal func(ctx context.Context) error // fires a canned signal end to end
}

// Bot long-polls getUpdates and dispatches commands.
type Bot struct {
	token    string
	adminIDs map[int64]bool
	deps     Deps
	client   *http.Client
	baseURL  string
	offset   int64
	log      zerolog.Logger
}

// New creates the Bot. adminIDsCSV lists the control user ids.
func New(token, adminIDsCSV string, deps Deps, log zerolog.Logger) *Bot {
	l := log.With().Str("component", "bot").Logger()
	admins := make(map[int64]bool)
	for _, id := range notification.ParseChatIDs(adminIDsCSV, l) {
		admins[id] = true
	}
	return &Bot{
		token:    token,
		adminIDs: admins,
		deps:     deps,
		client:   &http.Client{Timeout: pollTimeout + 15*time.Second},
		baseURL:  "https://api.telegram.org",
		log:      l,
	}
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		From *struct {
			ID int64 `json:"id"`
		} `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

// Run polls until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	if b.token == "" {
		b.log.Info().Msg("no bot token configured, command surface disabled")
		return
	}
	b.log.Info().Int("admins", len(b.adminIDs)).Msg("command router starting")

	for ctx.Err() == nil {
		updates, err := b.fetchUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.log.Warn().Err(err).Msg("getUpdates failed, backing off")
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		for _, u := range updates {
			b.offset = u.UpdateID + 1
			b.handle(ctx, u)
		}
	}
}

func (b *Bot) fetchUpdates(ctx context.Context) ([]update, error) {
	q := url.Values{}
	q.Set("timeout", strconv.Itoa(int(pollTimeout.Seconds())))
	q.Set("offset", strconv.FormatInt(b.offset, 10))

	reqURL := fmt.Sprintf("%s/bot%s/getUpdates?%s", b.baseURL, b.token, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build getUpdates request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("getUpdates status %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		OK     bool     `json:"ok"`
		Result []update `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode getUpdates: %w", err)
	}
	if !payload.OK {
		return nil, fmt.Errorf("getUpdates returned ok=false")
	}
	return payload.Result, nil
}

func (b *Bot) handle(ctx context.Context, u update) {
	if u.Message == nil || u.Message.From == nil {
		return
	}
	text := strings.TrimSpace(u.Message.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	fields := strings.Fields(text)
	command := strings.TrimPrefix(fields[0], "/")
	if at := strings.Index(command, "@"); at >= 0 {
		command = command[:at]
	}
	args := fields[1:]
	userID := u.Message.From.ID
	chatID := u.Message.Chat.ID

	reply := b.dispatch(ctx, command, args, userID)
	if reply == "" {
		return
	}
	if err := b.sendMessage(ctx, chatID, reply); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("command reply failed")
	}
}

func (b *Bot) dispatch(ctx context.Context, command string, args []string, userID int64) string {
	switch command {
	case "start", "status":
		return b.cmdStatus(ctx)
	case "symbols":
		return b.cmdSymbols()
	case "pnl":
		return b.cmdPnL(ctx)
	case "trades":
		return b.cmdTrades(ctx)
	case "health":
		return b.cmdHealth()
	case "report":
		return b.cmdReport(ctx)
	case "profile":
		return b.cmdProfile(userID)
	case "sethorizon":
		return b.cmdSetHorizon(userID, args)
	case "setrisk":
		return b.cmdSetRisk(userID, args)
	case "config":
		if !b.isAdmin(userID) {
			return "⛔ Admin only."
		}
		return b.cmdConfig()
	case "testsignal":
		if !b.isAdmin(userID) {
			return "⛔ Admin only."
		}
		return b.cmdTestSignal(ctx)
	default:
		return ""
	}
}

func (b *Bot) isAdmin(userID int64) bool {
	return b.adminIDs[userID]
}

func (b *Bot) cmdStatus(ctx context.Context) string {
	snap := b.deps.Health.Snapshot()
	open, err := b.deps.DB.ActiveTrades(ctx)
	openCount := 0
	if err == nil {
		openCount = len(open)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "🤖 <b>Engine Status</b>\nUptime: %s\nScans: %d\nCandidates: %d\nAdmitted: %d\nOpen trades: %d",
		snap.Uptime.Round(time.Second), snap.Scans, snap.Candidates, snap.Admitted, openCount)

	signals, err := b.deps.DB.LastSignals(ctx, 5)
	if err == nil && len(signals) > 0 {
		sb.WriteString("\n\nLast signals:")
		for _, s := range signals {
			fmt.Fprintf(&sb, "\n• %s @ %s (score %.2f)", s.Symbol,
				notification.FormatPrice(s.Price), s.Score)
		}
	}
	return sb.String()
}

func (b *Bot) cmdSymbols() string {
	return fmt.Sprintf("📋 <b>Universe</b> (%d)\n%s",
		len(b.deps.Symbols), strings.Join(b.deps.Symbols, ", "))
}

func (b *Bot) cmdPnL(ctx context.Context) string {
	s, err := b.deps.DB.Summary(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("pnl summary failed")
		return "⚠️ PnL summary unavailable."
	}
	return fmt.Sprintf("💰 <b>PnL Summary</b>\nClosed: %d | Win rate: %.1f%%\nTotal: $%.2f\nBest: $%.2f | Worst: $%.2f",
		s.TotalTrades, s.WinRate(), s.TotalPnLUSD, s.BestPnLUSD, s.WorstPnLUSD)
}

func (b *Bot) cmdTrades(ctx context.Context) string {
	trades, err := b.deps.DB.RecentTrades(ctx, 10)
	if err != nil {
		b.log.Error().Err(err).Msg("recent trades failed")
		return "⚠️ Trades unavailable."
	}
	if len(trades) == 0 {
		return "No trades yet."
	}
	var sb strings.Builder
	sb.WriteString("📜 <b>Recent Trades</b>\n")
	for _, t := range trades {
		line := fmt.Sprintf("%s %s %s entry %s", t.Symbol, t.Side, t.Status,
			notification.FormatPrice(t.Entry))
		if t.Status == database.TradeStatusClosed {
			line += fmt.Sprintf(" | $%.2f (%.2f%%)", t.PnLUSD, t.PnLPct)
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

func (b *Bot) cmdHealth() string {
	snap := b.deps.Health.Snapshot()
	var sb strings.Builder
	fmt.Fprintf(&sb, "🩺 <b>Health</b>\nUptime: %s\nScans: %d | Candidates: %d | Admitted: %d\n",
		snap.Uptime.Round(time.Second), snap.Scans, snap.Candidates, snap.Admitted)
	if !snap.LastAdmit.IsZero() {
		fmt.Fprintf(&sb, "Last admit: %s\n", snap.LastAdmit.Format("2006-01-02 15:04:05"))
	}
	if len(snap.Rejections) > 0 {
		sb.WriteString("Rejections:\n")
		for _, r := range snap.Rejections {
			fmt.Fprintf(&sb, "• %s: %d\n", r.Reason, r.Count)
		}
	}
	return sb.String()
}

func (b *Bot) cmdReport(ctx context.Context) string {
	summary, err := b.deps.Reporter.Generate(ctx, time.Now())
	if err != nil {
		b.log.Error().Err(err).Msg("on-demand report failed")
		return "⚠️ Report generation failed."
	}
	return summary
}

func (b *Bot) cmdProfile(userID int64) string {
	us := b.deps.Settings.Get(userID)
	return fmt.Sprintf("👤 <b>Profile</b>\nHorizon: %s\nRisk: %s\nTimeframes: %s",
		HorizonName(us.Horizon), RiskName(us.Risk),
		strings.Join(TimeframesForHorizon(us.Horizon), ", "))
}

func (b *Bot) cmdSetHorizon(userID int64, args []string) string {
	if len(args) != 1 {
		return "Usage: /sethorizon short|medium|long"
	}
	if err := b.deps.Settings.SetHorizon(userID, strings.ToLower(args[0])); err != nil {
		return "⚠️ " + err.Error()
	}
	return "✅ Horizon set to " + HorizonName(strings.ToLower(args[0]))
}

func (b *Bot) cmdSetRisk(userID int64, args []string) string {
	if len(args) != 1 {
		return "Usage: /setrisk low|medium|high"
	}
	if err := b.deps.Settings.SetRisk(userID, strings.ToLower(args[0])); err != nil {
		return "⚠️ " + err.Error()
	}
	return "✅ Risk set to " + RiskName(strings.ToLower(args[0]))
}

func (b *Bot) cmdConfig() string {
	return "⚙️ <b>Config</b>\n<code>" + b.deps.ConfigText + "</code>"
}

func (b *Bot) cmdTestSignal(ctx context.Context) string {
	if b.deps.TestSignal == nil {
		return "⚠️ Test signal not wired."
	}
	if err := b.deps.TestSignal(ctx); err != nil {
		return "⚠️ Test signal failed: " + err.Error()
	}
	return "✅ Test signal dispatched."
}

func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}
	reqURL := fmt.Sprintf("%s/bot%s/sendMessage", b.baseURL, b.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("build reply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sendMessage status %d: %s", resp.StatusCode, string(raw))
	}
	return nil
}
