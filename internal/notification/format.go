package notification

import (
	"fmt"
	"html"
	"strings"

	"pump-signal-bot/internal/analyzer"
)

// FormatPrice renders a price with precision scaled to its magnitude.
func FormatPrice(v float64) string {
	abs := v
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 100:
		return fmt.Sprintf("%.2f", v)
	case abs >= 1:
		return fmt.Sprintf("%.4f", v)
	default:
		s := fmt.Sprintf("%.6f", v)
		s = strings.TrimRight(s, "0")
		return strings.TrimSuffix(s, ".")
	}
}

// FormatSignalMessage renders the admitted signal as a Telegram HTML
// caption. successRate <= 0 means no rolling stats yet.
func FormatSignalMessage(c *analyzer.SignalCandidate, successRate float64) string {
	sideIcon := "🟢"
	if c.Side == analyzer.SideShort {
		sideIcon = "🔴"
	}

	rsiLine := "📊 RSI: -"
	if c.RSIKnown {
		rsiLine = fmt.Sprintf("📊 RSI: %.1f", c.RSI)
	}

	successPart := "-"
	if successRate > 0 {
		successPart = fmt.Sprintf("%.1f%%", successRate)
	}

	lines := []string{
		"💎 <b>VIP SIGNAL</b>",
		"━━━━━━━━━━━━━━━━━━━━━━━━",
		fmt.Sprintf("📌 <b>%s</b> · %s <b>%s</b> · %dx", html.EscapeString(c.Symbol), sideIcon, c.Side, c.Leverage),
		fmt.Sprintf("⏱ Timeframe: %s · Strategy: %s", html.EscapeString(c.Timeframe), html.EscapeString(c.Strategy)),
		"",
		"🎯 <b>Entry Zone</b>",
		fmt.Sprintf("1) <code>%s</code>", FormatPrice(c.EntryLow)),
		fmt.Sprintf("2) <code>%s</code>", FormatPrice(c.EntryHigh)),
		"",
		fmt.Sprintf("🥇 <b>TP 1</b>: <code>%s</code>", FormatPrice(c.TP1)),
		fmt.Sprintf("🥈 <b>TP 2</b>: <code>%s</code>", FormatPrice(c.TP2)),
		fmt.Sprintf("🥉 <b>TP 3</b>: <code>%s</code>", FormatPrice(c.TP3)),
		fmt.Sprintf("🛑 <b>Stop Loss</b>: <code>%s</code>", FormatPrice(c.SL)),
		"",
		fmt.Sprintf("📈 Trend: %s", html.EscapeString(c.TrendLabel)),
		rsiLine,
		fmt.Sprintf("🌡 ATR: %.1f%%", c.ATRPct*100),
		fmt.Sprintf("📦 Volume: %.2fx", c.VolumeRatio),
		fmt.Sprintf("🎯 Success(30): %s | R:R %.2f", successPart, c.RiskReward),
		"",
		fmt.Sprintf("📊 Signal Time: <code>%s</code>", c.CreatedAt.Format("2006-01-02 15:04 (UTC)")),
		"",
		"⚠️ <i>Crypto markets carry high risk. Signals are not investment advice.</i>",
	}
	return strings.Join(lines, "\n")
}

// FormatDailyReportCaption wraps the day's summary for delivery.
func FormatDailyReportCaption(summary string) string {
	return fmt.Sprintf("📆 <b>End of Day Report</b>\n━━━━━━━━━━━━━━━━━━━━━━━━\n%s\n\n⚠️ Signals are not investment advice.",
		html.EscapeString(strings.TrimSpace(summary)))
}
