package notify

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/watchtower/internal/domain"
	"github.com/vadiminshakov/watchtower/internal/storage/keys"
)

// Formatter renders engine events as Telegram Markdown.
type Formatter struct {
	quote string
}

func NewFormatter(quote string) Formatter {
	return Formatter{quote: domain.NormalizeSymbol(quote)}
}

func (f Formatter) Position(ev domain.PositionEvent) domain.Message {
	var b strings.Builder
	prefix := scopeLabel(ev.Scope)
	pos := ev.Position

	switch ev.Kind {
	case domain.PositionOpened:
		fmt.Fprintf(&b, "🟢 %s*%s position opened*\n", prefix, escape(ev.Symbol))
		fmt.Fprintf(&b, "Bought: `%s` @ `%s`\n", ev.Delta.String(), f.price(ev.Price))
	case domain.PositionIncreased:
		fmt.Fprintf(&b, "➕ %s*%s position increased*\n", prefix, escape(ev.Symbol))
		fmt.Fprintf(&b, "Bought: `%s` @ `%s`\n", ev.Delta.String(), f.price(ev.Price))
		fmt.Fprintf(&b, "Holding: `%s`\n", pos.Holding.String())
		fmt.Fprintf(&b, "Avg buy price: `%s`\n", f.price(pos.AverageBuyPrice))
	case domain.PositionReduced:
		fmt.Fprintf(&b, "➖ %s*%s position partially closed*\n", prefix, escape(ev.Symbol))
		fmt.Fprintf(&b, "Sold: `%s` @ `%s`\n", ev.Delta.Abs().String(), f.price(ev.Price))
		fmt.Fprintf(&b, "Remaining: `%s`\n", pos.Holding.String())
		if ev.Trade != nil {
			fmt.Fprintf(&b, "Realized PnL: `%s` (%s)\n", f.money(ev.Trade.PnL), percent(ev.Trade.PnLPercent()))
		}
	case domain.PositionClosed:
		fmt.Fprintf(&b, "🔴 %s*%s position closed*\n", prefix, escape(ev.Symbol))
		fmt.Fprintf(&b, "Sold: `%s` @ `%s`\n", ev.Delta.Abs().String(), f.price(ev.Price))
		fmt.Fprintf(&b, "Avg buy price: `%s`\n", f.price(pos.AverageBuyPrice))
		if ev.Trade != nil {
			fmt.Fprintf(&b, "PnL: `%s` (%s)\n", f.money(ev.Trade.PnL), percent(ev.Trade.PnLPercent()))
			fmt.Fprintf(&b, "Duration: `%s` days\n", ev.Trade.DurationDays.String())
		}
		fmt.Fprintf(&b, "Total realized: `%s`\n", f.money(ev.TotalRealizedPnL()))
	}

	return markdown(b.String())
}

func (f Formatter) Movement(ev domain.MovementEvent) domain.Message {
	icon := "📈"
	if ev.Direction == domain.DirectionDown {
		icon = "📉"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s moved %s*\n", icon, escape(ev.Symbol), percent(ev.ChangePercent))
	fmt.Fprintf(&b, "Price: `%s` (was `%s`)\n", f.price(ev.Price), f.price(ev.Baseline))
	fmt.Fprintf(&b, "Threshold: `%s%%`\n", ev.Threshold.String())

	return markdown(b.String())
}

func (f Formatter) Alert(ev domain.AlertEvent) domain.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "🔔 *%s alert triggered*\n", escape(ev.Alert.InstID))
	fmt.Fprintf(&b, "Price `%s` is %s `%s`\n", f.price(ev.Price), ev.Alert.Condition, f.price(ev.Alert.Price))

	return markdown(b.String())
}

func (f Formatter) Report(r domain.Report) domain.Message {
	var b strings.Builder
	title := "Hourly portfolio"
	if r.Kind == domain.ReportDaily {
		title = "Daily portfolio"
	}
	fmt.Fprintf(&b, "📊 *%s* %s\n", title, r.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"))

	for _, line := range r.Lines {
		fmt.Fprintf(&b, "\n*%s* `%s` @ `%s` (24h %s)\n",
			escape(line.Symbol), line.Holding.String(), f.price(line.Price), percent(line.Change24h))
		fmt.Fprintf(&b, "Avg `%s` | PnL `%s` (%s)\n",
			f.price(line.AverageBuy), f.money(line.UnrealizedPnL), percent(line.PnLPercent))
		if line.Extrema != nil {
			fmt.Fprintf(&b, "High `%s` | Low `%s`\n", f.price(line.Extrema.High), f.price(line.Extrema.Low))
		}
		if line.Change7d != nil {
			fmt.Fprintf(&b, "7d %s", percent(*line.Change7d))
			if line.RSI14 != nil {
				fmt.Fprintf(&b, " | RSI(14) `%s`", line.RSI14.StringFixed(1))
			}
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\nValue: `%s` | Cost: `%s`\n", f.money(r.TotalValue), f.money(r.TotalCost))
	fmt.Fprintf(&b, "Unrealized PnL: `%s`\n", f.money(r.UnrealizedPnL))
	if r.Kind == domain.ReportDaily {
		fmt.Fprintf(&b, "Realized 24h: `%s` over %d trades\n", f.money(r.RealizedPnL), r.ClosedTrades)
	}

	return markdown(b.String())
}

func (f Formatter) Diagnostic(task string, err error) domain.Message {
	return markdown(fmt.Sprintf("⚠️ *%s failed*\n`%s`\n", escape(task), strings.ReplaceAll(err.Error(), "`", "'")))
}

func (f Formatter) money(d decimal.Decimal) string {
	s := d.StringFixed(2)
	if f.quote != "" {
		s += " " + f.quote
	}
	return s
}

func (f Formatter) price(d decimal.Decimal) string {
	if d.Abs().LessThan(decimal.NewFromInt(1)) {
		return d.Round(8).String()
	}
	return d.StringFixed(2)
}

func percent(d decimal.Decimal) string {
	sign := ""
	if d.IsPositive() {
		sign = "+"
	}
	return sign + d.StringFixed(2) + "%"
}

func scopeLabel(scope string) string {
	if scope == keys.VirtualScope {
		return "[virtual] "
	}
	return ""
}

func escape(s string) string {
	return strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[").Replace(s)
}

func markdown(text string) domain.Message {
	return domain.Message{Text: strings.TrimRight(text, "\n"), ParseMode: domain.ParseModeMarkdown}
}
