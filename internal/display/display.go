// Package display renders runs for the terminal.
package display

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/nvandessel/tradernet/internal/store"
)

// PricePlaces is the number of decimal places prices are shown with.
const PricePlaces = 4

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	upStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	downStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
)

// FormatPrice renders p with PricePlaces fixed decimals.
func FormatPrice(p float64) string {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return fmt.Sprint(p)
	}
	return decimal.NewFromFloat(p).StringFixed(PricePlaces)
}

// Change returns last minus first, rounded to PricePlaces, with an explicit sign.
func Change(first, last float64) string {
	d := decimal.NewFromFloat(last).Sub(decimal.NewFromFloat(first)).Round(PricePlaces)
	s := d.StringFixed(PricePlaces)
	if d.Sign() >= 0 {
		s = "+" + s
	}
	return s
}

// Stats summarizes a price series.
type Stats struct {
	First, Last float64
	Min, Max    float64
	Mean        float64
	StdDev      float64
	Inverted    int // total inverted quotes over all steps
}

// ComputeStats summarizes steps. The zero Stats is returned for no steps.
func ComputeStats(steps []store.Step) Stats {
	if len(steps) == 0 {
		return Stats{}
	}
	st := Stats{
		First: steps[0].Price,
		Last:  steps[len(steps)-1].Price,
		Min:   math.Inf(1),
		Max:   math.Inf(-1),
	}
	var sum float64
	for _, s := range steps {
		st.Min = math.Min(st.Min, s.Price)
		st.Max = math.Max(st.Max, s.Price)
		sum += s.Price
		st.Inverted += s.Inverted
	}
	st.Mean = sum / float64(len(steps))

	var sq float64
	for _, s := range steps {
		d := s.Price - st.Mean
		sq += d * d
	}
	st.StdDev = math.Sqrt(sq / float64(len(steps)))
	return st
}

// sparkRunes are the eight bar heights of a sparkline.
var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// Sparkline draws prices as a single line of bars, at most width wide.
// Longer series are downsampled by averaging buckets.
func Sparkline(prices []float64, width int) string {
	if len(prices) == 0 || width <= 0 {
		return ""
	}
	if len(prices) > width {
		prices = downsample(prices, width)
	}

	lo, hi := prices[0], prices[0]
	for _, p := range prices {
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}

	var sb strings.Builder
	for _, p := range prices {
		idx := 0
		if hi > lo {
			idx = int(math.Round((p - lo) / (hi - lo) * float64(len(sparkRunes)-1)))
		}
		sb.WriteRune(sparkRunes[idx])
	}
	return sb.String()
}

func downsample(xs []float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		lo := i * len(xs) / n
		hi := (i + 1) * len(xs) / n
		var sum float64
		for _, x := range xs[lo:hi] {
			sum += x
		}
		out[i] = sum / float64(hi-lo)
	}
	return out
}

// RunPanel renders a bordered summary of a run.
func RunPanel(run store.RunSummary, steps []store.Step) string {
	st := ComputeStats(steps)

	rows := [][2]string{
		{"Run", run.ID},
		{"Created", run.CreatedAt.Local().Format("2006-01-02 15:04:05")},
		{"Seed", fmt.Sprintf("%d", run.Seed)},
		{"Network", fmt.Sprintf("%d traders, %d trust edges", run.Nodes, run.Edges)},
		{"Steps", fmt.Sprintf("%d", run.Steps)},
	}
	if len(steps) > 0 {
		change := Change(st.First, st.Last)
		if st.Last >= st.First {
			change = upStyle.Render(change)
		} else {
			change = downStyle.Render(change)
		}
		rows = append(rows,
			[2]string{"Final price", FormatPrice(st.Last) + " (" + change + ")"},
			[2]string{"Range", FormatPrice(st.Min) + " .. " + FormatPrice(st.Max)},
			[2]string{"Mean / std", FormatPrice(st.Mean) + " / " + FormatPrice(st.StdDev)},
			[2]string{"Prices", Sparkline(pricesOf(steps), 48)},
		)
		if st.Inverted > 0 {
			rows = append(rows, [2]string{"Inverted", warnStyle.Render(fmt.Sprintf("%d quotes", st.Inverted))})
		}
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("tradernet run"))
	for _, r := range rows {
		sb.WriteString("\n")
		sb.WriteString(labelStyle.Render(fmt.Sprintf("%-12s", r[0])))
		sb.WriteString(r[1])
	}
	return panelStyle.Render(sb.String())
}

// StepTable renders one line per step. limit > 0 keeps only the last
// limit steps.
func StepTable(steps []store.Step, limit int) string {
	if limit > 0 && len(steps) > limit {
		steps = steps[len(steps)-limit:]
	}

	var sb strings.Builder
	sb.WriteString(labelStyle.Render(fmt.Sprintf("%6s  %12s  %7s  %7s  %7s  %8s", "t", "price", "buy", "hold", "sell", "inverted")))
	for _, s := range steps {
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "%6d  %12s  %7d  %7d  %7d  %8d",
			s.T, FormatPrice(s.Price), s.Buyers, s.Holders, s.Sellers, s.Inverted)
	}
	return sb.String()
}

// RunList renders run summaries one per line.
func RunList(runs []store.RunSummary) string {
	if len(runs) == 0 {
		return labelStyle.Render("no runs stored")
	}
	var sb strings.Builder
	sb.WriteString(labelStyle.Render(fmt.Sprintf("%-36s  %-19s  %7s  %6s  %12s", "id", "created", "traders", "steps", "final price")))
	for _, r := range runs {
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "%-36s  %-19s  %7d  %6d  %12s",
			r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Nodes, r.Steps, FormatPrice(r.FinalPrice))
	}
	return sb.String()
}

func pricesOf(steps []store.Step) []float64 {
	out := make([]float64, len(steps))
	for i, s := range steps {
		out[i] = s.Price
	}
	return out
}
