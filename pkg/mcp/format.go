package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/kappaborg/Simultane-Translate/pkg/models"
)

const timeLayout = "2006-01-02 15:04:05"

func newTable(header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}

func formatDetection(d models.Detection) string {
	if d.Confidence == nil {
		return d.Language
	}
	return fmt.Sprintf("%s (confidence %.2f)", d.Language, *d.Confidence)
}

func formatLimits(st models.LimitStatus) string {
	var b strings.Builder
	b.WriteString("Rate Limit\n")
	fmt.Fprintf(&b, "  Can proceed:        %t\n", st.CanProceed)
	fmt.Fprintf(&b, "  Remaining requests: %d\n", st.State.RemainingRequests)
	fmt.Fprintf(&b, "  Resets at:          %s\n", st.State.ResetTime.UTC().Format(timeLayout))
	fmt.Fprintf(&b, "  Strategy:           %s (x%.2f)\n", st.State.CooldownStrategy, st.State.CooldownMultiplier)
	fmt.Fprintf(&b, "  Consecutive errors: %d\n", st.State.ConsecutiveErrors)
	if st.State.LastError != nil {
		fmt.Fprintf(&b, "  Last error:         %d %s\n", st.State.LastError.StatusCode, st.State.LastError.Message)
	}
	fmt.Fprintf(&b, "  Wait:               %s\n", st.RemainingDisplay)
	return b.String()
}

func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	last := "never"
	if !stats.LastCleanup.IsZero() {
		last = stats.LastCleanup.UTC().Format(timeLayout)
	}
	return fmt.Sprintf("Cache Statistics\n"+
		"  Entries:      %d\n"+
		"  Hits:         %d\n"+
		"  Misses:       %d\n"+
		"  Hit Rate:     %.1f%%\n"+
		"  Last Cleanup: %s\n",
		stats.Size, stats.Hits, stats.Misses, hitRate, last)
}

func formatKeys(provider string, keys []models.KeyStatus) string {
	if len(keys) == 0 {
		return fmt.Sprintf("%s: no keys configured\n", provider)
	}
	t := newTable(table.Row{"#", "Fingerprint", "Uses/h", "Last Used", "Current", "Over Quota"})
	for _, k := range keys {
		t.AppendRow(table.Row{k.Index, k.Fingerprint, k.UsageCount, formatTime(k.LastUsedAt), mark(k.Current), mark(k.OverQuota)})
	}
	t.SetTitle(provider)
	return t.Render() + "\n"
}

func formatUsage(rows []models.UsageSummary) string {
	if len(rows) == 0 {
		return "No usage data found.\n"
	}
	t := newTable(table.Row{"Provider", "Operation", "Requests", "Errors", "Items", "Avg Latency"})
	for _, r := range rows {
		t.AppendRow(table.Row{r.Provider, r.Operation, r.RequestCount, r.ErrorCount, r.TotalItems, fmt.Sprintf("%.0fms", r.AvgLatencyMs)})
	}
	return t.Render() + "\n"
}

func formatBudgetStatus(statuses []models.BudgetStatus) string {
	if len(statuses) == 0 {
		return "No budget policies found.\n"
	}
	t := newTable(table.Row{"Provider", "Period", "Max", "Used", "Remaining", "Usage%"})
	for _, s := range statuses {
		pct := float64(0)
		if s.Policy.MaxRequests > 0 {
			pct = float64(s.Used) / float64(s.Policy.MaxRequests) * 100
		}
		t.AppendRow(table.Row{s.Policy.Provider, s.Policy.Period, s.Policy.MaxRequests, s.Used, s.Remaining, fmt.Sprintf("%.1f%%", pct)})
	}
	return t.Render() + "\n"
}

func formatSessions(sessions []models.Session) string {
	if len(sessions) == 0 {
		return "No sessions found.\n"
	}
	t := newTable(table.Row{"Session ID", "Languages", "Started", "Ended", "Entries"})
	for _, s := range sessions {
		ended := "-"
		if s.EndedAt != nil {
			ended = s.EndedAt.UTC().Format(timeLayout)
		}
		t.AppendRow(table.Row{s.ID, s.SourceLang + " > " + s.TargetLang, s.StartedAt.UTC().Format(timeLayout), ended, s.EntryCount})
	}
	return t.Render() + "\n"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}

func mark(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
