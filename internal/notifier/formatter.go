package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"badewanne/internal/model"
)

// FormatCycleReport formats a cycle report into a Telegram message.
func FormatCycleReport(r *model.CycleReport) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("🛁 <b>Badewanne %s</b> | %s\n", strings.ToLower(string(r.Kind)),
		r.StartedAt.Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("Cycle: <code>%s</code> (%s)\n\n", r.CycleID,
		r.FinishedAt.Sub(r.StartedAt).Round(time.Second)))

	if r.Kind == model.KindScheduled || r.Kind == model.KindManual {
		b.WriteString("📥 <b>Feed</b>\n")
		b.WriteString(fmt.Sprintf("  fetched %d | new %d | updated %d | skipped %d\n",
			r.Fetched, r.Inserted, r.Updated, r.Skipped))
		if r.RankFrozen {
			b.WriteString("  ⚠️ feed reported no ranking, ranks kept\n")
		}
		b.WriteString("\n📋 <b>Lists</b>\n")
		b.WriteString(fmt.Sprintf("  → LRW_LIST %d | → BW_BLOCKED %d\n", r.ToLRW, r.ToBlocked))
		b.WriteString(fmt.Sprintf("  → NORMAL %d | → BW_READY %d\n\n", r.ToNormal, r.ToReady))
	} else {
		b.WriteString(fmt.Sprintf("Items: %d\n\n", len(r.IDs)))
	}

	b.WriteString("💶 <b>Stages</b>\n")
	active := 0
	for _, p := range r.Phases {
		if p.Selected == 0 && p.Error == "" {
			continue
		}
		active++
		mark := "✅"
		if p.Error != "" {
			mark = "❌"
		} else if p.Failed > 0 {
			mark = "⚠️"
		}
		b.WriteString(fmt.Sprintf("  %s %d → %s: %d/%d", mark, p.Phase, p.Target, p.Succeeded, p.Selected))
		if p.Failed > 0 {
			b.WriteString(fmt.Sprintf(", %d rejected", p.Failed))
		}
		b.WriteString("\n")
	}
	if active == 0 {
		b.WriteString("  no stage changes\n")
	}

	if len(r.Errors) > 0 {
		b.WriteString("\n❗ <b>Errors</b>\n")
		for _, e := range r.Errors {
			b.WriteString("  " + html.EscapeString(e) + "\n")
		}
	}
	return b.String()
}

// FormatStageCounts formats the number of items per stage.
func FormatStageCounts(counts map[model.Stage]int) string {
	var b strings.Builder
	b.WriteString("📦 <b>Stages</b>\n\n")
	total := 0
	for _, s := range model.AllStages {
		n := counts[s]
		total += n
		if n == 0 {
			continue
		}
		b.WriteString(fmt.Sprintf("%s: %d\n", s, n))
	}
	b.WriteString(fmt.Sprintf("\nTotal: %d\n", total))
	return b.String()
}

// FormatHelp lists the supported commands.
func FormatHelp() string {
	return "Commands:\n• /run – full evaluation cycle\n• /status – items per stage"
}
