package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"railhaul/internal/domain"
	"railhaul/internal/scheduler"
)

func renderTicksTable(table *tview.Table, ticks []domain.TickRecord, selectedTickID string) {
	table.Clear()
	headers := []string{"Tick", "Status", "Moves", "Score", "Spent", "Took", "ID"}
	for i, h := range headers {
		table.SetCell(0, i, tview.NewTableCell(h).SetSelectable(false).SetAttributes(tcell.AttrBold))
	}
	for i, t := range ticks {
		row := i + 1
		status := tview.NewTableCell(string(t.Status))
		switch t.Status {
		case domain.TickStatusRolledBack:
			status.SetTextColor(tcell.ColorYellow)
		case domain.TickStatusFailed:
			status.SetTextColor(tcell.ColorRed)
		}
		table.SetCell(row, 0, tview.NewTableCell(fmt.Sprintf("%d", t.GameTick)))
		table.SetCell(row, 1, status)
		table.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf("%d", t.Moves)))
		table.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("%.0f", t.Score)))
		table.SetCell(row, 4, tview.NewTableCell(fmt.Sprintf("%.0f", t.SpentArmor)))
		table.SetCell(row, 5, tview.NewTableCell(fmt.Sprintf("%dms", t.DurationMS)))
		table.SetCell(row, 6, tview.NewTableCell(shortID(t.ID)))
		if t.ID == selectedTickID {
			table.Select(row, 0)
		}
	}
}

func renderStatus(baseURL string, s scheduler.State) string {
	line := fmt.Sprintf("%s | tick=%d score=%.0f spent=%.0f", baseURL, s.GameTick, s.Score, s.SpentArmor)
	if s.LastTick.Status != "" {
		line += fmt.Sprintf(" last=%s", s.LastTick.Status)
	}
	if s.LastTick.Error != "" {
		line += " [red]" + trimLine(s.LastTick.Error, 80) + "[-]"
	}
	return line
}

func renderTrains(s scheduler.State) string {
	if len(s.Trains) == 0 {
		return "No trains"
	}
	trains := make([]domain.Train, len(s.Trains))
	copy(trains, s.Trains)
	sort.Slice(trains, func(i, j int) bool { return trains[i].ID < trains[j].ID })

	var b strings.Builder
	for _, t := range trains {
		target := "-"
		if post, ok := s.Targets[t.ID]; ok {
			target = fmt.Sprintf("%d", post)
		}
		b.WriteString(fmt.Sprintf(
			"#%-4d owner=%-10s line=%-4d pos=%-5.1f speed=%-2d goods=%.0f/%.0f lvl=%d cd=%d target=%s\n",
			t.ID, shortID(t.Owner), t.LineID, t.Position, t.Speed, t.Goods, t.GoodsCapacity, t.Level, t.Cooldown, target,
		))
	}
	return b.String()
}

func renderPosts(posts []domain.Post) string {
	var b strings.Builder
	for _, p := range posts {
		switch p.Kind {
		case domain.PostKindTown:
			b.WriteString(fmt.Sprintf(
				"[green]town[-]    %-4d %-12s pop=%.0f/%.0f goods=%.0f/%.0f armor=%.0f/%.0f lvl=%d\n",
				p.ID, trimLine(p.Name, 12), p.Population, p.PopulationCapacity,
				p.Goods, p.GoodsCapacity, p.Armor, p.ArmorCapacity, p.Level,
			))
		case domain.PostKindMarket:
			b.WriteString(fmt.Sprintf(
				"[yellow]market[-]  %-4d %-12s goods=%.0f/%.0f +%.0f\n",
				p.ID, trimLine(p.Name, 12), p.Goods, p.GoodsCapacity, p.Replenishment,
			))
		case domain.PostKindStorage:
			b.WriteString(fmt.Sprintf(
				"[blue]storage[-] %-4d %-12s armor=%.0f/%.0f +%.0f\n",
				p.ID, trimLine(p.Name, 12), p.Armor, p.ArmorCapacity, p.Replenishment,
			))
		}
	}
	if b.Len() == 0 {
		return "No posts"
	}
	return b.String()
}

func renderDecisions(items []domain.DecisionLog) string {
	if len(items) == 0 {
		return "No decisions"
	}
	var b strings.Builder
	for _, d := range items {
		actor := fmt.Sprintf("train %d", d.TrainID)
		if d.TrainID == 0 {
			actor = "economy"
		}
		b.WriteString(fmt.Sprintf("%-10s %-14s %s\n", actor, d.Action, trimLine(d.Reason, 100)))
		if detail := decisionPayloadSummary(d.Payload); detail != "" {
			b.WriteString("  payload: " + trimLine(detail, 160) + "\n")
		}
	}
	return b.String()
}

func decisionPayloadSummary(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" || trimmed == "{}" {
		return ""
	}

	var kv map[string]any
	if err := json.Unmarshal(payload, &kv); err == nil {
		keys := make([]string, 0, len(kv))
		for k := range kv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, kv[k]))
		}
		return strings.Join(parts, ", ")
	}
	return trimmed
}

func trimLine(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}

func shortID(v string) string {
	if len(v) <= 8 {
		return v
	}
	return v[:8]
}
