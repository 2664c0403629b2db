package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/dukerupert/handover"
	"github.com/dukerupert/handover/internal/audit"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const maxNotesWidth = 40

func writeSummary(w io.Writer, in *handover.Inspection) {
	fmt.Fprintf(w, "Inspection #%d for order %s\n", in.ID, in.OrderNumber)
	fmt.Fprintf(w, "  Vehicle:  %s, %s (VIN %s)\n", in.VehicleModel, in.VehicleColor, in.VIN)
	fmt.Fprintf(w, "  Customer: %s\n", in.CustomerName)
	fmt.Fprintf(w, "  Status:   %s\n", in.Status)
	fmt.Fprintf(w, "  Progress: %d/%d done, %d failed\n", in.CompletedItems, in.TotalItems, in.FailedItems)
	for _, phase := range handover.Phases {
		rec := in.PhaseRecord(phase)
		line := fmt.Sprintf("  %s: %s", phase.Title(), rec.Status)
		if rec.CompletedAt != nil {
			line += " at " + rec.CompletedAt.Local().Format("2006-01-02 15:04")
		}
		if phase == handover.PhaseTestDrive && !in.TestDriveUnlocked() {
			line += " (locked)"
		}
		fmt.Fprintln(w, line)
	}
}

// renderItems lays out the checklist as a table. An empty phase shows all.
func renderItems(in *handover.Inspection, only handover.Phase) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Section", "Item", "Name", "Status", "Photos", "Videos", "Notes"})

	for _, sec := range in.Sections {
		if only != "" && sec.Stage != only {
			continue
		}
		for _, it := range sec.Items {
			counts := handover.CountMedia(it.Media)
			tw.AppendRow(table.Row{
				sec.Name,
				it.ID,
				it.Name,
				statusText(it.Status),
				strconv.Itoa(counts.Photos),
				strconv.Itoa(counts.Videos),
				truncate(it.Notes, maxNotesWidth),
			})
		}
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	return tw.Render()
}

func statusText(s handover.ItemStatus) string {
	switch s {
	case handover.ItemPassed:
		return text.FgGreen.Sprint(string(s))
	case handover.ItemFailed:
		return text.FgRed.Sprint(string(s))
	default:
		return string(s)
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func writeResult(w io.Writer, r *handover.CompletionResult) {
	fmt.Fprintf(w, "Report %s\n", r.FileName)
	if r.PDFLink != "" {
		fmt.Fprintf(w, "  %s\n", r.PDFLink)
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Recipient", "Address", "Sent", "Error"})
	for _, n := range r.Notifications {
		tw.AppendRow(table.Row{string(n.Category), n.Recipient, strconv.FormatBool(n.Sent), n.Error})
	}
	fmt.Fprintln(w, tw.Render())
}

func renderHistory(entries []audit.Entry) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Time", "Action", "Details", "From"})
	for _, e := range entries {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, e.Details[k]))
		}
		tw.AppendRow(table.Row{
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			e.Action,
			truncate(strings.Join(parts, " "), maxNotesWidth),
			e.IPAddress,
		})
	}
	return tw.Render()
}
