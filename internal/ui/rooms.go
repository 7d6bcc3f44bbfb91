package ui

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/BioHazard786/Huddle/internal/relay"
)

// RoomsView renders the relay's room occupancy.
func RoomsView(rooms []relay.RoomInfo) string {
	if len(rooms) == 0 {
		return MutedStyle.Render("No active rooms")
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatUpper
	t.AppendHeader(table.Row{"Room", "Members", "Names"})

	total := 0
	for _, r := range rooms {
		names := make([]string, 0, len(r.Members))
		for _, m := range r.Members {
			names = append(names, truncate(m.Username, 16))
		}
		total += len(r.Members)
		t.AppendRow(table.Row{r.Name, len(r.Members), strings.Join(names, ", ")})
	}
	t.AppendFooter(table.Row{"Total", total, ""})
	return t.Render()
}
