package ui

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// RoomRow is one active room as reported by the relay's stats endpoint.
type RoomRow struct {
	ID      string
	Members []string
}

// RelayHeaderView is the title box printed above the rooms table.
func RelayHeaderView(statsURL string) string {
	return BoxStyle.Render(TitleStyle.Render(IconBook+" Study rooms") + "\n" + SubtitleStyle.Render(statsURL))
}

// RoomsView renders the relay snapshot printed by the rooms command.
func RoomsView(sessions int, rooms []RoomRow, capacity int) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Color.Header = text.Colors{text.FgHiYellow, text.Bold}
	tw.Style().Color.Footer = text.Colors{text.FgHiBlack}
	tw.Style().Format.Header = text.FormatDefault
	tw.Style().Format.Footer = text.FormatDefault

	tw.AppendHeader(table.Row{"#", "Room", "Members", "Who"})
	for i, r := range rooms {
		tw.AppendRow(table.Row{i + 1, r.ID, occupancy(len(r.Members), capacity), strings.Join(r.Members, ", ")})
	}
	if len(rooms) == 0 {
		tw.AppendRow(table.Row{"", "no active rooms", "", ""})
	}
	tw.AppendFooter(table.Row{"", "Connected", sessions, ""})

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, Align: text.AlignCenter},
		{Number: 4, WidthMax: 40},
	})
	return tw.Render()
}

func occupancy(n, capacity int) string {
	if capacity <= 0 {
		return text.FgHiGreen.Sprintf("%d", n)
	}
	if n >= capacity {
		return text.FgHiRed.Sprintf("%d/%d", n, capacity)
	}
	return text.FgHiGreen.Sprintf("%d/%d", n, capacity)
}
