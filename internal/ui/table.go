package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Participant is one row of the room screen's participant table.
type Participant struct {
	Name   string
	Self   bool
	Device string
}

// ParticipantsView renders the room members with lipgloss/table.
func ParticipantsView(people []Participant, capacity int) string {
	if len(people) == 0 {
		return MutedStyle.Render("Nobody here yet")
	}

	rows := make([][]string, 0, len(people))
	for i, p := range people {
		name := truncate(p.Name, 24)
		if p.Self {
			name += " (you)"
		}
		device := p.Device
		if device == "" {
			device = "-"
		}
		rows = append(rows, []string{fmt.Sprintf("%d", i+1), name, truncate(device, 24)})
	}

	header := "Participants"
	if capacity > 0 {
		header = fmt.Sprintf("Participants %d/%d", len(people), capacity)
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("#", header, "Client").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

// RoomInfoView is the box shown once a new room id has been picked.
func RoomInfoView(roomID, joinCommand string) string {
	content := fmt.Sprintf("%s Room ready!\n\n%s Room ID:  %s\n%s Share:    %s",
		IconSuccess,
		IconRoom, BoldStyle.Foreground(Primary).Render(roomID),
		IconPeer, MutedStyle.Render(joinCommand),
	)
	return SuccessBoxStyle.Render(content)
}

func truncate(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= max {
		return string(r)
	}
	if max <= 1 {
		return string(r[:max])
	}
	return string(r[:max-1]) + "…"
}
