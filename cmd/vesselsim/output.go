package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/got-is-bad-at-git/Kerbalism/core"
	"github.com/got-is-bad-at-git/Kerbalism/internal/format"
	"github.com/got-is-bad-at-git/Kerbalism/internal/sim"
)

const (
	targetWidth = 24
	linkColumn  = 1
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	linkColors  = map[string]lipgloss.Color{
		core.DirectLink.String():     lipgloss.Color("10"),
		core.IndirectLink.String():   lipgloss.Color("11"),
		core.PlasmaBlackout.String(): lipgloss.Color("13"),
		core.NoLink.String():         lipgloss.Color("9"),
	}
)

func printSnapshots(w io.Writer, snaps []sim.NamedSnapshot) error {
	rows := make([][]string, 0, len(snaps))
	for _, s := range snaps {
		if !s.IsValid {
			rows = append(rows, []string{s.Name, "invalid", "-", "-", "-", "-", "-", "-"})
			continue
		}
		conn := s.Connection
		target := "-"
		if conn.TargetName != "" {
			target = format.Ellipsis(conn.TargetName, targetWidth)
		}
		rows = append(rows, []string{
			s.Name,
			conn.Status.String(),
			format.CeilPercent(conn.Strength),
			format.Rate(conn.Rate),
			target,
			format.Percent(s.Environment.Sunlight, 0),
			fmt.Sprintf("%.1f K", s.Environment.Temperature),
			fmt.Sprintf("%.3f rad/h", s.Environment.Radiation),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("VESSEL", "LINK", "SIGNAL", "RATE", "TARGET", "SUN", "TEMP", "RAD").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == linkColumn && row >= 0 && row < len(rows) {
				if c, ok := linkColors[rows[row][col]]; ok {
					return cellStyle.Foreground(c)
				}
			}
			return cellStyle
		})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
