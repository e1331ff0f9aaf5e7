package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

type ScanCommand struct {
	MaxID  int  `long:"max-id" default:"4" description:"Highest servo ID to probe"`
	Wiggle bool `long:"wiggle" description:"Wiggle servo 1 on every port found"`
}

func (c *ScanCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("Scanning serial ports..."))
	fmt.Println()

	rigs, err := findRigs(c.MaxID)
	if err != nil {
		return err
	}
	defer func() {
		for _, r := range rigs {
			r.Close()
		}
	}()

	if len(rigs) == 0 {
		fmt.Println("No servos found.")
		fmt.Println("Make sure the rig is connected and powered on.")
		return nil
	}

	rows := make([][]string, 0, len(rigs))
	for _, r := range rigs {
		ids := make([]string, 0, len(r.servos))
		for _, s := range r.servos {
			ids = append(ids, strconv.Itoa(s.ID))
		}
		status := "incomplete"
		if r.complete() {
			status = "rig"
		}
		rows = append(rows, []string{r.port, strings.Join(ids, ","), status})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Port", "Servo IDs", "Status").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	fmt.Println(t.Render())

	if c.Wiggle {
		for _, r := range rigs {
			fmt.Printf("\n  Wiggling servo 1 on %s...\n", r.port)
			if err := wiggle(r); err != nil {
				fmt.Println(errorStyle.Render("  " + err.Error()))
			}
		}
	}
	return nil
}
