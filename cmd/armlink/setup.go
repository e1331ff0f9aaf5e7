package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/armlink/pkg/config"
	"github.com/gwillem/armlink/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type SetupCommand struct {
	SkipScan bool `long:"skip-scan" description:"Do not look for servos on serial ports"`
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("armlink setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━"))
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Step 1: operator side
	if err := connectionForm(cfg); err != nil {
		return err
	}
	if err := cfg.SaveTo(opts.Config); err != nil {
		return err
	}

	// Step 2: rig side servos
	if !c.SkipScan {
		if err := setupServos(cfg); err != nil {
			return err
		}
		if err := cfg.SaveTo(opts.Config); err != nil {
			return err
		}
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Start teleoperation with: " + headerStyle.Render("armlink teleoperate"))
	return nil
}

func connectionForm(cfg *config.Config) error {
	port := strconv.Itoa(cfg.Rig.Port)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Rig host").
				Description("Address of the ESP32 rig").
				Value(&cfg.Rig.Host).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("host is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Rig port").
				Value(&port).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n <= 0 || n > 65535 {
						return errors.New("port must be 1-65535")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Reconnect").
				Options(
					huh.NewOption("Once (single attempt)", "once"),
					huh.NewOption("Bounded (retry for a while)", "bounded"),
					huh.NewOption("Persistent (keep reconnecting)", "persistent"),
				).
				Value(&cfg.Rig.Retry),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Arm policy").
				Options(
					huh.NewOption("Exclusive (one arm moves at a time)", "exclusive"),
					huh.NewOption("Independent (both arms may move)", "independent"),
				).
				Value(&cfg.Teleop.Policy),
			huh.NewSelect[string]().
				Title("Homing arm").
				Description("Returns home when this arm comes to rest").
				Options(
					huh.NewOption("Right", "right"),
					huh.NewOption("Left", "left"),
				).
				Value(&cfg.Teleop.HomingArm),
			huh.NewConfirm().
				Title("Is the camera image mirrored?").
				Value(&cfg.Teleop.Mirror),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("setup cancelled: %w", err)
	}

	cfg.Rig.Host = strings.TrimSpace(cfg.Rig.Host)
	cfg.Rig.Port, _ = strconv.Atoi(port)
	return cfg.Validate()
}

// setupServos picks the rig's serial port and optionally records calibration.
func setupServos(cfg *config.Config) error {
	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Rig servos ━━━"))
	fmt.Println("Scanning serial ports for servos...")

	rigs, err := findRigs(len(robot.AllServos()))
	if err != nil {
		return err
	}
	closeAll := func() {
		for _, r := range rigs {
			r.Close()
		}
	}

	var candidates []rigPort
	for _, r := range rigs {
		if r.complete() {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		closeAll()
		fmt.Println(dimStyle.Render("No rig servos found. Run the rig command on the ESP32 side instead."))
		return nil
	}

	port := candidates[0].port
	if len(candidates) > 1 {
		port = ""
		for _, r := range candidates {
			if err := wiggle(r); err != nil {
				fmt.Println(errorStyle.Render("  " + err.Error()))
				continue
			}
			var use bool
			form := huh.NewForm(huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Use the rig on %s?", r.port)).
					Description("The servo that just wiggled").
					Value(&use),
			))
			if err := form.Run(); err != nil {
				closeAll()
				return fmt.Errorf("setup cancelled: %w", err)
			}
			if use {
				port = r.port
				break
			}
		}
	}
	closeAll()

	if port == "" {
		fmt.Println(dimStyle.Render("No rig selected."))
		return nil
	}
	cfg.Servos.Port = port
	fmt.Printf("Rig servos on %s\n", successStyle.Render(port))

	calibrate := !cfg.Servos.IsCalibrated()
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Record servo ranges now?").
			Value(&calibrate),
	))
	if err := form.Run(); err != nil {
		return fmt.Errorf("setup cancelled: %w", err)
	}
	if !calibrate {
		return nil
	}

	cal, err := calibrateServos(port)
	if err != nil {
		return err
	}
	cfg.Servos.Calibration = cal
	return nil
}

func calibrateServos(port string) (robot.Calibration, error) {
	servos := robot.AllServos()
	ids := make([]int, len(servos))
	for i := range servos {
		ids[i] = i + 1
	}

	bus, err := robot.OpenBus(port, ids...)
	if err != nil {
		return nil, err
	}
	defer bus.Close()

	// Disable all servos so the user can move them freely
	ctx := context.Background()
	if err := bus.Disable(ctx); err != nil {
		return nil, err
	}
	start, err := bus.Positions(ctx)
	if err != nil {
		return nil, err
	}

	fmt.Println()
	fmt.Println(subHeaderStyle.Render("Record range of motion"))
	fmt.Println("Move each servo to its minimum AND maximum positions.")
	fmt.Println()

	p := tea.NewProgram(newCalibrationModel(bus, start))
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("run calibration: %w", err)
	}
	cm := final.(calibrationModel)
	if cm.cancelled {
		return nil, errors.New("calibration cancelled")
	}

	cal := make(robot.Calibration, len(servos))
	for i, name := range servos {
		id := i + 1
		if cm.max[id] <= cm.min[id] {
			return nil, fmt.Errorf("servo %s did not move", name)
		}
		cal[name] = robot.ServoCalibration{ID: id, RangeMin: cm.min[id], RangeMax: cm.max[id]}
	}
	fmt.Println(successStyle.Render("Servos calibrated."))
	return cal, nil
}

// Calibration TUI model
type calibrationModel struct {
	bus       robot.Bus
	cur       map[int]int
	min       map[int]int
	max       map[int]int
	done      bool
	cancelled bool
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func newCalibrationModel(bus robot.Bus, start map[int]int) calibrationModel {
	m := calibrationModel{
		bus: bus,
		cur: make(map[int]int),
		min: make(map[int]int),
		max: make(map[int]int),
	}
	for id, pos := range start {
		m.cur[id], m.min[id], m.max[id] = pos, pos, pos
	}
	return m
}

func (m calibrationModel) Init() tea.Cmd {
	return tick()
}

func (m calibrationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			m.done = true
			return m, tea.Quit
		case "q", "ctrl+c":
			m.cancelled = true
			return m, tea.Quit
		}

	case tickMsg:
		positions, err := m.bus.Positions(context.Background())
		if err == nil {
			for id, pos := range positions {
				m.cur[id] = pos
				m.min[id] = min(m.min[id], pos)
				m.max[id] = max(m.max[id], pos)
			}
		}
		return m, tick()
	}

	return m, nil
}

func (m calibrationModel) View() string {
	if m.done || m.cancelled {
		return ""
	}

	headerCell := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	nameCell := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	currentCell := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	goodCell := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	lowCell := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	servos := robot.AllServos()
	rows := make([][]string, 0, len(servos))
	ranges := make([]int, 0, len(servos))
	for i, name := range servos {
		id := i + 1
		span := m.max[id] - m.min[id]
		ranges = append(ranges, span)
		rows = append(rows, []string{
			string(name),
			strconv.Itoa(m.cur[id]),
			strconv.Itoa(m.min[id]),
			strconv.Itoa(m.max[id]),
			strconv.Itoa(span),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Servo", "Current", "Min", "Max", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCell
			}
			switch col {
			case 0:
				return nameCell
			case 1:
				return currentCell
			case 4:
				if row >= 0 && row < len(ranges) && ranges[row] > 500 {
					return goodCell
				}
				return lowCell
			default:
				return cell
			}
		})

	return t.Render() + "\n\n" + dimStyle.Render("Press Enter when done, q to cancel")
}
