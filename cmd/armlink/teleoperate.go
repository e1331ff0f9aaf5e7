package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/armlink/pkg/config"
	"github.com/gwillem/armlink/pkg/gesture"
	"github.com/gwillem/armlink/pkg/link"
	"github.com/gwillem/armlink/pkg/pose"
	"github.com/gwillem/armlink/pkg/teleop"
	"github.com/gwillem/armlink/pkg/vision"
)

type TeleoperateCommand struct {
	Host     string `long:"host" env:"ARMLINK_HOST" description:"Rig host (overrides config)"`
	Port     int    `long:"port" env:"ARMLINK_PORT" description:"Rig TCP port (overrides config)"`
	Retry    string `long:"retry" choice:"once" choice:"bounded" choice:"persistent" description:"Connection retry policy"`
	Policy   string `long:"policy" choice:"exclusive" choice:"independent" description:"Which arm combinations are sent"`
	Mirror   bool   `long:"mirror" description:"Camera delivers a mirrored image"`
	NoCamera bool   `long:"no-camera" description:"Manual key control only"`
	Headless bool   `long:"headless" description:"Run without the terminal UI"`
	LogFile  string `long:"log-file" default:"armlink.log" description:"Log file while the UI is active"`
}

const (
	headerHeight = 5 // title, arms, status, keys, blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border

	// Terminals report key presses but not releases, so a held key expires unless
	// auto-repeat refreshes it.
	holdTimeout = 600 * time.Millisecond
)

// Series colors for the wrist offset chart
var seriesColors = map[string]string{
	"left dx":  "196", // red
	"left dy":  "208", // orange
	"right dx": "46",  // green
	"right dy": "51",  // cyan
}

var seriesOrder = []string{"left dx", "left dy", "right dx", "right dy"}

type binding struct {
	arm  gesture.Arm
	code gesture.Code
}

var keyBindings = map[string]binding{
	"w": {gesture.LeftArm, gesture.Raised},
	"s": {gesture.LeftArm, gesture.Back},
	"a": {gesture.LeftArm, gesture.Left},
	"d": {gesture.LeftArm, gesture.Right},
	"x": {gesture.LeftArm, gesture.Still},
	"i": {gesture.RightArm, gesture.Raised},
	"k": {gesture.RightArm, gesture.Back},
	"j": {gesture.RightArm, gesture.Left},
	"l": {gesture.RightArm, gesture.Right},
	",": {gesture.RightArm, gesture.Still},
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	warningStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))

	linkStyles = map[link.State]lipgloss.Style{
		link.Disconnected: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		link.Connecting:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		link.Connected:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	}
)

type teleopModel struct {
	ctrl     *teleop.Controller
	chart    *streamlinechart.Model
	width    int                       // terminal width
	height   int                       // terminal height
	logs     []string                  // last N log messages
	snap     teleop.Snapshot           // latest controller state
	held     map[gesture.Arm]time.Time // release deadline per pressed arm
	err      error
	quitting bool
}

func (m *teleopModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Messages from the controller
type stateMsg teleop.Snapshot
type logMsg string
type releaseMsg gesture.Arm
type doneMsg struct{ err error }

func waitForState(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-ctrl.States())
	}
}

func waitForLog(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

func releaseAfter(arm gesture.Arm) tea.Cmd {
	return tea.Tick(holdTimeout, func(time.Time) tea.Msg {
		return releaseMsg(arm)
	})
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *teleopModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 12 // default size before we know terminal size
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - footerHeight - borderSize
	if height < 6 {
		height = 6
	}
	return width, height
}

func (m *teleopModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialTeleopModel(ctrl *teleop.Controller) teleopModel {
	chart := streamlinechart.New(80, 12,
		streamlinechart.WithYRange(-0.5, 0.5),
	)

	for _, name := range seriesOrder {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(seriesColors[name]))
		chart.SetDataSetStyles(name, runes.ThinLineStyle, style)
	}

	return teleopModel{
		ctrl:  ctrl,
		chart: &chart,
		snap:  ctrl.Snapshot(),
		held:  make(map[gesture.Arm]time.Time),
	}
}

func (m teleopModel) Init() tea.Cmd {
	// Start listening for state and log updates
	return tea.Batch(
		waitForState(m.ctrl),
		waitForLog(m.ctrl),
	)
}

func (m teleopModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case releaseMsg:
		arm := gesture.Arm(msg)
		if deadline, ok := m.held[arm]; ok && !time.Now().Before(deadline) {
			delete(m.held, arm)
			m.ctrl.Release(arm)
		}
		return m, nil

	case stateMsg:
		snap := teleop.Snapshot(msg)
		if snap.Left.Sampled || snap.Right.Sampled {
			ldx, ldy := snap.Left.Sample.Delta()
			rdx, rdy := snap.Right.Sample.Delta()
			m.chart.PushDataSet("left dx", ldx)
			m.chart.PushDataSet("left dy", ldy)
			m.chart.PushDataSet("right dx", rdx)
			m.chart.PushDataSet("right dy", rdy)
			m.chart.DrawAll()
		}
		m.snap = snap
		return m, waitForState(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)

	case doneMsg:
		m.err = msg.err
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m teleopModel) handleKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "m":
		m.ctrl.ToggleMode()
		clear(m.held)
		return m, nil
	case "c":
		if m.snap.Link == link.Disconnected {
			m.ctrl.Connect()
		} else {
			m.ctrl.Disconnect()
		}
		return m, nil
	}

	b, ok := keyBindings[key]
	if !ok || m.snap.Mode != teleop.Manual {
		return m, nil
	}
	if b.code == gesture.Still {
		delete(m.held, b.arm)
		m.ctrl.Release(b.arm)
		return m, nil
	}
	m.ctrl.Press(b.arm, b.code)
	m.held[b.arm] = time.Now().Add(holdTimeout)
	return m, releaseAfter(b.arm)
}

func (m teleopModel) View() string {
	if m.quitting {
		if m.err != nil {
			return fmt.Sprintf("Teleoperation stopped: %v\n", m.err)
		}
		return "Teleoperation stopped.\n"
	}

	var sb strings.Builder
	s := m.snap

	// Header
	sb.WriteString(titleStyle.Render("armlink"))
	sb.WriteString(" ")
	sb.WriteString(linkStyles[s.Link].Render("● " + s.Link.String()))
	sb.WriteString(statusStyle.Render(fmt.Sprintf("  %s  mode: %s  sent: %d", m.ctrl.Link().Addr(), s.Mode, s.Sent)))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("Left arm: %s   Right arm: %s   ",
		labelStyle.Render(s.Left.Label), labelStyle.Render(s.Right.Label)))
	sb.WriteString(statusStyle.Render(fmt.Sprintf("pending: %s  last sent: %s", s.Pending, s.LastSent)))
	sb.WriteString("\n")

	if s.Warning {
		sb.WriteString(warningStyle.Render("INVALID MOTION: move one arm at a time"))
	} else if s.Detecting && s.Mode == teleop.Automatic && !s.Left.Sampled {
		sb.WriteString(statusStyle.Render("no person detected"))
	}
	sb.WriteString("\n")

	sb.WriteString(statusStyle.Render("m mode  c connect  wasd/x left arm  ijkl/, right arm  q quit"))
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20)).
		Foreground(lipgloss.Color("9")) // bright red

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend() string {
	var items []string
	for _, name := range seriesOrder {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(seriesColors[name])).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+name)
	}
	return strings.Join(items, "  ")
}

func (c *TeleoperateCommand) apply(cfg *config.Config) {
	if c.Host != "" {
		cfg.Rig.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Rig.Port = c.Port
	}
	if c.Retry != "" {
		cfg.Rig.Retry = c.Retry
	}
	if c.Policy != "" {
		cfg.Teleop.Policy = c.Policy
	}
	if c.Mirror {
		cfg.Teleop.Mirror = true
	}
}

// openPose opens the camera and the pose model.
func openPose(cfg *config.Config) (pose.Source, pose.Oracle, error) {
	oracle, err := vision.NewOpenPose(vision.OpenPoseConfig{
		ModelPath:   cfg.Pose.ModelPath,
		ConfigPath:  cfg.Pose.ConfigPath,
		InputWidth:  cfg.Pose.InputWidth,
		InputHeight: cfg.Pose.InputHeight,
		Threshold:   cfg.Pose.Threshold,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load pose model: %w", err)
	}
	cam, err := vision.OpenCamera(vision.CameraConfig{
		Device:      cfg.Camera.Device,
		Width:       cfg.Camera.Width,
		Height:      cfg.Camera.Height,
		MaxFailures: cfg.Camera.MaxFailures,
	})
	if err != nil {
		oracle.Close()
		return nil, nil, err
	}
	return cam, oracle, nil
}

func (c *TeleoperateCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if c.Headless {
		initLogging(os.Stderr)
	} else {
		f, err := tea.LogToFile(c.LogFile, "")
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		initLogging(f)
	}

	tc, err := cfg.TeleopConfig()
	if err != nil {
		return err
	}

	var source pose.Source
	var oracle pose.Oracle
	if !c.NoCamera {
		source, oracle, err = openPose(cfg)
		if err != nil {
			return fmt.Errorf("%w (use --no-camera for manual control)", err)
		}
	}

	ctrl, err := teleop.NewController(tc, source, oracle, nil)
	if err != nil {
		return fmt.Errorf("create controller: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if c.Headless {
		fmt.Printf("Teleoperating rig at %s (Ctrl+C to stop)\n", cfg.Addr())
		if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	p := tea.NewProgram(initialTeleopModel(ctrl), tea.WithAltScreen())

	done := make(chan error, 1)
	go func() {
		err := ctrl.Run(ctx)
		done <- err
		p.Send(doneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return fmt.Errorf("run ui: %w", err)
	}

	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
