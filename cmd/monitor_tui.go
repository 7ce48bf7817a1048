// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/filmkorn/internal/status"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Event log entry
type monitorEvent struct {
	timestamp time.Time
	message   string
	isError   bool
}

// TUI model
type monitorModel struct {
	target    string
	url       string
	connected bool
	snap      *status.Snapshot
	received  int
	events    []monitorEvent
	maxEvents int
	spinner   spinner.Model
	headroom  progress.Model
	width     int
	height    int
	quitting  bool
}

type monitorTickMsg time.Time

func initialMonitorModel(target string) monitorModel {
	return monitorModel{
		target:    target,
		maxEvents: 50,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("11"))),
		),
		headroom: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		width:    80,
		height:   24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		monitorTickCmd(),
	)
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "c":
			m.events = m.events[:0]
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		w := msg.Width - 30
		if w > 60 {
			w = 60
		}
		if w < 10 {
			w = 10
		}
		m.headroom.Width = w

	case monitorTickMsg:
		return m, monitorTickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case feedConnectedMsg:
		m.connected = true
		m.url = msg.url
		m.addEvent("Connected to "+msg.url, false)

	case feedLostMsg:
		if m.connected {
			m.addEvent(fmt.Sprintf("Connection lost: %v", msg.err), true)
		}
		m.connected = false

	case snapshotMsg:
		m.received++
		m.noteChanges(msg.snap)
		s := msg.snap
		m.snap = &s
	}

	return m, nil
}

func (m *monitorModel) addEvent(message string, isError bool) {
	m.events = append(m.events, monitorEvent{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.events) > m.maxEvents {
		m.events = m.events[len(m.events)-m.maxEvents:]
	}
}

// noteChanges logs transitions between the previous and the new snapshot.
func (m *monitorModel) noteChanges(s status.Snapshot) {
	prev := m.snap
	if prev == nil {
		return
	}
	if prev.State != s.State {
		m.addEvent(fmt.Sprintf("State %s -> %s", prev.State, s.State), false)
	}
	if prev.Power != s.Power {
		m.addEvent(fmt.Sprintf("Power %s -> %s", prev.Power, s.Power), false)
	}
	if prev.Screen != s.Screen && s.Screen != "" {
		m.addEvent("Screen: "+s.Screen, false)
	}
	if prev.Target != s.Target {
		m.addEvent(fmt.Sprintf("Target %s -> %s", prev.Target, s.Target), false)
	}
	if !prev.WaitingForSpace && s.WaitingForSpace {
		m.addEvent("Capture paused: disk space low", true)
	}
	if prev.WaitingForSpace && !s.WaitingForSpace {
		m.addEvent("Capture resumed", false)
	}
	if !prev.OverlayDisabled && s.OverlayDisabled {
		m.addEvent("Overlay disabled", true)
	}
	if s.Bus.Resets > prev.Bus.Resets {
		m.addEvent("Controller reset", true)
	}
	if s.Bus.Stale > prev.Bus.Stale {
		m.addEvent(fmt.Sprintf("%d stale response(s) discarded", s.Bus.Stale-prev.Bus.Stale), true)
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("FILMKORN - SCANNER MONITOR"))
	s.WriteString("\n")
	feed := m.url
	if feed == "" {
		feed = m.target
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("Feed: %s | Snapshots: %d | 'c' clears log, 'q' quits", feed, m.received)))
	s.WriteString("\n\n")

	if !m.connected {
		s.WriteString(warningStyle.Render(m.spinner.View() + " Connecting..."))
		s.WriteString("\n\n")
	}

	if m.snap == nil {
		return s.String()
	}
	snap := m.snap

	field := func(label, value string) string {
		return labelStyle.Render(label) + " " + valueStyle.Render(value)
	}
	alert := func(label, value string) string {
		return labelStyle.Render(label) + " " + errorStyle.Render(value)
	}

	// Scanner state
	state := strings.Builder{}
	state.WriteString(fmt.Sprintf("%s   %s   %s\n",
		field("State:", snap.State),
		field("Power:", snap.Power),
		field("Film:", yesNo(snap.FilmLoaded)),
	))
	state.WriteString(fmt.Sprintf("%s   %s   %s   %s\n",
		field("Zoom:", snap.Zoom),
		field("Lamp:", onOff(snap.Lamp)),
		field("Exposure:", fmt.Sprintf("%d", snap.Exposure)),
		field("Shutter:", snap.Shutter),
	))
	state.WriteString(fmt.Sprintf("%s   %s",
		field("FPS:", fmt.Sprintf("%.1f (avg %.1f)", snap.FPS, snap.AvgFPS)),
		field("Frames:", fmt.Sprintf("%d", snap.Frames)),
	))
	if snap.SessionDir != "" {
		state.WriteString("\n" + field("Session:", snap.SessionDir))
	}
	if snap.Screen != "" {
		state.WriteString("\n" + field("Screen:", snap.Screen))
	}
	s.WriteString(boxStyle.Render(state.String()))
	s.WriteString("\n")

	// Storage
	storage := strings.Builder{}
	free := field("Free:", formatBytes(snap.FreeBytes))
	if snap.WaitingForSpace {
		free = alert("Free:", formatBytes(snap.FreeBytes)+" (waiting for space)")
	}
	storage.WriteString(free + "\n")
	storage.WriteString(labelStyle.Render("Headroom:") + " " + m.headroom.ViewAs(snap.Headroom()) + "\n")
	storage.WriteString(headerStyle.Render(fmt.Sprintf("wait %s  abort %s  resume %s",
		formatBytes(snap.WaitBytes), formatBytes(snap.AbortBytes), formatBytes(snap.ResumeBytes))) + "\n")
	target := field("Target:", snap.Target)
	if snap.WaitingForDrive {
		target = alert("Target:", snap.Target+" (no drive)")
	}
	storage.WriteString(target)
	if snap.Draining {
		storage.WriteString("   " + warningStyle.Render("draining"))
	}
	if snap.OverlayDisabled {
		storage.WriteString("   " + alert("Overlay:", "disabled"))
	}
	s.WriteString(boxStyle.Render(storage.String()))
	s.WriteString("\n")

	// Bus statistics
	bus := snap.Bus
	busContent := fmt.Sprintf("%s   %s   %s\n%s   %s   %s   %s",
		field("Polls:", fmt.Sprintf("%d", bus.Polls)),
		field("Accepted:", fmt.Sprintf("%d", bus.Accepted)),
		field("Idle:", fmt.Sprintf("%d", bus.Idle)),
		countField(labelStyle, valueStyle, errorStyle, "Stale:", bus.Stale),
		countField(labelStyle, valueStyle, errorStyle, "Resets:", bus.Resets),
		countField(labelStyle, valueStyle, errorStyle, "No response:", bus.NoResponse),
		countField(labelStyle, valueStyle, errorStyle, "NACK retries:", bus.NackRetries),
	)
	s.WriteString(boxStyle.Render(busContent))
	s.WriteString("\n")

	// Event log
	if len(m.events) > 0 {
		s.WriteString(labelStyle.Render("Events"))
		s.WriteString("\n")
		avail := m.height - strings.Count(s.String(), "\n") - 2
		if avail < 1 {
			avail = 1
		}
		start := 0
		if len(m.events) > avail {
			start = len(m.events) - avail
		}
		for _, e := range m.events[start:] {
			ts := headerStyle.Render(e.timestamp.Format("15:04:05"))
			if e.isError {
				s.WriteString(ts + " " + errorStyle.Render(e.message) + "\n")
			} else {
				s.WriteString(ts + " " + e.message + "\n")
			}
		}
	}

	return s.String()
}

func countField(label, value, bad lipgloss.Style, name string, n uint64) string {
	style := value
	if n > 0 {
		style = bad
	}
	return label.Render(name) + " " + style.Render(fmt.Sprintf("%d", n))
}

func yesNo(b bool) string {
	if b {
		return "loaded"
	}
	return "none"
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
