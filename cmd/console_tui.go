// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 thx4cmn

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/thx4cmn/padlink/pkg/padproto"
)

// Console log entry
type consoleLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// Pending request, tracked for id correlation and RTT
type pendingRequest struct {
	msgType string
	sentAt  time.Time
}

// Messages
type frameLineMsg []byte
type connLostMsg struct{ err error }

// Console TUI model
type consoleModel struct {
	conn     Connection
	connInfo string

	width    int
	height   int
	quitting bool
	connLost bool

	device          string
	firmwareVersion string
	features        []string
	state           *padproto.DeviceState

	pending       map[string]pendingRequest
	framesIn      int
	acks          int
	nacks         int
	errors        int
	decodeErrors  int
	lastPingRTT   time.Duration
	hasPingRTT    bool

	events        []consoleLogEntry
	maxLogEntries int

	editingSpeed bool
	speedInput   textinput.Model
}

func initialConsoleModel(conn Connection, connInfo string) consoleModel {
	ti := textinput.New()
	ti.Placeholder = "0.2 - 3.0"
	ti.CharLimit = 8
	ti.Width = 10

	return consoleModel{
		conn:          conn,
		connInfo:      connInfo,
		width:         80,
		height:        24,
		pending:       make(map[string]pendingRequest),
		events:        make([]consoleLogEntry, 0),
		maxLogEntries: 100,
		speedInput:    ti,
	}
}

func (m consoleModel) Init() tea.Cmd {
	return tea.Batch(
		m.sendRequest(padproto.MsgHello, map[string]any{
			"client":                   "padlink console",
			"requestedProtocolVersion": padproto.ProtocolVersion,
		}),
		tea.EnterAltScreen,
	)
}

// sendRequest writes one request envelope and records it for correlation.
// The write happens in a Cmd so a blocked connection cannot stall Update.
func (m consoleModel) sendRequest(msgType string, payload map[string]any) tea.Cmd {
	id := uuid.NewString()
	m.pending[id] = pendingRequest{msgType: msgType, sentAt: time.Now()}
	env := padproto.NewEnvelope(msgType, id, payload, time.Now().UnixMilli())

	conn := m.conn
	return func() tea.Msg {
		if _, err := conn.Write(padproto.EncodeFrame(env)); err != nil {
			return connLostMsg{err: err}
		}
		return nil
	}
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.editingSpeed {
			return m.updateSpeedInput(msg)
		}

		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "h":
			m.addLogEntry("hello sent", false)
			return m, m.sendRequest(padproto.MsgHello, map[string]any{
				"client":                   "padlink console",
				"requestedProtocolVersion": padproto.ProtocolVersion,
			})

		case "r":
			m.addLogEntry("get_state sent", false)
			return m, m.sendRequest(padproto.MsgGetState, map[string]any{})

		case "p":
			return m, m.sendRequest(padproto.MsgPing, map[string]any{})

		case "s":
			if m.state == nil {
				m.addLogEntry("no state yet, refresh first", true)
				return m, nil
			}
			m.editingSpeed = true
			m.speedInput.SetValue(strconv.FormatFloat(m.activeSpeed(), 'f', 2, 64))
			m.speedInput.Focus()
			return m, textinput.Blink
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case frameLineMsg:
		return m.handleFrame([]byte(msg)), nil

	case connLostMsg:
		m.connLost = true
		m.addLogEntry(fmt.Sprintf("CONNECTION LOST: %v", msg.err), true)
	}

	return m, nil
}

func (m consoleModel) updateSpeedInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.editingSpeed = false
		m.speedInput.Blur()
		return m, nil

	case "enter":
		m.editingSpeed = false
		m.speedInput.Blur()

		speed, err := strconv.ParseFloat(strings.TrimSpace(m.speedInput.Value()), 64)
		if err != nil || speed < padproto.MinPresetSpeed || speed > padproto.MaxPresetSpeed {
			m.addLogEntry(fmt.Sprintf("invalid speed %q (allowed %.1f-%.1f)",
				m.speedInput.Value(), padproto.MinPresetSpeed, padproto.MaxPresetSpeed), true)
			return m, nil
		}

		config := m.state.Clone()
		config.NotePreset.Gradient.Speed = speed
		config.NotePreset.Rain.Speed = speed

		m.addLogEntry(fmt.Sprintf("apply_config sent (speed %.2f)", speed), false)
		return m, m.sendRequest(padproto.MsgApplyConfig, map[string]any{
			"configId":       uuid.NewString(),
			"idempotencyKey": uuid.NewString(),
			"config":         config,
		})
	}

	var cmd tea.Cmd
	m.speedInput, cmd = m.speedInput.Update(msg)
	return m, cmd
}

func (m *consoleModel) activeSpeed() float64 {
	if m.state.NotePreset.Mode == padproto.ModeRain {
		return m.state.NotePreset.Rain.Speed
	}
	return m.state.NotePreset.Gradient.Speed
}

func (m consoleModel) handleFrame(line []byte) consoleModel {
	env, err := padproto.DecodeFrame(line)
	if err != nil {
		m.decodeErrors++
		m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", err), true)
		return m
	}
	m.framesIn++

	req, known := m.pending[env.ID]
	if known {
		delete(m.pending, env.ID)
	}

	switch env.Type {
	case padproto.MsgHelloAck:
		m.acks++
		if device, ok := env.Payload["device"].(string); ok {
			m.device = device
		}
		if fw, ok := env.Payload["firmwareVersion"].(string); ok {
			m.firmwareVersion = fw
		}
		if features, ok := env.Payload["features"].([]any); ok {
			m.features = m.features[:0]
			for _, f := range features {
				if name, ok := f.(string); ok {
					m.features = append(m.features, name)
				}
			}
		}
		m.updateStateFrom(env.Payload["state"])
		m.addLogEntry(fmt.Sprintf("hello_ack from %q firmware %s", m.device, m.firmwareVersion), false)

	case padproto.MsgAck:
		m.acks++
		if state, ok := env.Payload["state"]; ok {
			m.updateStateFrom(state)
		}
		if known && req.msgType == padproto.MsgPing {
			m.lastPingRTT = time.Since(req.sentAt)
			m.hasPingRTT = true
		}
		m.addLogEntry(padproto.FormatEnvelope(env), false)

	case padproto.MsgNack:
		m.nacks++
		m.addLogEntry(padproto.FormatEnvelope(env), true)

	case padproto.MsgError:
		m.errors++
		m.addLogEntry(padproto.FormatEnvelope(env), true)

	default:
		m.addLogEntry(padproto.FormatEnvelope(env), false)
	}

	return m
}

func (m *consoleModel) updateStateFrom(value any) {
	state, err := decodeStateDocument(value)
	if err != nil {
		m.addLogEntry(fmt.Sprintf("unreadable state in response: %v", err), true)
		return
	}
	m.state = &state
}

func (m *consoleModel) addLogEntry(message string, isError bool) {
	m.events = append(m.events, consoleLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.events) > m.maxLogEntries {
		m.events = m.events[len(m.events)-m.maxLogEntries:]
	}
}

func (m consoleModel) View() string {
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

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("PADLINK CONSOLE"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf(
		"%s | h: hello  r: refresh  p: ping  s: speed  q: quit", m.connInfo)))
	s.WriteString("\n\n")

	if m.connLost {
		s.WriteString(errorStyle.Render("✗ Connection lost"))
		s.WriteString("\n\n")
	}

	// Device info
	deviceContent := strings.Builder{}
	if m.device == "" {
		deviceContent.WriteString(warningStyle.Render("⏳ Waiting for hello_ack..."))
	} else {
		deviceContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			labelStyle.Render("Device:"), valueStyle.Render(m.device),
			labelStyle.Render("Firmware:"), valueStyle.Render(m.firmwareVersion),
		))
		deviceContent.WriteString(fmt.Sprintf("%s %s",
			labelStyle.Render("Features:"), headerStyle.Render(strings.Join(m.features, ", ")),
		))
	}
	s.WriteString(boxStyle.Render(deviceContent.String()))
	s.WriteString("\n\n")

	// Statistics
	statsContent := fmt.Sprintf("%s %s   %s %s   %s %s   %s %s",
		labelStyle.Render("Frames:"), valueStyle.Render(strconv.Itoa(m.framesIn)),
		labelStyle.Render("Acks:"), valueStyle.Render(strconv.Itoa(m.acks)),
		labelStyle.Render("Nacks:"), errorStyle.Render(strconv.Itoa(m.nacks)),
		labelStyle.Render("Errors:"), errorStyle.Render(strconv.Itoa(m.errors+m.decodeErrors)),
	)
	if m.hasPingRTT {
		statsContent += fmt.Sprintf("   %s %s",
			labelStyle.Render("RTT:"), valueStyle.Render(m.lastPingRTT.Round(time.Microsecond).String()))
	}
	s.WriteString(boxStyle.Render(statsContent))
	s.WriteString("\n\n")

	// State pane
	if m.state != nil {
		s.WriteString(labelStyle.Render("Device State:"))
		s.WriteString("\n")
		s.WriteString(boxStyle.Render(strings.TrimRight(padproto.FormatDeviceState(*m.state), "\n")))
		s.WriteString("\n\n")
	}

	if m.editingSpeed {
		s.WriteString(labelStyle.Render("New speed: "))
		s.WriteString(m.speedInput.View())
		s.WriteString(headerStyle.Render("  (enter to apply, esc to cancel)"))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 20
	if logHeight < 5 {
		logHeight = 5
	}

	startIdx := len(m.events) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	logContent := strings.Builder{}
	if len(m.events) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.events); i++ {
			entry := m.events[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					valueStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(strings.TrimRight(logContent.String(), "\n")))

	return s.String()
}
