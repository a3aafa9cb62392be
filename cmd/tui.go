// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Thermoquad/sentinel/internal/lns"
	"github.com/Thermoquad/sentinel/pkg/sentinel"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for warnings
}

// deviceEntry tracks one beacon heard on the stream
type deviceEntry struct {
	id       string
	network  string
	lastSeen time.Time
	frames   uint64
	failed   uint64

	// Latest uplink that carried values
	lastRecord sentinel.CanonicalRecord
	lastMeta   lns.Metadata
	lastData   *sentinel.FrameData
}

// Implement list.Item interface
func (d deviceEntry) Title() string { return d.id }
func (d deviceEntry) Description() string {
	return fmt.Sprintf("%s, %d frames, %d failed", d.network, d.frames, d.failed)
}
func (d deviceEntry) FilterValue() string { return d.id }

// TUI model
type model struct {
	connInfo       string
	showAll        bool
	pipeline       *pipeline
	devices        map[string]*deviceEntry
	deviceList     list.Model
	eventLog       []eventLogEntry
	maxLogEntries  int
	width          int
	height         int
	quitting       bool
	connectionLost bool
}

// Messages
type tickMsg time.Time
type uplinkMsg struct {
	up     lns.Uplink
	result sentinel.DecodeResult
	err    error
}
type connectionLostMsg struct {
	err error
}

// formatUptime formats a duration in milliseconds to human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func plural(n uint64, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func initialModel(connInfo string, p *pipeline, showAll bool) model {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	deviceList := list.New([]list.Item{}, delegate, 30, 10)
	deviceList.Title = "Devices"
	deviceList.SetShowStatusBar(false)
	deviceList.SetShowHelp(false)
	deviceList.SetFilteringEnabled(false)

	return model{
		connInfo:      connInfo,
		showAll:       showAll,
		pipeline:      p,
		devices:       make(map[string]*deviceEntry),
		deviceList:    deviceList,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "up", "k", "down", "j":
			var cmd tea.Cmd
			m.deviceList, cmd = m.deviceList.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case tickMsg:
		return m, tickCmd()

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry(fmt.Sprintf("Connection lost: %v", msg.err), true)

	case uplinkMsg:
		m.handleUplink(msg)
	}

	return m, nil
}

// handleUplink records a decoded uplink in the device table and event log
func (m *model) handleUplink(msg uplinkMsg) {
	if msg.err != nil {
		if errors.Is(msg.err, lns.ErrUselessFrame) {
			if m.showAll {
				m.addLogEntry("Keep-alive ignored", false)
			}
			return
		}
		m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", msg.err), true)
		return
	}

	rec := msg.up.Record
	r := msg.result

	d, ok := m.devices[rec.DeviceID]
	if !ok {
		d = &deviceEntry{id: rec.DeviceID}
		m.devices[rec.DeviceID] = d
		m.addLogEntry(fmt.Sprintf("New device %s (%s)", rec.DeviceID, msg.up.Metadata.Network), false)
	}
	d.network = msg.up.Metadata.Network
	d.lastSeen = time.Now()

	if sentinel.CompletesFrame(rec, r) {
		d.frames++
		if r.Failed() {
			d.failed++
		} else if hasValues(r.Data) {
			data := r.Data
			d.lastData = &data
			d.lastRecord = rec
			d.lastMeta = msg.up.Metadata
		}
	}

	for _, e := range r.Errors {
		m.addLogEntry(fmt.Sprintf("%s: %s", rec.DeviceID, e), true)
	}
	for _, w := range r.Warnings {
		m.addLogEntry(fmt.Sprintf("%s: %s", rec.DeviceID, w), false)
	}
	if m.showAll && len(r.Errors) == 0 && len(r.Warnings) == 0 {
		m.addLogEntry(fmt.Sprintf("%s: fPort %d (valid)", rec.DeviceID, rec.ElementCount), false)
	}

	m.updateDeviceList()
}

func hasValues(data sentinel.FrameData) bool {
	return len(data.ScalarValues) > 0 || len(data.SignatureValues) > 0 || len(data.FftZoomValues) > 0 ||
		data.FirmwareVersion != "" || data.ExtensionSettings != nil
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// updateDeviceList refreshes the list, sorted by device id
func (m *model) updateDeviceList() {
	entries := make([]*deviceEntry, 0, len(m.devices))
	for _, d := range m.devices {
		entries = append(entries, d)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	items := make([]list.Item, len(entries))
	for i, d := range entries {
		items[i] = *d
	}
	m.deviceList.SetItems(items)
}

func (m *model) updateListSize() {
	listHeight := m.height / 3
	if listHeight < 5 {
		listHeight = 5
	}
	m.deviceList.SetSize(28, listHeight)
}

// selectedDevice returns the device under the list cursor
func (m model) selectedDevice() *deviceEntry {
	item, ok := m.deviceList.SelectedItem().(deviceEntry)
	if !ok {
		return nil
	}
	return m.devices[item.id]
}

func (m model) View() string {
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

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
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

	stats := m.pipeline.Snapshot()

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("SENTINEL - UPLINK MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | Running: %s | Press 'q' to quit",
		m.connInfo, func() string {
			if m.showAll {
				return "All uplinks"
			}
			return "Issues only"
		}(), formatUptime(uint64(time.Since(stats.StartTime).Milliseconds())))))
	s.WriteString("\n\n")

	if m.connectionLost {
		s.WriteString(errorStyle.Render("Connection lost"))
		s.WriteString("\n\n")
	}

	// Statistics
	s.WriteString(boxStyle.Render(m.renderStatistics(stats, statsLabelStyle, statsValueStyle, errorStyle, warningStyle)))
	s.WriteString("\n\n")

	// Devices | latest values
	leftWidth := 30
	rightWidth := m.width - leftWidth - 6
	if rightWidth < 20 {
		rightWidth = 20
	}
	devicePanel := boxStyle.Width(leftWidth).Render(m.deviceList.View())
	valuesPanel := boxStyle.Width(rightWidth).Render(m.renderLatestValues(statsLabelStyle, statsValueStyle, headerStyle))
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, devicePanel, " ", valuesPanel))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - m.height/3 - 16
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}

func (m model) renderStatistics(stats sentinel.Statistics, labelStyle, valueStyle, errorStyle, warningStyle lipgloss.Style) string {
	var decodedPercent, failedPercent float64
	if stats.TotalUplinks > 0 {
		decodedPercent = float64(stats.DecodedFrames) * 100.0 / float64(stats.TotalUplinks)
		failedPercent = float64(stats.FailedFrames) * 100.0 / float64(stats.TotalUplinks)
	}

	var c strings.Builder
	c.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("Uplinks:"), valueStyle.Render(fmt.Sprintf("%d", stats.TotalUplinks)),
		labelStyle.Render("Decoded:"), valueStyle.Render(fmt.Sprintf("%d (%.1f%%)", stats.DecodedFrames, decodedPercent)),
		labelStyle.Render("Failed:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", stats.FailedFrames, failedPercent)),
	))

	if stats.Segments > 0 {
		c.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s   %s %s\n",
			labelStyle.Render("Segments:"), valueStyle.Render(fmt.Sprintf("%d", stats.Segments)),
			labelStyle.Render("Reassembled:"), valueStyle.Render(fmt.Sprintf("%d", stats.Reassembled)),
			labelStyle.Render("Duplicates:"), warningStyle.Render(fmt.Sprintf("%d", stats.Duplicates)),
			labelStyle.Render("Lost:"), errorStyle.Render(fmt.Sprintf("%d", stats.LostSegments)),
			labelStyle.Render("CRC:"), errorStyle.Render(fmt.Sprintf("%d", stats.CRCErrors)),
		))
	}

	c.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		labelStyle.Render("Warnings:"), warningStyle.Render(fmt.Sprintf("%d", stats.TotalWarnings)),
		labelStyle.Render("Settings stored:"), valueStyle.Render(fmt.Sprintf("%d", stats.SettingsStored)),
	))

	c.WriteString(fmt.Sprintf("%s %s   %s %s",
		labelStyle.Render("Uplink Rate:"), valueStyle.Render(fmt.Sprintf("%.1f uplinks/s", stats.UplinkRate)),
		labelStyle.Render("Error Rate:"), func() string {
			if stats.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
			}
			return valueStyle.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
		}(),
	))
	return c.String()
}

func (m model) renderLatestValues(labelStyle, valueStyle, headerStyle lipgloss.Style) string {
	d := m.selectedDevice()
	if d == nil {
		return headerStyle.Render("No device heard yet")
	}

	var c strings.Builder
	c.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Device:"), valueStyle.Render(d.id)))
	c.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Last seen:"), d.lastSeen.Format("15:04:05")))

	if d.lastData == nil {
		c.WriteString(headerStyle.Render("No values decoded yet"))
		return c.String()
	}

	meta := d.lastMeta
	c.WriteString(headerStyle.Render(fmt.Sprintf("fPort %d  DR %d  SNR %.1f dB  RSSI %.0f dBm",
		d.lastRecord.ElementCount, meta.DataRate, meta.SNR, meta.RSSI)))
	c.WriteString("\n")

	data := d.lastData
	for _, v := range data.ScalarValues {
		c.WriteString(fmt.Sprintf("%s %s\n",
			labelStyle.Render(v.Name+":"),
			valueStyle.Render(strings.TrimSpace(fmt.Sprintf("%.2f %s", v.Value, v.Unit))),
		))
	}
	if n := len(data.SignatureValues); n > 0 {
		c.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Signature:"), valueStyle.Render(fmt.Sprintf("%d values", n))))
	}
	if n := len(data.FftZoomValues); n > 0 {
		c.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("FFT zoom:"), valueStyle.Render(fmt.Sprintf("%d bands", n))))
	}
	if data.FirmwareVersion != "" {
		c.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Firmware:"), valueStyle.Render(data.FirmwareVersion)))
	}
	if s := data.ExtensionSettings; s != nil {
		c.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Extension:"),
			valueStyle.Render(fmt.Sprintf("handle %d, %s", s.Handle, s.CompressionType))))
	}
	return strings.TrimRight(c.String(), "\n")
}
