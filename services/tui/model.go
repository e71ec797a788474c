// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tui provides the terminal front end for the gui command.
//
// # Description
//
// The model shows the save root, the active profile, monitor and game state,
// and a table of snapshots for one bucket at a time. Keys start and stop the
// monitor, take snapshots, restore the selected snapshot and switch profiles.
// Monitor events reach the model through a tea.Cmd that blocks on the event
// channel and re-arms itself after every event.
//
// # Thread Safety
//
// TUI components are designed for single-threaded use within the bubbletea
// event loop. Do not access TUI state from multiple goroutines.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/ddarchive/services/monitor"
	"github.com/AleutianAI/ddarchive/services/snapshot"
)

const maxLogLines = 6

// =============================================================================
// Dependencies
// =============================================================================

// Engine is the part of monitor.Engine the model drives.
type Engine interface {
	Events() <-chan monitor.Event
	State() monitor.State
	Start(ctx context.Context, withHotkey bool) error
	Stop() error
	TriggerManualClosed(ctx context.Context) (*snapshot.Info, error)
	TriggerF5(ctx context.Context) (*snapshot.Info, error)
	RequestF5()
	Restore(ctx context.Context, target snapshot.Info) (*snapshot.Info, error)
	ProfileChanged()
}

// Snapshots is the part of snapshot.Manager the model reads.
type Snapshots interface {
	List(bucket snapshot.Bucket, includeInvalid bool) ([]snapshot.Info, error)
	Profile() int
	SetProfile(n int)
	SaveRoot() string
}

// Config configures the model.
type Config struct {
	// Profiles lists the profile numbers found under the save root.
	Profiles func() []int

	// SaveProfile persists a profile switch. Optional.
	SaveProfile func(n int) error

	// WithHotkey registers the global hotkey when the monitor starts.
	WithHotkey bool

	// HotkeyName is shown in the footer. Default: "F5".
	HotkeyName string
}

// =============================================================================
// Messages
// =============================================================================

// EventMsg carries one monitor event into the model.
type EventMsg struct {
	Event monitor.Event
}

// ActionMsg reports the result of a command started by a key press.
type ActionMsg struct {
	Text    string
	Err     error
	Refresh bool
}

// =============================================================================
// Model
// =============================================================================

// Model is the bubbletea model for the snapshot browser.
type Model struct {
	ctx    context.Context
	engine Engine
	snaps  Snapshots
	config Config

	buckets []snapshot.Bucket
	tab     int
	table   table.Model
	rows    []snapshot.Info

	state   monitor.State
	log     []string
	confirm *snapshot.Info

	width    int
	height   int
	quitting bool
}

// New creates the model and loads the first bucket.
//
// # Inputs
//
//   - ctx: context for monitor and snapshot work started from the UI
//   - engine: monitor engine (usually *monitor.Engine)
//   - snaps: snapshot manager (usually *snapshot.Manager)
//   - config: profile discovery and persistence hooks
func New(ctx context.Context, engine Engine, snaps Snapshots, config Config) Model {
	if config.HotkeyName == "" {
		config.HotkeyName = "F5"
	}
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Time", Width: 19},
			{Title: "Reason", Width: 32},
			{Title: "In raid", Width: 8},
			{Title: "Integrity", Width: 9},
			{Title: "Snapshot", Width: 36},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).Foreground(lipgloss.Color("39"))
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	t.SetStyles(styles)

	m := Model{
		ctx:     ctx,
		engine:  engine,
		snaps:   snaps,
		config:  config,
		buckets: snapshot.DisplayBuckets,
		table:   t,
		state:   engine.State(),
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.engine.Events())
}

func waitForEvent(events <-chan monitor.Event) tea.Cmd {
	return func() tea.Msg {
		return EventMsg{Event: <-events}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if h := m.height - 14; h > 3 {
			m.table.SetHeight(h)
		}
		return m, nil

	case EventMsg:
		m.handleEvent(msg.Event)
		return m, waitForEvent(m.engine.Events())

	case ActionMsg:
		if msg.Err != nil {
			m.addLog("error: " + msg.Err.Error())
		} else if msg.Text != "" {
			m.addLog(msg.Text)
		}
		m.state = m.engine.State()
		if msg.Refresh {
			m.refresh()
		}
		return m, nil

	case tea.KeyMsg:
		if m.confirm != nil {
			return m.handleConfirm(msg)
		}
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		if m.engine.State().Running {
			_ = m.engine.Stop()
		}
		return m, tea.Quit

	case "tab":
		m.tab = (m.tab + 1) % len(m.buckets)
		m.refresh()

	case "shift+tab":
		m.tab = (m.tab + len(m.buckets) - 1) % len(m.buckets)
		m.refresh()

	case "R":
		m.state = m.engine.State()
		m.refresh()

	case "s":
		return m, m.toggleMonitor()

	case "m":
		return m, m.manualSave()

	case "f":
		if m.engine.State().Running {
			m.engine.RequestF5()
			return m, nil
		}
		return m, m.triggerF5()

	case "r":
		info, ok := m.selected()
		switch {
		case !ok:
			m.addLog("no snapshot selected")
		case !info.IntegrityOK:
			m.addLog("snapshot failed integrity check and cannot be restored")
		default:
			m.confirm = &info
		}

	case "p":
		m.cycleProfile()

	default:
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	target := *m.confirm
	switch msg.String() {
	case "y", "Y":
		m.confirm = nil
		return m, m.restore(target)
	case "n", "N", "esc", "q":
		m.confirm = nil
		m.addLog("restore cancelled")
	}
	return m, nil
}

// =============================================================================
// Actions
// =============================================================================

func (m Model) toggleMonitor() tea.Cmd {
	engine, ctx, withHotkey := m.engine, m.ctx, m.config.WithHotkey
	if engine.State().Running {
		return func() tea.Msg {
			return ActionMsg{Err: engine.Stop()}
		}
	}
	return func() tea.Msg {
		if err := engine.Start(ctx, withHotkey); err != nil {
			return ActionMsg{Err: fmt.Errorf("monitor start failed: %w", err)}
		}
		return ActionMsg{Refresh: true}
	}
}

func (m Model) manualSave() tea.Cmd {
	engine, ctx := m.engine, m.ctx
	return func() tea.Msg {
		snap, err := engine.TriggerManualClosed(ctx)
		if errors.Is(err, monitor.ErrGameRunning) {
			return ActionMsg{Text: "game is running; close it before a closed-game save"}
		}
		if err != nil {
			return ActionMsg{Err: fmt.Errorf("manual snapshot failed: %w", err)}
		}
		return ActionMsg{Text: "snapshot saved: " + snap.SnapshotID, Refresh: true}
	}
}

func (m Model) triggerF5() tea.Cmd {
	engine, ctx := m.engine, m.ctx
	return func() tea.Msg {
		snap, err := engine.TriggerF5(ctx)
		if err != nil {
			return ActionMsg{Err: fmt.Errorf("F5 snapshot failed: %w", err)}
		}
		if snap == nil {
			return ActionMsg{}
		}
		return ActionMsg{Text: "snapshot saved: " + snap.SnapshotID, Refresh: true}
	}
}

func (m Model) restore(target snapshot.Info) tea.Cmd {
	engine, ctx := m.engine, m.ctx
	return func() tea.Msg {
		backup, err := engine.Restore(ctx, target)
		if err != nil {
			return ActionMsg{Err: fmt.Errorf("restore failed: %w", err), Refresh: true}
		}
		return ActionMsg{
			Text:    fmt.Sprintf("restored %s (backup %s)", target.SnapshotID, backup.SnapshotID),
			Refresh: true,
		}
	}
}

func (m *Model) cycleProfile() {
	if m.config.Profiles == nil {
		return
	}
	profiles := m.config.Profiles()
	if len(profiles) == 0 {
		m.addLog("no profiles found under the save root")
		return
	}
	current := m.snaps.Profile()
	next := profiles[0]
	for i, p := range profiles {
		if p == current {
			next = profiles[(i+1)%len(profiles)]
			break
		}
	}
	if next == current {
		return
	}

	m.snaps.SetProfile(next)
	m.engine.ProfileChanged()
	if m.config.SaveProfile != nil {
		if err := m.config.SaveProfile(next); err != nil {
			m.addLog("error: save config: " + err.Error())
		}
	}
	m.state = m.engine.State()
	m.refresh()
}

// =============================================================================
// State
// =============================================================================

func (m *Model) handleEvent(ev monitor.Event) {
	switch ev.Type {
	case monitor.EventState:
		m.state = m.engine.State()
		m.state.GameRunning = ev.GameRunning
		m.state.InRaid = ev.InRaid
		m.state.CloudEnabled = ev.CloudEnabled
	case monitor.EventError:
		m.state = m.engine.State()
		m.addLog("error: " + ev.Message)
	case monitor.EventInfo:
		m.state = m.engine.State()
		m.addLog(ev.Message)
	case monitor.EventHotkey:
		if ev.Registered {
			m.addLog(m.config.HotkeyName + " hotkey registered")
		} else {
			m.addLog(m.config.HotkeyName + " hotkey unavailable")
		}
	case monitor.EventSnapshotCreated:
		m.addLog(fmt.Sprintf("snapshot created [%s]: %s", ev.Snapshot.Bucket.Label(), ev.Snapshot.SnapshotID))
		m.refresh()
	case monitor.EventAnchorSet:
		m.addLog("pre-raid anchor updated: " + ev.Snapshot.SnapshotID)
		m.refresh()
	case monitor.EventRestoreDone:
		m.addLog("restore done: " + ev.Snapshot.SnapshotID)
		m.refresh()
	}
}

func (m *Model) refresh() {
	snaps, err := m.snaps.List(m.buckets[m.tab], true)
	if err != nil {
		m.addLog("error: " + err.Error())
		snaps = nil
	}
	m.rows = snaps

	rows := make([]table.Row, 0, len(snaps))
	for _, s := range snaps {
		created := "-"
		if !s.CreatedAt.IsZero() {
			created = s.CreatedAt.Local().Format("2006-01-02 15:04:05")
		}
		rows = append(rows, table.Row{created, s.Reason.Label(), triState(s.InRaidAtCapture, "yes", "no"), integrity(s), s.SnapshotID})
	}
	m.table.SetRows(rows)
	if m.table.Cursor() >= len(rows) {
		m.table.SetCursor(0)
	}
}

func (m Model) selected() (snapshot.Info, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.rows) {
		return snapshot.Info{}, false
	}
	return m.rows[i], true
}

func (m *Model) addLog(line string) {
	m.log = append(m.log, line)
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}

// Bucket returns the bucket shown in the table.
func (m Model) Bucket() snapshot.Bucket {
	return m.buckets[m.tab]
}

// Rows returns the snapshots shown in the table.
func (m Model) Rows() []snapshot.Info {
	return m.rows
}

// Log returns the recent message lines, oldest first.
func (m Model) Log() []string {
	return m.log
}

// Confirming reports whether a restore confirmation is pending.
func (m Model) Confirming() bool {
	return m.confirm != nil
}

func triState(v *bool, yes, no string) string {
	if v == nil {
		return "unknown"
	}
	if *v {
		return yes
	}
	return no
}

func integrity(s snapshot.Info) string {
	if s.IntegrityOK {
		return "OK"
	}
	return "INVALID"
}

// =============================================================================
// Rendering
// =============================================================================

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Darkest Dungeon save archive"))
	b.WriteString("\n\n")

	saveRoot := m.snaps.SaveRoot()
	if saveRoot == "" {
		saveRoot = "(not configured)"
	}
	b.WriteString(field("Save root", saveRoot) + "\n")
	b.WriteString(field("Profile", fmt.Sprintf("profile_%d", m.snaps.Profile())) + "\n")

	monitorState := stoppedStyle.Render("stopped")
	if m.state.Running {
		monitorState = runningStyle.Render("running")
	}
	game := "closed"
	if m.state.GameRunning {
		game = "running"
	}
	b.WriteString(strings.Join([]string{
		field("Monitor", monitorState),
		field("Game", game),
		field("In raid", triState(m.state.InRaid, "yes", "no")),
		field("Steam Cloud", triState(m.state.CloudEnabled, "on", "off")),
	}, "   ") + "\n")
	if m.state.LastError != "" {
		b.WriteString(errorStyle.Render("Last error: "+m.state.LastError) + "\n")
	}
	b.WriteString("\n")

	tabs := make([]string, len(m.buckets))
	for i, bucket := range m.buckets {
		if i == m.tab {
			tabs[i] = activeTabStyle.Render(bucket.Label())
		} else {
			tabs[i] = tabStyle.Render(bucket.Label())
		}
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, tabs...))
	b.WriteString("\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")

	if m.confirm != nil {
		b.WriteString(confirmStyle.Render(fmt.Sprintf(
			"Restore %s? The current profile is backed up first. (y/n)", m.confirm.SnapshotID)))
		b.WriteString("\n")
	}

	for _, line := range m.log {
		b.WriteString(logStyle.Render(line) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func field(label, value string) string {
	return labelStyle.Render(label+":") + " " + value
}

func (m Model) renderFooter() string {
	keys := []struct{ key, desc string }{
		{"tab", "bucket"},
		{"s", "start/stop"},
		{"m", "closed save"},
		{"f", m.config.HotkeyName + " save"},
		{"r", "restore"},
		{"p", "profile"},
		{"R", "refresh"},
		{"q", "quit"},
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = helpKeyStyle.Render(k.key) + " " + helpDescStyle.Render(k.desc)
	}
	return strings.Join(parts, "  ")
}

// =============================================================================
// Styles
// =============================================================================

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	stoppedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	tabStyle = lipgloss.NewStyle().
			Padding(0, 2).
			Foreground(lipgloss.Color("250"))

	activeTabStyle = lipgloss.NewStyle().
			Padding(0, 2).
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	confirmStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	logStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))
)
