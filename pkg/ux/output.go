// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the ddarchive CLI.
package ux

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Palette: torchlight amber over crypt stone
var (
	ColorTorch   = lipgloss.Color("#E8A33D") // Torch amber - titles, highlights
	ColorEmber   = lipgloss.Color("#C4622D") // Ember - interactive elements
	ColorBone    = lipgloss.Color("#D9CFB8") // Bone - body text
	ColorStone   = lipgloss.Color("#5C5A55") // Stone - muted text, borders
	ColorSuccess = lipgloss.Color("#7FB069") // Moss green
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#C0392B") // Blood red
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Box       lipgloss.Style
	ErrorBox  lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTorch),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorBone),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorStone),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTorch).Bold(true),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorStone).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconAnchor  Icon = "⚓"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

var (
	outMu sync.Mutex
	out   io.Writer = os.Stdout
	errw  io.Writer = os.Stderr
)

// SetOutput redirects stdout and stderr output. Passing nil restores the defaults.
func SetOutput(stdout, stderr io.Writer) {
	outMu.Lock()
	defer outMu.Unlock()
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	out, errw = stdout, stderr
}

func writers() (io.Writer, io.Writer) {
	outMu.Lock()
	defer outMu.Unlock()
	return out, errw
}

// Title prints a styled title
func Title(text string) {
	if GetPersonalityLevel() == PersonalityMachine {
		return
	}
	o, _ := writers()
	fmt.Fprintln(o, Styles.Title.Render(text))
}

// Success prints a success message with checkmark
func Success(text string) {
	o, _ := writers()
	switch GetPersonalityLevel() {
	case PersonalityMachine:
		fmt.Fprintf(o, "OK: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(o, "%s %s\n", IconSuccess, text)
	default:
		fmt.Fprintf(o, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning message
func Warning(text string) {
	o, e := writers()
	switch GetPersonalityLevel() {
	case PersonalityMachine:
		fmt.Fprintf(e, "WARN: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(o, "%s %s\n", IconWarning, text)
	default:
		fmt.Fprintf(o, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error message
func Error(text string) {
	o, e := writers()
	switch GetPersonalityLevel() {
	case PersonalityMachine:
		fmt.Fprintf(e, "ERROR: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(o, "%s %s\n", IconError, text)
	default:
		fmt.Fprintf(o, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational message
func Info(text string) {
	o, _ := writers()
	if GetPersonalityLevel() == PersonalityMachine {
		fmt.Fprintln(o, text)
		return
	}
	fmt.Fprintf(o, "%s %s\n", Styles.Muted.Render("│"), text)
}

// KeyValue prints an aligned "key: value" line
func KeyValue(key, value string) {
	o, _ := writers()
	if GetPersonalityLevel() == PersonalityMachine {
		fmt.Fprintf(o, "%s: %s\n", key, value)
		return
	}
	fmt.Fprintf(o, "%s %s\n", Styles.Muted.Render(fmt.Sprintf("%-16s", key+":")), value)
}

// Box prints text in a rounded box
func Box(title, content string) {
	o, _ := writers()
	if GetPersonalityLevel() == PersonalityMachine {
		fmt.Fprintf(o, "%s: %s\n", title, content)
		return
	}
	fmt.Fprintln(o, Styles.Box.Width(60).Render(Styles.Title.Render(title)+"\n"+content))
}

// FormatBytes renders a byte count with a binary unit
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
