// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling and prompts for odooctl.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Palette built around the Odoo plum.
var (
	ColorPlum      = lipgloss.Color("#714B67") // brand, titles
	ColorPlumLight = lipgloss.Color("#A77D9F") // highlights
	ColorTeal      = lipgloss.Color("#017E84") // interactive elements
	ColorSlate     = lipgloss.Color("#5C6770") // muted text, borders

	ColorSuccess = lipgloss.Color("#28A745")
	ColorWarning = lipgloss.Color("#F0AD4E")
	ColorError   = lipgloss.Color("#DC3545")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Command   lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
	ErrorBox   lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorPlum),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorPlumLight),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorPlumLight).Bold(true),
	Command:   lipgloss.NewStyle().Foreground(ColorTeal),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorPlum).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Icon is a single-glyph status marker.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with its semantic color.
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

// =============================================================================
// Output destinations
// =============================================================================

var (
	outMu  sync.RWMutex
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// SetOutput redirects normal and error output. Nil restores the os streams.
// Returns a function that restores the previous writers.
func SetOutput(out, errOut io.Writer) (restore func()) {
	outMu.Lock()
	defer outMu.Unlock()
	prevOut, prevErr := stdout, stderr
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	stdout, stderr = out, errOut
	return func() {
		outMu.Lock()
		defer outMu.Unlock()
		stdout, stderr = prevOut, prevErr
	}
}

// Out returns the current normal output writer.
func Out() io.Writer {
	outMu.RLock()
	defer outMu.RUnlock()
	return stdout
}

// ErrOut returns the current error output writer.
func ErrOut() io.Writer {
	outMu.RLock()
	defer outMu.RUnlock()
	return stderr
}

// =============================================================================
// Printing helpers
// =============================================================================

// Title prints a bold section title. Suppressed in machine mode.
func Title(text string) {
	if GetPersonality().Level == PersonalityMachine {
		return
	}
	fmt.Fprintln(Out(), Styles.Title.Render(text))
}

// Success prints a success line.
func Success(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintf(Out(), "OK: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(Out(), "%s %s\n", IconSuccess.Render(), text)
	default:
		fmt.Fprintf(Out(), "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning line.
func Warning(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintf(ErrOut(), "WARN: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(Out(), "%s %s\n", IconWarning.Render(), text)
	default:
		fmt.Fprintf(Out(), "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error line.
func Error(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintf(ErrOut(), "ERROR: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(Out(), "%s %s\n", IconError.Render(), text)
	default:
		fmt.Fprintf(Out(), "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational line.
func Info(text string) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Fprintln(Out(), text)
		return
	}
	fmt.Fprintf(Out(), "%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints de-emphasized text. Suppressed in machine mode.
func Muted(text string) {
	if GetPersonality().Level == PersonalityMachine {
		return
	}
	fmt.Fprintln(Out(), Styles.Muted.Render(text))
}

// Hint prints a remediation suggestion with the command highlighted.
func Hint(text, command string) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Fprintf(ErrOut(), "HINT: %s: %s\n", text, command)
		return
	}
	fmt.Fprintf(Out(), "%s %s %s\n", IconArrow.Render(), text, Styles.Command.Render(command))
}

// KeyValue prints an aligned label/value pair.
func KeyValue(key, value string) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Fprintf(Out(), "%s=%s\n", strings.ToLower(strings.ReplaceAll(key, " ", "_")), value)
		return
	}
	fmt.Fprintf(Out(), "  %s %s\n", Styles.Muted.Render(fmt.Sprintf("%-14s", key+":")), value)
}

// Box prints content inside a rounded border.
func Box(title, content string) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Fprintf(Out(), "%s: %s\n", title, content)
		return
	}
	fmt.Fprintln(Out(), Styles.Box.Width(60).Render(Styles.Title.Render(title)+"\n"+content))
}

// WarningBox prints content inside a warning-colored border.
func WarningBox(title, content string) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Fprintf(ErrOut(), "WARN %s: %s\n", title, content)
		return
	}
	titleLine := Styles.Warning.Bold(true).Render(title)
	fmt.Fprintln(Out(), Styles.WarningBox.Width(60).Render(titleLine+"\n"+content))
}

// ErrorBox prints content inside an error-colored border.
func ErrorBox(title, content string) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Fprintf(ErrOut(), "ERROR %s: %s\n", title, content)
		return
	}
	titleLine := Styles.Error.Bold(true).Render(title)
	fmt.Fprintln(Out(), Styles.ErrorBox.Width(60).Render(titleLine+"\n"+content))
}
