// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/huh"
)

// ConfirmPhrase is the literal an operator must type to approve a destructive action.
const ConfirmPhrase = "CONFIRM"

// ErrAborted is returned when the operator cancels a prompt (Ctrl+C, Esc, EOF).
var ErrAborted = errors.New("prompt aborted")

// IsConfirmed reports whether input is exactly ConfirmPhrase. Case-sensitive, no trimming.
func IsConfirmed(input string) bool {
	return input == ConfirmPhrase
}

// Option is one selectable entry in a Select prompt.
type Option struct {
	Label string
	Value string
}

// Prompter collects operator input.
//
// # Description
//
// Two implementations exist: HuhPrompter renders rich terminal forms and
// LinePrompter reads plain lines so scripts and tests can drive prompts
// through a pipe. NewPrompter chooses between them.
type Prompter interface {
	// Select shows options and returns the chosen Value.
	Select(title string, options []Option) (string, error)

	// Input asks for free text and returns it without the line terminator.
	Input(title, description string) (string, error)
}

// NewPrompter returns a HuhPrompter on a terminal and a LinePrompter otherwise.
func NewPrompter() Prompter {
	if IsInteractive() {
		return &HuhPrompter{}
	}
	return NewLinePrompter(os.Stdin, Out())
}

// =============================================================================
// HuhPrompter
// =============================================================================

// HuhPrompter renders prompts with charmbracelet/huh.
type HuhPrompter struct{}

// Select implements Prompter.
func (p *HuhPrompter) Select(title string, options []Option) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("select %q: no options", title)
	}
	huhOptions := make([]huh.Option[string], 0, len(options))
	for _, o := range options {
		huhOptions = append(huhOptions, huh.NewOption(o.Label, o.Value))
	}

	var choice string
	err := huh.NewSelect[string]().
		Title(title).
		Options(huhOptions...).
		Value(&choice).
		Run()
	if err != nil {
		return "", mapHuhError(err)
	}
	return choice, nil
}

// Input implements Prompter.
func (p *HuhPrompter) Input(title, description string) (string, error) {
	var value string
	err := huh.NewInput().
		Title(title).
		Description(description).
		Value(&value).
		Run()
	if err != nil {
		return "", mapHuhError(err)
	}
	return value, nil
}

func mapHuhError(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrAborted
	}
	return err
}

// =============================================================================
// LinePrompter
// =============================================================================

// LinePrompter reads answers one line at a time.
type LinePrompter struct {
	in  *bufio.Reader
	out io.Writer
	mu  sync.Mutex
}

// NewLinePrompter creates a LinePrompter over the given streams.
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewReader(in), out: out}
}

// Select prints a numbered list and accepts either the number or the value.
func (p *LinePrompter) Select(title string, options []Option) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("select %q: no options", title)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.out, title)
	for i, o := range options {
		fmt.Fprintf(p.out, "  %d) %s\n", i+1, o.Label)
	}
	fmt.Fprint(p.out, "> ")

	line, err := p.readLine()
	if err != nil {
		return "", err
	}
	answer := strings.TrimSpace(line)

	if n, convErr := strconv.Atoi(answer); convErr == nil {
		if n < 1 || n > len(options) {
			return "", fmt.Errorf("select %q: choice %d out of range 1-%d", title, n, len(options))
		}
		return options[n-1].Value, nil
	}
	for _, o := range options {
		if o.Value == answer {
			return o.Value, nil
		}
	}
	return "", fmt.Errorf("select %q: unknown choice %q", title, answer)
}

// Input prints the title and returns the next line as typed.
func (p *LinePrompter) Input(title, description string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if description != "" {
		fmt.Fprintln(p.out, description)
	}
	fmt.Fprintf(p.out, "%s ", title)
	return p.readLine()
}

func (p *LinePrompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		if errors.Is(err, io.EOF) {
			return "", ErrAborted
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// =============================================================================
// MockPrompter
// =============================================================================

// MockPrompter returns scripted answers and records the prompts it was shown.
type MockPrompter struct {
	mu sync.Mutex

	// Selections are returned by Select in order.
	Selections []string

	// Inputs are returned by Input in order.
	Inputs []string

	// Err, when set, is returned by every call once the scripted answers run out.
	Err error

	Titles []string
}

// Select implements Prompter.
func (m *MockPrompter) Select(title string, options []Option) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Titles = append(m.Titles, title)
	if len(m.Selections) == 0 {
		return "", m.exhausted()
	}
	v := m.Selections[0]
	m.Selections = m.Selections[1:]
	return v, nil
}

// Input implements Prompter.
func (m *MockPrompter) Input(title, description string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Titles = append(m.Titles, title)
	if len(m.Inputs) == 0 {
		return "", m.exhausted()
	}
	v := m.Inputs[0]
	m.Inputs = m.Inputs[1:]
	return v, nil
}

func (m *MockPrompter) exhausted() error {
	if m.Err != nil {
		return m.Err
	}
	return ErrAborted
}

var (
	_ Prompter = (*HuhPrompter)(nil)
	_ Prompter = (*LinePrompter)(nil)
	_ Prompter = (*MockPrompter)(nil)
)
