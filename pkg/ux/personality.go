// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// PersonalityEnvVar selects the output level when no flag is given.
const PersonalityEnvVar = "ODOOCTL_PERSONALITY"

// PersonalityLevel controls how much styling odooctl emits.
type PersonalityLevel string

const (
	// PersonalityFull enables colors, icons, boxes and the banner
	PersonalityFull PersonalityLevel = "full"

	// PersonalityStandard enables colors, icons and boxes without the banner
	PersonalityStandard PersonalityLevel = "standard"

	// PersonalityMinimal uses icons and basic formatting only
	PersonalityMinimal PersonalityLevel = "minimal"

	// PersonalityMachine outputs plain prefixed lines suitable for scripting
	PersonalityMachine PersonalityLevel = "machine"
)

// Personality holds the active output settings.
type Personality struct {
	Level PersonalityLevel

	// ShowBanner prints the menu banner above the interactive menu.
	ShowBanner bool
}

var (
	currentPersonality = DefaultPersonality()
	personalityMu      sync.RWMutex
)

// GetPersonality returns the active personality.
func GetPersonality() Personality {
	personalityMu.RLock()
	defer personalityMu.RUnlock()
	return currentPersonality
}

// SetPersonality replaces the active personality.
func SetPersonality(p Personality) {
	personalityMu.Lock()
	defer personalityMu.Unlock()
	currentPersonality = p
}

// SetPersonalityLevel changes only the level of the active personality.
func SetPersonalityLevel(level PersonalityLevel) {
	personalityMu.Lock()
	defer personalityMu.Unlock()
	currentPersonality.Level = level
	currentPersonality.ShowBanner = level == PersonalityFull
}

// ParsePersonalityLevel maps user input to a level. Unknown input maps to standard.
func ParsePersonalityLevel(s string) PersonalityLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "f":
		return PersonalityFull
	case "standard", "std", "s":
		return PersonalityStandard
	case "minimal", "min", "m":
		return PersonalityMinimal
	case "machine", "quiet", "q":
		return PersonalityMachine
	default:
		return PersonalityStandard
	}
}

// InitPersonality picks the level from the flag value, then the environment,
// then whether stdout is a terminal.
func InitPersonality(flagValue string) {
	if flagValue != "" {
		SetPersonalityLevel(ParsePersonalityLevel(flagValue))
		return
	}
	if envLevel := os.Getenv(PersonalityEnvVar); envLevel != "" {
		SetPersonalityLevel(ParsePersonalityLevel(envLevel))
		return
	}
	if !IsTerminal(os.Stdout) {
		SetPersonalityLevel(PersonalityMachine)
		return
	}
	SetPersonalityLevel(PersonalityFull)
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// IsInteractive reports whether prompts can use the rich terminal forms.
func IsInteractive() bool {
	return GetPersonality().Level != PersonalityMachine && IsTerminal(os.Stdin) && IsTerminal(os.Stdout)
}

// ShouldShowProgress reports whether spinners should animate.
func ShouldShowProgress() bool {
	return GetPersonality().Level != PersonalityMachine
}

// DefaultPersonality returns the full personality.
func DefaultPersonality() Personality {
	return Personality{Level: PersonalityFull, ShowBanner: true}
}
