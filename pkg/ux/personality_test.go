// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"os"
	"testing"
)

func TestSetPersonality_AndGet(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonality(Personality{Level: PersonalityMinimal})
	if GetPersonality().Level != PersonalityMinimal {
		t.Errorf("expected minimal, got %v", GetPersonality().Level)
	}
}

func TestSetPersonalityLevel_Banner(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	tests := []struct {
		level  PersonalityLevel
		banner bool
	}{
		{PersonalityFull, true},
		{PersonalityStandard, false},
		{PersonalityMinimal, false},
		{PersonalityMachine, false},
	}
	for _, tt := range tests {
		SetPersonalityLevel(tt.level)
		p := GetPersonality()
		if p.Level != tt.level || p.ShowBanner != tt.banner {
			t.Errorf("SetPersonalityLevel(%v) = %+v", tt.level, p)
		}
	}
}

func TestParsePersonalityLevel(t *testing.T) {
	tests := map[string]PersonalityLevel{
		"full":     PersonalityFull,
		"F":        PersonalityFull,
		"standard": PersonalityStandard,
		"std":      PersonalityStandard,
		" minimal": PersonalityMinimal,
		"min":      PersonalityMinimal,
		"machine":  PersonalityMachine,
		"quiet":    PersonalityMachine,
		"":         PersonalityStandard,
		"nautical": PersonalityStandard,
	}
	for in, want := range tests {
		if got := ParsePersonalityLevel(in); got != want {
			t.Errorf("ParsePersonalityLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitPersonality_FlagWins(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	t.Setenv(PersonalityEnvVar, "machine")

	InitPersonality("minimal")
	if GetPersonality().Level != PersonalityMinimal {
		t.Errorf("expected flag value, got %v", GetPersonality().Level)
	}
}

func TestInitPersonality_WithEnvVar(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	t.Setenv(PersonalityEnvVar, "minimal")

	InitPersonality("")
	if GetPersonality().Level != PersonalityMinimal {
		t.Errorf("expected minimal from env, got %v", GetPersonality().Level)
	}
}

func TestInitPersonality_NoEnvVar(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	t.Setenv(PersonalityEnvVar, "")

	InitPersonality("")

	// Depends on whether the test binary's stdout is a terminal.
	level := GetPersonality().Level
	if level != PersonalityFull && level != PersonalityMachine {
		t.Errorf("expected full or machine, got %v", level)
	}
}

func TestIsTerminal_Nil(t *testing.T) {
	if IsTerminal(nil) {
		t.Error("nil file is not a terminal")
	}
}

func TestIsTerminal_RegularFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "tty")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if IsTerminal(f) {
		t.Error("regular file reported as terminal")
	}
}

func TestIsInteractive_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)
	if IsInteractive() {
		t.Error("expected IsInteractive to be false in machine mode")
	}
}

func TestShouldShowProgress(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)
	if ShouldShowProgress() {
		t.Error("machine mode should not animate")
	}
	SetPersonalityLevel(PersonalityMinimal)
	if !ShouldShowProgress() {
		t.Error("minimal mode should animate")
	}
}
