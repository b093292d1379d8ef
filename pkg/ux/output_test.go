// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import "testing"

func setLevel(t *testing.T, level PersonalityLevel) {
	t.Helper()
	prev := GetPersonality().Level
	SetPersonalityLevel(level)
	t.Cleanup(func() { SetPersonalityLevel(prev) })
}

func TestRunStatusIcon(t *testing.T) {
	cases := map[string]Icon{
		"COMPLETED": IconSuccess,
		"FAILED":    IconError,
		"ABORTED":   IconWarning,
		"CANCELLED": IconWarning,
		"RUNNING":   IconRunning,
		"PENDING":   IconPending,
		"MYSTERY":   IconBullet,
	}
	for status, want := range cases {
		if got := RunStatusIcon(status); got != want {
			t.Errorf("RunStatusIcon(%q) = %q, want %q", status, got, want)
		}
	}
}

func TestRunStatus_MachineLevelIsPlain(t *testing.T) {
	setLevel(t, PersonalityMachine)

	if got := RunStatus("COMPLETED"); got != "COMPLETED" {
		t.Errorf("RunStatus = %q, want bare status text", got)
	}
}

func TestParsePersonalityLevel(t *testing.T) {
	cases := map[string]PersonalityLevel{
		"full":    PersonalityFull,
		"f":       PersonalityFull,
		"STD":     PersonalityStandard,
		"minimal": PersonalityMinimal,
		"m":       PersonalityMinimal,
		"machine": PersonalityMachine,
		"quiet":   PersonalityMachine,
		"bogus":   PersonalityStandard,
	}
	for in, want := range cases {
		if got := ParsePersonalityLevel(in); got != want {
			t.Errorf("ParsePersonalityLevel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInitPersonality_EnvOverride(t *testing.T) {
	setLevel(t, PersonalityFull)
	t.Setenv("ALEUTIANFLOW_PERSONALITY", "machine")

	InitPersonality()
	if GetPersonality().Level != PersonalityMachine {
		t.Errorf("Level = %q, want machine from env", GetPersonality().Level)
	}
}

func TestSpinner_NoProgressAtMachineLevel(t *testing.T) {
	setLevel(t, PersonalityMachine)

	s := NewSpinner("working")
	s.Start()
	// Never started, so Stop must not block on the done channel.
	s.Stop()
}

func TestSpinner_StartStop(t *testing.T) {
	setLevel(t, PersonalityMinimal)

	s := NewSpinner("working").WithType(SpinnerCompass)
	s.Start()
	s.UpdateMessage("still working")
	s.Stop()

	// Second Stop is a no-op.
	s.Stop()
}
