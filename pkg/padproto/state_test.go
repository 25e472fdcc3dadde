// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 thx4cmn

package padproto

import (
	"encoding/json"
	"testing"
)

func stateDoc(t *testing.T) map[string]any {
	t.Helper()
	raw, err := json.Marshal(DefaultDeviceState())
	if err != nil {
		t.Fatalf("failed to build state document: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("failed to rebuild state document: %v", err)
	}
	return doc
}

func notePresetOf(doc map[string]any) map[string]any {
	return doc["notePreset"].(map[string]any)
}

// ============================================================
// Validation
// ============================================================

func TestValidateDeviceState_DefaultIsValid(t *testing.T) {
	if err := ValidateDeviceState(stateDoc(t)); err != nil {
		t.Fatalf("default state must validate: %v", err)
	}
}

func TestValidateDeviceState_TypedValueIsValid(t *testing.T) {
	state := DefaultDeviceState()
	if err := ValidateDeviceState(state); err != nil {
		t.Errorf("typed state must validate: %v", err)
	}
	if err := ValidateDeviceState(&state); err != nil {
		t.Errorf("state pointer must validate: %v", err)
	}
}

func TestValidateDeviceState_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(doc map[string]any)
		message string
	}{
		{
			name:    "unsupported mode",
			mutate:  func(doc map[string]any) { notePresetOf(doc)["mode"] = "disco" },
			message: "state.notePreset.mode is unsupported.",
		},
		{
			name:    "missing mode",
			mutate:  func(doc map[string]any) { delete(notePresetOf(doc), "mode") },
			message: "state.notePreset.mode is unsupported.",
		},
		{
			name: "invalid hex digits",
			mutate: func(doc map[string]any) {
				notePresetOf(doc)["piano"].(map[string]any)["whiteKeyColor"] = "#GGGGGG"
			},
			message: "state.notePreset.piano.whiteKeyColor must be #RRGGBB.",
		},
		{
			name: "short color",
			mutate: func(doc map[string]any) {
				notePresetOf(doc)["piano"].(map[string]any)["blackKeyColor"] = "#fff"
			},
			message: "state.notePreset.piano.blackKeyColor must be #RRGGBB.",
		},
		{
			name: "speed above range",
			mutate: func(doc map[string]any) {
				notePresetOf(doc)["gradient"].(map[string]any)["speed"] = 4.1
			},
			message: "state.notePreset.gradient.speed must be between 0.2 and 3.0.",
		},
		{
			name: "speed below range",
			mutate: func(doc map[string]any) {
				notePresetOf(doc)["rain"].(map[string]any)["speed"] = 0.1
			},
			message: "state.notePreset.rain.speed must be between 0.2 and 3.0.",
		},
		{
			name: "speed not a number",
			mutate: func(doc map[string]any) {
				notePresetOf(doc)["rain"].(map[string]any)["speed"] = "fast"
			},
			message: "state.notePreset.rain.speed must be between 0.2 and 3.0.",
		},
		{
			name:    "notePreset not an object",
			mutate:  func(doc map[string]any) { doc["notePreset"] = "piano" },
			message: "state.notePreset must be an object.",
		},
		{
			name:    "missing modifier key",
			mutate:  func(doc map[string]any) { delete(doc["modifierChords"].(map[string]any), "14") },
			message: "state.modifierChords.14 must be a string.",
		},
		{
			name: "unsupported chord",
			mutate: func(doc map[string]any) {
				doc["modifierChords"].(map[string]any)["12"] = "dim"
			},
			message: "state.modifierChords.12 is unsupported.",
		},
		{
			name:    "modifierChords not an object",
			mutate:  func(doc map[string]any) { doc["modifierChords"] = []any{"maj"} },
			message: "state.modifierChords must be an object.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := stateDoc(t)
			tt.mutate(doc)

			err := ValidateDeviceState(doc)
			if err == nil {
				t.Fatal("expected rejection")
			}
			if err.Error() != tt.message {
				t.Errorf("expected %q, got %q", tt.message, err.Error())
			}
		})
	}
}

func TestValidateDeviceState_NotAnObject(t *testing.T) {
	for _, candidate := range []any{nil, 42, "state", []any{}} {
		if err := ValidateDeviceState(candidate); err == nil {
			t.Errorf("%v: expected rejection", candidate)
		}
	}
}

// ============================================================
// Normalization
// ============================================================

func TestNormalizeDeviceState_Idempotent(t *testing.T) {
	first, err := NormalizeDeviceState(stateDoc(t))
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}

	second, err := NormalizeDeviceState(*first)
	if err != nil {
		t.Fatalf("re-normalize failed: %v", err)
	}

	if first.NotePreset != second.NotePreset {
		t.Errorf("normalization must be idempotent: %+v vs %+v",
			first.NotePreset, second.NotePreset)
	}
	for _, key := range RequiredModifierKeys {
		if first.ModifierChords[key] != second.ModifierChords[key] {
			t.Errorf("chord for key %s changed: %q vs %q",
				key, first.ModifierChords[key], second.ModifierChords[key])
		}
	}
}

func TestNormalizeDeviceState_LowercasesColors(t *testing.T) {
	doc := stateDoc(t)
	notePresetOf(doc)["piano"].(map[string]any)["whiteKeyColor"] = "#FF4B5A"
	notePresetOf(doc)["gradient"].(map[string]any)["colorA"] = "#AABBCC"

	normalized, err := NormalizeDeviceState(doc)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}

	if normalized.NotePreset.Piano.WhiteKeyColor != "#ff4b5a" {
		t.Errorf("whiteKeyColor not lowercased: %q", normalized.NotePreset.Piano.WhiteKeyColor)
	}
	if normalized.NotePreset.Gradient.ColorA != "#aabbcc" {
		t.Errorf("gradient colorA not lowercased: %q", normalized.NotePreset.Gradient.ColorA)
	}
}

func TestNormalizeDeviceState_DropsExtraChordKeys(t *testing.T) {
	doc := stateDoc(t)
	doc["modifierChords"].(map[string]any)["16"] = "maj"

	normalized, err := NormalizeDeviceState(doc)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}

	if len(normalized.ModifierChords) != len(RequiredModifierKeys) {
		t.Errorf("extra chord keys must be dropped, got %v", normalized.ModifierChords)
	}
	if _, present := normalized.ModifierChords["16"]; present {
		t.Error("key 16 leaked into the normalized state")
	}
}

// ============================================================
// Legacy Migration
// ============================================================

func TestNormalizeDeviceState_LegacyShowBlackKeysFalse(t *testing.T) {
	doc := map[string]any{
		"showBlackKeys": false,
		"modifierChords": map[string]any{
			"12": "maj9", "13": "min9", "14": "maj79", "15": "min79",
		},
	}

	normalized, err := NormalizeDeviceState(doc)
	if err != nil {
		t.Fatalf("legacy document must migrate: %v", err)
	}

	if normalized.NotePreset.Mode != ModePiano {
		t.Errorf("migrated mode must be piano, got %q", normalized.NotePreset.Mode)
	}
	if normalized.NotePreset.Piano.BlackKeyColor != normalized.NotePreset.Piano.WhiteKeyColor {
		t.Errorf("showBlackKeys=false must unify key colors, got white=%q black=%q",
			normalized.NotePreset.Piano.WhiteKeyColor, normalized.NotePreset.Piano.BlackKeyColor)
	}
	if normalized.ModifierChords["12"] != "maj9" {
		t.Errorf("migration must carry chords over, got %v", normalized.ModifierChords)
	}
}

func TestNormalizeDeviceState_LegacyShowBlackKeysTrue(t *testing.T) {
	doc := map[string]any{"showBlackKeys": true}

	normalized, err := NormalizeDeviceState(doc)
	if err != nil {
		t.Fatalf("legacy document must migrate: %v", err)
	}

	defaults := DefaultDeviceState()
	if normalized.NotePreset.Piano != defaults.NotePreset.Piano {
		t.Errorf("showBlackKeys=true must keep default piano colors, got %+v",
			normalized.NotePreset.Piano)
	}
	for _, key := range RequiredModifierKeys {
		if normalized.ModifierChords[key] != defaults.ModifierChords[key] {
			t.Errorf("missing legacy chords must fall back to defaults, got %v",
				normalized.ModifierChords)
		}
	}
}

func TestNormalizeDeviceState_LegacyInvalidChordsRejected(t *testing.T) {
	doc := map[string]any{
		"showBlackKeys": false,
		"modifierChords": map[string]any{
			"12": "dim", "13": "maj7", "14": "min", "15": "maj",
		},
	}

	if _, err := NormalizeDeviceState(doc); err == nil {
		t.Fatal("legacy document with an unsupported chord must be rejected")
	}
}

func TestIsLegacyDocument(t *testing.T) {
	if !isLegacyDocument(map[string]any{"showBlackKeys": true}) {
		t.Error("showBlackKeys without notePreset is legacy")
	}
	if isLegacyDocument(map[string]any{"showBlackKeys": true, "notePreset": map[string]any{}}) {
		t.Error("a notePreset key disqualifies the legacy schema")
	}
	if isLegacyDocument(map[string]any{"showBlackKeys": "yes"}) {
		t.Error("showBlackKeys must be a boolean to count as legacy")
	}
}

// ============================================================
// Clone
// ============================================================

func TestDeviceStateClone_Independent(t *testing.T) {
	original := DefaultDeviceState()
	clone := original.Clone()

	clone.ModifierChords["12"] = "maj79"
	clone.NotePreset.Gradient.Speed = 2.5

	if original.ModifierChords["12"] == "maj79" {
		t.Error("clone shares the chord map with the original")
	}
	if original.NotePreset.Gradient.Speed == 2.5 {
		t.Error("clone shares preset values with the original")
	}
}
