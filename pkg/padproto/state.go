// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 thx4cmn

package padproto

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PianoPreset colors the twelve note keys in a piano layout.
type PianoPreset struct {
	WhiteKeyColor string `json:"whiteKeyColor"`
	BlackKeyColor string `json:"blackKeyColor"`
}

// MotionPreset is a two-color animated preset (gradient and rain modes).
type MotionPreset struct {
	ColorA string  `json:"colorA"`
	ColorB string  `json:"colorB"`
	Speed  float64 `json:"speed"`
}

// NotePreset selects and parameterizes the note-key coloring.
type NotePreset struct {
	Mode     string       `json:"mode"`
	Piano    PianoPreset  `json:"piano"`
	Gradient MotionPreset `json:"gradient"`
	Rain     MotionPreset `json:"rain"`
}

// DeviceState is the persisted configuration document exchanged via
// get_state and apply_config.
type DeviceState struct {
	NotePreset     NotePreset        `json:"notePreset"`
	ModifierChords map[string]string `json:"modifierChords"`
}

// Clone returns a deep copy. State handed to the protocol layer is always
// snapshotted so responses never alias mutable store state.
func (s DeviceState) Clone() DeviceState {
	chords := make(map[string]string, len(s.ModifierChords))
	for key, chord := range s.ModifierChords {
		chords[key] = chord
	}
	s.ModifierChords = chords
	return s
}

// DefaultDeviceState returns the factory configuration, used at device
// initialization and when a persisted document fails to load.
func DefaultDeviceState() DeviceState {
	return DeviceState{
		NotePreset: NotePreset{
			Mode: ModePiano,
			Piano: PianoPreset{
				WhiteKeyColor: "#969696",
				BlackKeyColor: "#46466e",
			},
			Gradient: MotionPreset{
				ColorA: "#ff4b5a",
				ColorB: "#559bff",
				Speed:  1.0,
			},
			Rain: MotionPreset{
				ColorA: "#56d18d",
				ColorB: "#559bff",
				Speed:  1.0,
			},
		},
		ModifierChords: map[string]string{
			"12": "min7",
			"13": "maj7",
			"14": "min",
			"15": "maj",
		},
	}
}

// asDocument reduces a state candidate to a generic JSON object. Typed
// DeviceState values round-trip through encoding/json so validation has a
// single representation to work against.
func asDocument(candidate any) (map[string]any, bool) {
	switch v := candidate.(type) {
	case map[string]any:
		return v, true
	case DeviceState:
		return marshalToDocument(v)
	case *DeviceState:
		if v == nil {
			return nil, false
		}
		return marshalToDocument(*v)
	default:
		return nil, false
	}
}

func marshalToDocument(state DeviceState) (map[string]any, bool) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, false
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false
	}
	return doc, true
}

func numberValue(value any) (float64, bool) {
	switch v := value.(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func isHexColor(value any) bool {
	s, ok := value.(string)
	if !ok || len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, c := range s[1:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

func normalizeHexColor(value any, fallback string) string {
	if !isHexColor(value) {
		return fallback
	}
	return strings.ToLower(value.(string))
}

func isValidSpeed(value any) bool {
	speed, ok := numberValue(value)
	return ok && speed >= MinPresetSpeed && speed <= MaxPresetSpeed
}

func normalizeSpeed(value any, fallback float64) float64 {
	speed, ok := numberValue(value)
	if !ok {
		return fallback
	}
	if speed < MinPresetSpeed {
		return MinPresetSpeed
	}
	if speed > MaxPresetSpeed {
		return MaxPresetSpeed
	}
	return speed
}

// isLegacyDocument reports whether a document uses the pre-notePreset
// schema: a boolean showBlackKeys and no notePreset key.
func isLegacyDocument(doc map[string]any) bool {
	if _, hasPreset := doc["notePreset"]; hasPreset {
		return false
	}
	_, isBool := doc["showBlackKeys"].(bool)
	return isBool
}

func validateModifierChords(value any) error {
	chords, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("state.modifierChords must be an object.")
	}
	for _, key := range RequiredModifierKeys {
		name, isStr := chords[key].(string)
		if !isStr {
			return fmt.Errorf("state.modifierChords.%s must be a string.", key)
		}
		if !isAllowedChordType(name) {
			return fmt.Errorf("state.modifierChords.%s is unsupported.", key)
		}
	}
	return nil
}

func validateMotionPreset(value any, name string) error {
	preset, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("state.notePreset.%s must be an object.", name)
	}
	if !isHexColor(preset["colorA"]) {
		return fmt.Errorf("state.notePreset.%s.colorA must be #RRGGBB.", name)
	}
	if !isHexColor(preset["colorB"]) {
		return fmt.Errorf("state.notePreset.%s.colorB must be #RRGGBB.", name)
	}
	if !isValidSpeed(preset["speed"]) {
		return fmt.Errorf("state.notePreset.%s.speed must be between %.1f and %.1f.",
			name, MinPresetSpeed, MaxPresetSpeed)
	}
	return nil
}

func validateNotePreset(value any) error {
	preset, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("state.notePreset must be an object.")
	}

	mode, _ := preset["mode"].(string)
	if !isAllowedPresetMode(mode) {
		return fmt.Errorf("state.notePreset.mode is unsupported.")
	}

	piano, ok := preset["piano"].(map[string]any)
	if !ok {
		return fmt.Errorf("state.notePreset.piano must be an object.")
	}
	if !isHexColor(piano["whiteKeyColor"]) {
		return fmt.Errorf("state.notePreset.piano.whiteKeyColor must be #RRGGBB.")
	}
	if !isHexColor(piano["blackKeyColor"]) {
		return fmt.Errorf("state.notePreset.piano.blackKeyColor must be #RRGGBB.")
	}

	if err := validateMotionPreset(preset["gradient"], "gradient"); err != nil {
		return err
	}
	return validateMotionPreset(preset["rain"], "rain")
}

// ValidateDeviceState is the strict, non-mutating schema check. Out-of-range
// speed values are rejected here, never clamped; resubmitting the same
// malformed document cannot succeed, so apply_config fails closed.
func ValidateDeviceState(candidate any) error {
	doc, ok := asDocument(candidate)
	if !ok {
		return fmt.Errorf("state must be an object.")
	}

	if isLegacyDocument(doc) {
		if chords, present := doc["modifierChords"]; present {
			return validateModifierChords(chords)
		}
		return nil
	}

	if err := validateNotePreset(doc["notePreset"]); err != nil {
		return err
	}
	return validateModifierChords(doc["modifierChords"])
}

// NormalizeDeviceState validates a candidate document and converts it into
// a canonical DeviceState: colors lowercased, speeds clamped into range,
// the modifier chord map restricted to the four required keys, and legacy
// showBlackKeys documents migrated to a piano-mode notePreset.
func NormalizeDeviceState(candidate any) (*DeviceState, error) {
	if err := ValidateDeviceState(candidate); err != nil {
		return nil, err
	}

	doc, _ := asDocument(candidate)
	defaults := DefaultDeviceState()

	if isLegacyDocument(doc) {
		migrated := DefaultDeviceState()
		if show, _ := doc["showBlackKeys"].(bool); !show {
			migrated.NotePreset.Piano.BlackKeyColor = migrated.NotePreset.Piano.WhiteKeyColor
		}
		if chords, ok := doc["modifierChords"].(map[string]any); ok {
			for _, key := range RequiredModifierKeys {
				if name, isStr := chords[key].(string); isStr && isAllowedChordType(name) {
					migrated.ModifierChords[key] = name
				}
			}
		}
		return &migrated, nil
	}

	preset := doc["notePreset"].(map[string]any)
	piano := preset["piano"].(map[string]any)
	gradient := preset["gradient"].(map[string]any)
	rain := preset["rain"].(map[string]any)
	chords := doc["modifierChords"].(map[string]any)

	normalized := DeviceState{
		NotePreset: NotePreset{
			Mode: preset["mode"].(string),
			Piano: PianoPreset{
				WhiteKeyColor: normalizeHexColor(piano["whiteKeyColor"], defaults.NotePreset.Piano.WhiteKeyColor),
				BlackKeyColor: normalizeHexColor(piano["blackKeyColor"], defaults.NotePreset.Piano.BlackKeyColor),
			},
			Gradient: MotionPreset{
				ColorA: normalizeHexColor(gradient["colorA"], defaults.NotePreset.Gradient.ColorA),
				ColorB: normalizeHexColor(gradient["colorB"], defaults.NotePreset.Gradient.ColorB),
				Speed:  normalizeSpeed(gradient["speed"], defaults.NotePreset.Gradient.Speed),
			},
			Rain: MotionPreset{
				ColorA: normalizeHexColor(rain["colorA"], defaults.NotePreset.Rain.ColorA),
				ColorB: normalizeHexColor(rain["colorB"], defaults.NotePreset.Rain.ColorB),
				Speed:  normalizeSpeed(rain["speed"], defaults.NotePreset.Rain.Speed),
			},
		},
		ModifierChords: make(map[string]string, len(RequiredModifierKeys)),
	}
	for _, key := range RequiredModifierKeys {
		normalized.ModifierChords[key] = chords[key].(string)
	}

	return &normalized, nil
}
