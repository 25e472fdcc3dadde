// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 thx4cmn

// Package padproto implements protocol v1 of the thx-c macropad
// configuration link.
//
// The protocol is a line-delimited, versioned request/response protocol
// carried over a byte-stream transport (USB CDC serial on the device).
// Each frame is one compact JSON envelope terminated by a newline. This
// package provides frame extraction from an unbounded byte stream,
// envelope validation, message dispatch against a set of capability
// callbacks, and the device-state document model with its validation,
// normalization and legacy-schema migration rules.
package padproto

// Protocol identity
const (
	ProtocolVersion = 1
	MaxFrameSize    = 1024
	UnmatchedID     = "unmatched"
)

// Request message types
const (
	MsgHello                = "hello"
	MsgGetState             = "get_state"
	MsgApplyConfig          = "apply_config"
	MsgPing                 = "ping"
	MsgFirmwareBegin        = "firmware_begin"
	MsgFirmwareChunk        = "firmware_chunk"
	MsgFirmwareFileComplete = "firmware_file_complete"
	MsgFirmwareCommit       = "firmware_commit"
	MsgFirmwareAbort        = "firmware_abort"
)

// Response message types
const (
	MsgHelloAck = "hello_ack"
	MsgAck      = "ack"
	MsgNack     = "nack"
	MsgError    = "error"
)

// Error and nack codes
const (
	ErrMalformedFrame         = "malformed_frame"
	ErrUnsupportedVersion     = "unsupported_version"
	ErrUnsupportedType        = "unsupported_type"
	ErrUnsupportedOperation   = "unsupported_operation"
	ErrInvalidConfig          = "invalid_config"
	ErrInvalidModifierKey     = "invalid_modifier_key"
	ErrInvalidChord           = "invalid_chord"
	ErrInvalidPreset          = "invalid_preset"
	ErrInvalidNoteKey         = "invalid_note_key"
	ErrInvalidFirmwareUpdate  = "invalid_firmware_update"
	ErrFirmwareSessionMissing = "firmware_session_missing"
	ErrFirmwareStorageError   = "firmware_storage_error"
	ErrConfigPersistFailed    = "config_persist_failed"
	ErrInternalError          = "internal_error"
	ErrInternalStateInvalid   = "internal_state_invalid"
)

// Device-state schema limits
const (
	MinPresetSpeed = 0.2
	MaxPresetSpeed = 3.0
)

// Note preset modes
const (
	ModePiano    = "piano"
	ModeGradient = "gradient"
	ModeRain     = "rain"
)

// AllowedChordTypes is the closed set of chord names a modifier key may be
// assigned to.
var AllowedChordTypes = []string{
	"maj", "min", "maj7", "min7", "maj9", "min9", "maj79", "min79",
}

// RequiredModifierKeys are the four modifier-key identifiers every device
// state document must map. No extras, no omissions.
var RequiredModifierKeys = []string{"12", "13", "14", "15"}

// AllowedNotePresetModes lists the supported notePreset modes.
var AllowedNotePresetModes = []string{ModePiano, ModeGradient, ModeRain}

// Capability feature names advertised in hello_ack.
const (
	FeatureHandshake         = "handshake"
	FeatureGetState          = "get_state"
	FeatureApplyConfig       = "apply_config"
	FeaturePing              = "ping"
	FeatureConfigPersistence = "config_persistence"
	FeatureNotePresetsV1     = "note_presets_v1"
	FeatureFirmwareUpdateV1  = "firmware_update_v1"
)

func isAllowedChordType(name string) bool {
	for _, chord := range AllowedChordTypes {
		if chord == name {
			return true
		}
	}
	return false
}

func isAllowedPresetMode(mode string) bool {
	for _, m := range AllowedNotePresetModes {
		if m == mode {
			return true
		}
	}
	return false
}
