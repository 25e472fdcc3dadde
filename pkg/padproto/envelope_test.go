// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 thx4cmn

package padproto

import (
	"testing"
)

func parseForTest(t *testing.T, text string) any {
	t.Helper()
	value, err := parseJSONValue(text)
	if err != nil {
		t.Fatalf("test input failed to parse: %v", err)
	}
	return value
}

// ============================================================
// Envelope Validation
// ============================================================

func TestValidateEnvelope_Valid(t *testing.T) {
	value := parseForTest(t, `{"v":1,"type":"ping","id":"m1","ts":5,"payload":{}}`)
	if code, message, ok := validateEnvelope(value); !ok {
		t.Fatalf("valid envelope rejected: %s %s", code, message)
	}
}

func TestValidateEnvelope_NotAnObject(t *testing.T) {
	for _, text := range []string{`[1,2,3]`, `"ping"`, `42`, `null`} {
		code, message, ok := validateEnvelope(parseForTest(t, text))
		if ok {
			t.Errorf("%s: expected rejection", text)
			continue
		}
		if code != ErrMalformedFrame || message != "Envelope must be an object." {
			t.Errorf("%s: unexpected rejection %s %q", text, code, message)
		}
	}
}

func TestValidateEnvelope_MissingFields(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		message string
	}{
		{
			name:    "missing v",
			text:    `{"type":"ping","id":"m1","ts":5,"payload":{}}`,
			message: "Missing required envelope field: v",
		},
		{
			name:    "missing type",
			text:    `{"v":1,"id":"m1","ts":5,"payload":{}}`,
			message: "Missing required envelope field: type",
		},
		{
			name:    "missing id",
			text:    `{"v":1,"type":"ping","ts":5,"payload":{}}`,
			message: "Missing required envelope field: id",
		},
		{
			name:    "missing ts",
			text:    `{"v":1,"type":"ping","id":"m1","payload":{}}`,
			message: "Missing required envelope field: ts",
		},
		{
			name:    "missing payload",
			text:    `{"v":1,"type":"ping","id":"m1","ts":5}`,
			message: "Missing required envelope field: payload",
		},
		{
			// Field order is fixed; with several fields missing the
			// first in order wins.
			name:    "missing several reports v first",
			text:    `{"id":"m1"}`,
			message: "Missing required envelope field: v",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, message, ok := validateEnvelope(parseForTest(t, tt.text))
			if ok {
				t.Fatal("expected rejection")
			}
			if code != ErrMalformedFrame {
				t.Errorf("expected malformed_frame, got %s", code)
			}
			if message != tt.message {
				t.Errorf("expected %q, got %q", tt.message, message)
			}
		})
	}
}

func TestValidateEnvelope_FieldTypes(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		message string
	}{
		{
			name:    "v as string",
			text:    `{"v":"1","type":"ping","id":"m1","ts":5,"payload":{}}`,
			message: "Invalid envelope field type for: v",
		},
		{
			name:    "v as float",
			text:    `{"v":1.5,"type":"ping","id":"m1","ts":5,"payload":{}}`,
			message: "Invalid envelope field type for: v",
		},
		{
			name:    "type as number",
			text:    `{"v":1,"type":7,"id":"m1","ts":5,"payload":{}}`,
			message: "Invalid envelope field type for: type",
		},
		{
			name:    "id as number",
			text:    `{"v":1,"type":"ping","id":7,"ts":5,"payload":{}}`,
			message: "Invalid envelope field type for: id",
		},
		{
			name:    "ts as string",
			text:    `{"v":1,"type":"ping","id":"m1","ts":"5","payload":{}}`,
			message: "Invalid envelope field type for: ts",
		},
		{
			name:    "payload as array",
			text:    `{"v":1,"type":"ping","id":"m1","ts":5,"payload":[]}`,
			message: "Envelope payload must be an object.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, message, ok := validateEnvelope(parseForTest(t, tt.text))
			if ok {
				t.Fatal("expected rejection")
			}
			if code != ErrMalformedFrame {
				t.Errorf("expected malformed_frame, got %s", code)
			}
			if message != tt.message {
				t.Errorf("expected %q, got %q", tt.message, message)
			}
		})
	}
}

func TestValidateEnvelope_FloatTsAccepted(t *testing.T) {
	value := parseForTest(t, `{"v":1,"type":"ping","id":"m1","ts":5.5,"payload":{}}`)
	if code, message, ok := validateEnvelope(value); !ok {
		t.Fatalf("float ts should be accepted: %s %s", code, message)
	}
}

func TestValidateEnvelope_VersionBeforeEmptyChecks(t *testing.T) {
	// Wrong version with an empty id: the version check runs first.
	value := parseForTest(t, `{"v":3,"type":"ping","id":"","ts":5,"payload":{}}`)
	code, _, ok := validateEnvelope(value)
	if ok || code != ErrUnsupportedVersion {
		t.Fatalf("expected unsupported_version, got %s ok=%v", code, ok)
	}
}

func TestValidateEnvelope_EmptyIDAndType(t *testing.T) {
	code, message, ok := validateEnvelope(parseForTest(t,
		`{"v":1,"type":"ping","id":"","ts":5,"payload":{}}`))
	if ok || code != ErrMalformedFrame || message != "Envelope id must be a non-empty string." {
		t.Errorf("empty id: got %s %q ok=%v", code, message, ok)
	}

	code, message, ok = validateEnvelope(parseForTest(t,
		`{"v":1,"type":"","id":"m1","ts":5,"payload":{}}`))
	if ok || code != ErrMalformedFrame || message != "Envelope type must be a non-empty string." {
		t.Errorf("empty type: got %s %q ok=%v", code, message, ok)
	}
}

// ============================================================
// Message ID Extraction
// ============================================================

func TestExtractMessageID(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{"valid id", `{"id":"m42"}`, "m42"},
		{"missing id", `{"type":"ping"}`, UnmatchedID},
		{"id not a string", `{"id":7}`, UnmatchedID},
		{"id empty", `{"id":""}`, UnmatchedID},
		{"not an object", `[1,2]`, UnmatchedID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractMessageID(parseForTest(t, tt.text)); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}
