// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 thx4cmn

package padproto

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FormatEnvelope formats an envelope as a single human-readable line, used
// by the CLI and the console frame log.
func FormatEnvelope(env Envelope) string {
	ts := time.UnixMilli(env.Ts).Format("15:04:05.000")

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s id=%s", ts, env.Type, env.ID)

	switch env.Type {
	case MsgAck:
		if requestType, ok := env.Payload["requestType"].(string); ok {
			fmt.Fprintf(&b, " requestType=%s status=ok", requestType)
		}
	case MsgNack:
		fmt.Fprintf(&b, " requestType=%v code=%v retryable=%v reason=%q",
			env.Payload["requestType"], env.Payload["code"],
			env.Payload["retryable"], env.Payload["reason"])
	case MsgError:
		fmt.Fprintf(&b, " code=%v message=%q", env.Payload["code"], env.Payload["message"])
		if details, ok := env.Payload["details"].(map[string]any); ok {
			b.WriteString(" details{" + formatDetails(details) + "}")
		}
	case MsgHelloAck:
		if device, ok := env.Payload["device"].(string); ok {
			fmt.Fprintf(&b, " device=%q", device)
		}
		if fw, ok := env.Payload["firmwareVersion"].(string); ok {
			fmt.Fprintf(&b, " firmware=%s", fw)
		}
	}

	return b.String()
}

func formatDetails(details map[string]any) string {
	keys := make([]string, 0, len(details))
	for key := range details {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", key, details[key]))
	}
	return strings.Join(parts, " ")
}

// FormatDeviceState renders a device state document for terminal display.
func FormatDeviceState(state DeviceState) string {
	var b strings.Builder

	fmt.Fprintf(&b, "notePreset.mode: %s\n", state.NotePreset.Mode)
	fmt.Fprintf(&b, "  piano:    white=%s black=%s\n",
		state.NotePreset.Piano.WhiteKeyColor, state.NotePreset.Piano.BlackKeyColor)
	fmt.Fprintf(&b, "  gradient: a=%s b=%s speed=%.2f\n",
		state.NotePreset.Gradient.ColorA, state.NotePreset.Gradient.ColorB, state.NotePreset.Gradient.Speed)
	fmt.Fprintf(&b, "  rain:     a=%s b=%s speed=%.2f\n",
		state.NotePreset.Rain.ColorA, state.NotePreset.Rain.ColorB, state.NotePreset.Rain.Speed)

	b.WriteString("modifierChords:\n")
	for _, key := range RequiredModifierKeys {
		fmt.Fprintf(&b, "  key %s: %s\n", key, state.ModifierChords[key])
	}

	return b.String()
}
