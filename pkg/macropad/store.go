// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 thx4cmn

// Package macropad implements the device-side stores behind the protocol
// engine's capability callbacks: the persisted device-state document, its
// idempotent apply transaction, and the firmware staging state machine.
// Everything here is driven from the single transport polling goroutine.
package macropad

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/thx4cmn/padlink/pkg/padproto"
)

// DefaultStatePath mirrors the path the device firmware persists to.
const DefaultStatePath = "/device_state.json"

// Store owns the persisted device-state document. It loads the document at
// startup (falling back to the default state on any failure), persists it
// on every successful apply, and short-circuits repeated idempotency keys.
type Store struct {
	path string
	log  *logrus.Logger

	state               padproto.DeviceState
	lastIdempotencyKey  string
	lastAppliedConfigID string
	animationQueued     bool
}

// OpenStore loads the device state from path, or initializes the default
// state when the file is missing, unreadable, or invalid.
func OpenStore(path string, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &Store{path: path, log: log}
	s.state = s.load()
	return s
}

func (s *Store) load() padproto.DeviceState {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		s.log.WithError(err).WithField("path", s.path).Info("state file not loaded, using defaults")
		return padproto.DefaultDeviceState()
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.log.WithError(err).Warn("state file is not valid JSON, using defaults")
		return padproto.DefaultDeviceState()
	}

	normalized, err := padproto.NormalizeDeviceState(doc)
	if err != nil {
		s.log.WithError(err).Warn("state file failed validation, using defaults")
		return padproto.DefaultDeviceState()
	}

	return *normalized
}

// Snapshot returns a deep copy of the current state. The protocol layer
// never sees the mutable document.
func (s *Store) Snapshot() padproto.DeviceState {
	return s.state.Clone()
}

func (s *Store) persist(state padproto.DeviceState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o644)
}

// ApplyConfig runs the apply transaction: idempotency-key short-circuit,
// persist, then swap the in-memory document and queue the acceptance
// animation. A repeated key returns the previously applied result without
// re-persisting or re-animating.
func (s *Store) ApplyConfig(config *padproto.DeviceState, configID, idempotencyKey string) padproto.Result {
	if idempotencyKey != "" && idempotencyKey == s.lastIdempotencyKey {
		appliedID := s.lastAppliedConfigID
		if appliedID == "" {
			appliedID = configID
		}
		return padproto.Result{OK: true, State: s.Snapshot(), AppliedConfigID: appliedID}
	}

	if config == nil {
		return padproto.Reject(padproto.ErrInvalidConfig, "Config is invalid.", false)
	}

	if err := s.persist(*config); err != nil {
		return padproto.Reject(padproto.ErrConfigPersistFailed,
			fmt.Sprintf("Unable to persist config: %v", err), true)
	}

	s.state = config.Clone()
	s.lastIdempotencyKey = idempotencyKey
	s.lastAppliedConfigID = configID
	s.animationQueued = true

	s.log.WithFields(logrus.Fields{
		"configId": configID,
		"mode":     s.state.NotePreset.Mode,
	}).Info("config applied")

	return padproto.Result{OK: true, State: s.Snapshot(), AppliedConfigID: configID}
}

// QueueAcceptanceAnimation marks the acceptance animation as pending. The
// device loop renders it between polling cycles; here it exists so the
// handshake and apply paths can signal it.
func (s *Store) QueueAcceptanceAnimation() {
	s.animationQueued = true
}

// ConsumeAnimation reports and clears the pending-animation flag.
func (s *Store) ConsumeAnimation() bool {
	queued := s.animationQueued
	s.animationQueued = false
	return queued
}
