// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 thx4cmn

package padproto

// FirmwareFile declares one file of a firmware update session: its real
// destination path on the device and the expected size and digest of the
// bytes that will be staged for it.
type FirmwareFile struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// Result is the outcome of a capability callback. On failure the Code,
// Reason and Retryable fields drive the nack sent to the client; an empty
// Code degrades to internal_error since a rejection without a code is a
// contract violation by the external layer.
type Result struct {
	OK        bool
	Code      string
	Reason    string
	Retryable bool

	// State carries the post-apply device state for ApplyConfig.
	State any
	// AppliedConfigID reports which config was applied; empty means the
	// requested one.
	AppliedConfigID string
	// Payload carries handler-supplied extra ack fields (firmware_*).
	Payload map[string]any
}

// ResultOK returns a successful Result.
func ResultOK() Result {
	return Result{OK: true}
}

// Reject returns a failed Result with the given nack fields.
func Reject(code, reason string, retryable bool) Result {
	return Result{Code: code, Reason: reason, Retryable: retryable}
}

func (r Result) failureCode() string {
	if r.Code != "" {
		return r.Code
	}
	return ErrInternalError
}

func (r Result) failureReason(fallback string) string {
	if r.Reason != "" {
		return r.Reason
	}
	return fallback
}

// Context is the set of capability callbacks the protocol engine consumes
// from the external device layer. The engine holds no state of its own
// beyond the frame buffer; device state, persistence and firmware staging
// live behind this interface. Implementations are invoked from a single
// goroutine (the transport polling loop) and need no internal locking.
type Context interface {
	// Capabilities returns the static capability document merged into the
	// hello_ack payload (device name, protocolVersion, features,
	// firmwareVersion).
	Capabilities() map[string]any

	// GetState returns the current device state. The engine normalizes the
	// returned value before exposing it; an unnormalizable value is
	// reported as an internal state error, never forwarded.
	GetState() any

	// ApplyConfig applies an already-normalized configuration document.
	// Implementations own persistence and idempotency-key short-circuiting.
	ApplyConfig(config *DeviceState, configID, idempotencyKey string) Result

	// OnHandshake is a fire-and-forget notification after a successful
	// hello. Faults are swallowed by the engine.
	OnHandshake()

	FirmwareBegin(sessionID, targetVersion string, files []FirmwareFile) Result
	FirmwareChunk(sessionID, path string, chunkIndex int, dataBase64 string) Result
	FirmwareFileComplete(sessionID, path string, size int64, sha256 string) Result
	FirmwareCommit(sessionID, targetVersion string) Result
	FirmwareAbort(sessionID, reason string) Result
}
