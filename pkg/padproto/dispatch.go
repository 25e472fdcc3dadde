// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 thx4cmn

package padproto

import (
	"fmt"
)

// processLine parses and validates one extracted frame line and dispatches
// it. Every line produces exactly one response envelope.
func processLine(text string, ctx Context, ts int64) Envelope {
	value, err := parseJSONValue(text)
	if err != nil {
		return errorResponse(UnmatchedID, ErrMalformedFrame, "Frame is not valid JSON.", nil, ts)
	}

	// The extracted id serves every error response for this line, even
	// when the rest of the envelope is invalid.
	messageID := extractMessageID(value)

	code, message, ok := validateEnvelope(value)
	if !ok {
		return errorResponse(messageID, code, message, nil, ts)
	}

	return dispatchMessage(requestFromObject(value.(map[string]any)), ctx, ts)
}

// dispatchMessage routes a validated envelope to its handler. A capability
// callback that panics is caught here, at the single recovery boundary, and
// downgraded to an internal_error response so one bad dispatch never takes
// down the frame loop.
func dispatchMessage(req Request, ctx Context, ts int64) (resp Envelope) {
	defer func() {
		if fault := recover(); fault != nil {
			resp = errorResponse(req.ID, ErrInternalError,
				"Unhandled fault while dispatching message.",
				map[string]any{"type": req.Type, "error": fmt.Sprint(fault)}, ts)
		}
	}()

	switch req.Type {
	case MsgHello:
		return handleHello(req, ctx, ts)
	case MsgGetState:
		return handleGetState(req, ctx, ts)
	case MsgApplyConfig:
		return handleApplyConfig(req, ctx, ts)
	case MsgPing:
		return ackResponse(req.ID, MsgPing, ts, map[string]any{"pongTs": req.Ts})
	case MsgFirmwareBegin:
		return handleFirmwareBegin(req, ctx, ts)
	case MsgFirmwareChunk:
		return handleFirmwareChunk(req, ctx, ts)
	case MsgFirmwareFileComplete:
		return handleFirmwareFileComplete(req, ctx, ts)
	case MsgFirmwareCommit:
		return handleFirmwareCommit(req, ctx, ts)
	case MsgFirmwareAbort:
		return handleFirmwareAbort(req, ctx, ts)
	default:
		return errorResponse(req.ID, ErrUnsupportedType, "Unsupported message type.",
			map[string]any{"type": req.Type}, ts)
	}
}

func handleHello(req Request, ctx Context, ts int64) Envelope {
	_, code, message := parseHelloPayload(req.Payload)
	if code != "" {
		return errorResponse(req.ID, code, message, map[string]any{"type": req.Type}, ts)
	}

	normalized, err := NormalizeDeviceState(ctx.GetState())
	if err != nil {
		return errorResponse(req.ID, ErrInternalError, "Device state is invalid.",
			map[string]any{"reason": err.Error()}, ts)
	}

	emitHandshake(ctx)

	payload := map[string]any{}
	for key, value := range ctx.Capabilities() {
		payload[key] = value
	}
	payload["state"] = *normalized

	return NewEnvelope(MsgHelloAck, req.ID, payload, ts)
}

// emitHandshake notifies the device layer best-effort. The callback drives
// peripherals the protocol has no stake in, so faults are swallowed.
func emitHandshake(ctx Context) {
	defer func() { _ = recover() }()
	ctx.OnHandshake()
}

func handleGetState(req Request, ctx Context, ts int64) Envelope {
	normalized, err := NormalizeDeviceState(ctx.GetState())
	if err != nil {
		return nackResponse(req.ID, MsgGetState, ErrInternalStateInvalid,
			"Device state is invalid.", false, ts)
	}

	return ackResponse(req.ID, MsgGetState, ts, map[string]any{"state": *normalized})
}

func handleApplyConfig(req Request, ctx Context, ts int64) Envelope {
	parsed, reason := parseApplyConfigPayload(req.Payload)
	if reason != "" {
		return nackResponse(req.ID, MsgApplyConfig, ErrInvalidConfig, reason, false, ts)
	}

	result := ctx.ApplyConfig(parsed.Config, parsed.ConfigID, parsed.IdempotencyKey)
	if !result.OK {
		return nackResponse(req.ID, MsgApplyConfig, result.failureCode(),
			result.failureReason("Unable to apply config."), result.Retryable, ts)
	}

	normalized, err := NormalizeDeviceState(result.State)
	if err != nil {
		return nackResponse(req.ID, MsgApplyConfig, ErrInternalStateInvalid,
			"apply_config returned an invalid state.", false, ts)
	}

	appliedID := result.AppliedConfigID
	if appliedID == "" {
		appliedID = parsed.ConfigID
	}

	return ackResponse(req.ID, MsgApplyConfig, ts, map[string]any{
		"state":           *normalized,
		"appliedConfigId": appliedID,
	})
}

// firmwareResult maps a firmware handler result to an ack or nack. A
// rejection without a code is a contract violation and degrades to a
// non-retryable internal_error.
func firmwareResult(req Request, result Result, ts int64, extra map[string]any) Envelope {
	if !result.OK {
		return nackResponse(req.ID, req.Type, result.failureCode(),
			result.failureReason("Firmware update request rejected."), result.Retryable, ts)
	}

	payload := map[string]any{}
	for key, value := range result.Payload {
		payload[key] = value
	}
	for key, value := range extra {
		payload[key] = value
	}
	return ackResponse(req.ID, req.Type, ts, payload)
}

func handleFirmwareBegin(req Request, ctx Context, ts int64) Envelope {
	parsed, reason := parseFirmwareBeginPayload(req.Payload)
	if reason != "" {
		return nackResponse(req.ID, req.Type, ErrInvalidFirmwareUpdate, reason, false, ts)
	}

	result := ctx.FirmwareBegin(parsed.SessionID, parsed.TargetVersion, parsed.Files)
	return firmwareResult(req, result, ts, nil)
}

func handleFirmwareChunk(req Request, ctx Context, ts int64) Envelope {
	parsed, reason := parseFirmwareChunkPayload(req.Payload)
	if reason != "" {
		return nackResponse(req.ID, req.Type, ErrInvalidFirmwareUpdate, reason, false, ts)
	}

	result := ctx.FirmwareChunk(parsed.SessionID, parsed.Path, int(parsed.ChunkIndex), parsed.DataBase64)
	return firmwareResult(req, result, ts, nil)
}

func handleFirmwareFileComplete(req Request, ctx Context, ts int64) Envelope {
	parsed, reason := parseFirmwareFileCompletePayload(req.Payload)
	if reason != "" {
		return nackResponse(req.ID, req.Type, ErrInvalidFirmwareUpdate, reason, false, ts)
	}

	result := ctx.FirmwareFileComplete(parsed.SessionID, parsed.Path, parsed.Size, parsed.SHA256)
	return firmwareResult(req, result, ts, nil)
}

func handleFirmwareCommit(req Request, ctx Context, ts int64) Envelope {
	parsed, reason := parseFirmwareCommitPayload(req.Payload)
	if reason != "" {
		return nackResponse(req.ID, req.Type, ErrInvalidFirmwareUpdate, reason, false, ts)
	}

	result := ctx.FirmwareCommit(parsed.SessionID, parsed.TargetVersion)
	return firmwareResult(req, result, ts, nil)
}

func handleFirmwareAbort(req Request, ctx Context, ts int64) Envelope {
	parsed, reason := parseFirmwareAbortPayload(req.Payload)
	if reason != "" {
		return nackResponse(req.ID, req.Type, ErrInvalidFirmwareUpdate, reason, false, ts)
	}

	result := ctx.FirmwareAbort(parsed.SessionID, parsed.Reason)
	return firmwareResult(req, result, ts, map[string]any{
		"aborted": true,
		"reason":  parsed.Reason,
	})
}
