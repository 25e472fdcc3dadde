// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 thx4cmn

package padproto

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Payload extraction helpers for the two-phase parse: the envelope payload
// arrives as a generic JSON object and is converted field by field into the
// strict per-message shapes below. Unknown fields are ignored; missing or
// mis-typed fields fail the message.

func payloadString(payload map[string]any, key string) (string, bool) {
	value, ok := payload[key].(string)
	return value, ok && value != ""
}

func payloadInt(payload map[string]any, key string) (int64, bool) {
	num, ok := payload[key].(json.Number)
	if !ok {
		return 0, false
	}
	value, err := num.Int64()
	return value, err == nil
}

// firmwarePathOK enforces the destination path rule shared by every
// firmware_* message: absolute, and no parent traversal.
func firmwarePathOK(path string) bool {
	return strings.HasPrefix(path, "/") && !strings.Contains(path, "..")
}

// sha256HexOK accepts exactly 64 lowercase hex characters.
func sha256HexOK(digest string) bool {
	if len(digest) != 64 {
		return false
	}
	for _, c := range digest {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}

type helloPayload struct {
	Client           string
	RequestedVersion int64
}

// parseHelloPayload validates the hello payload. The error code
// distinguishes shape failures (malformed_frame) from a well-formed but
// unsupported requested version (unsupported_version).
func parseHelloPayload(payload map[string]any) (helloPayload, string, string) {
	client, ok := payloadString(payload, "client")
	if !ok {
		return helloPayload{}, ErrMalformedFrame, "hello payload.client must be a non-empty string."
	}

	requested, ok := payloadInt(payload, "requestedProtocolVersion")
	if !ok {
		return helloPayload{}, ErrMalformedFrame, "hello payload.requestedProtocolVersion must be a number."
	}

	if requested != ProtocolVersion {
		return helloPayload{}, ErrUnsupportedVersion, "Requested protocol version is unsupported."
	}

	return helloPayload{Client: client, RequestedVersion: requested}, "", ""
}

type applyConfigPayload struct {
	ConfigID       string
	IdempotencyKey string
	Config         *DeviceState
}

func parseApplyConfigPayload(payload map[string]any) (applyConfigPayload, string) {
	configID, ok := payloadString(payload, "configId")
	if !ok {
		return applyConfigPayload{}, "apply_config payload.configId must be a string."
	}

	idempotencyKey, ok := payloadString(payload, "idempotencyKey")
	if !ok {
		return applyConfigPayload{}, "apply_config payload.idempotencyKey must be a string."
	}

	normalized, err := NormalizeDeviceState(payload["config"])
	if err != nil {
		return applyConfigPayload{}, "apply_config payload.config is invalid."
	}

	return applyConfigPayload{
		ConfigID:       configID,
		IdempotencyKey: idempotencyKey,
		Config:         normalized,
	}, ""
}

type firmwareBeginPayload struct {
	SessionID     string
	TargetVersion string
	Files         []FirmwareFile
}

func parseFirmwareBeginPayload(payload map[string]any) (firmwareBeginPayload, string) {
	sessionID, ok := payloadString(payload, "sessionId")
	if !ok {
		return firmwareBeginPayload{}, "firmware_begin payload.sessionId must be a non-empty string."
	}

	targetVersion, ok := payloadString(payload, "targetVersion")
	if !ok {
		return firmwareBeginPayload{}, "firmware_begin payload.targetVersion must be a non-empty string."
	}

	rawFiles, ok := payload["files"].([]any)
	if !ok || len(rawFiles) == 0 {
		return firmwareBeginPayload{}, "firmware_begin payload.files must be a non-empty array."
	}

	files := make([]FirmwareFile, 0, len(rawFiles))
	for i, raw := range rawFiles {
		entry, ok := raw.(map[string]any)
		if !ok {
			return firmwareBeginPayload{}, fmt.Sprintf("firmware_begin payload.files[%d] must be an object.", i)
		}

		path, ok := entry["path"].(string)
		if !ok || !firmwarePathOK(path) {
			return firmwareBeginPayload{}, fmt.Sprintf("firmware_begin payload.files[%d].path is invalid.", i)
		}

		size, ok := payloadInt(entry, "size")
		if !ok || size < 0 {
			return firmwareBeginPayload{}, fmt.Sprintf("firmware_begin payload.files[%d].size must be a non-negative integer.", i)
		}

		digest, ok := entry["sha256"].(string)
		if !ok || !sha256HexOK(digest) {
			return firmwareBeginPayload{}, fmt.Sprintf("firmware_begin payload.files[%d].sha256 must be 64 lowercase hex characters.", i)
		}

		files = append(files, FirmwareFile{Path: path, Size: size, SHA256: digest})
	}

	return firmwareBeginPayload{
		SessionID:     sessionID,
		TargetVersion: targetVersion,
		Files:         files,
	}, ""
}

type firmwareChunkPayload struct {
	SessionID  string
	Path       string
	ChunkIndex int64
	DataBase64 string
}

func parseFirmwareChunkPayload(payload map[string]any) (firmwareChunkPayload, string) {
	sessionID, ok := payloadString(payload, "sessionId")
	if !ok {
		return firmwareChunkPayload{}, "firmware_chunk payload.sessionId must be a non-empty string."
	}

	path, ok := payload["path"].(string)
	if !ok || !firmwarePathOK(path) {
		return firmwareChunkPayload{}, "firmware_chunk payload.path is invalid."
	}

	chunkIndex, ok := payloadInt(payload, "chunkIndex")
	if !ok || chunkIndex < 0 {
		return firmwareChunkPayload{}, "firmware_chunk payload.chunkIndex must be a non-negative integer."
	}

	dataBase64, ok := payloadString(payload, "dataBase64")
	if !ok {
		return firmwareChunkPayload{}, "firmware_chunk payload.dataBase64 must be a non-empty string."
	}

	return firmwareChunkPayload{
		SessionID:  sessionID,
		Path:       path,
		ChunkIndex: chunkIndex,
		DataBase64: dataBase64,
	}, ""
}

type firmwareFileCompletePayload struct {
	SessionID string
	Path      string
	Size      int64
	SHA256    string
}

func parseFirmwareFileCompletePayload(payload map[string]any) (firmwareFileCompletePayload, string) {
	sessionID, ok := payloadString(payload, "sessionId")
	if !ok {
		return firmwareFileCompletePayload{}, "firmware_file_complete payload.sessionId must be a non-empty string."
	}

	path, ok := payload["path"].(string)
	if !ok || !firmwarePathOK(path) {
		return firmwareFileCompletePayload{}, "firmware_file_complete payload.path is invalid."
	}

	size, ok := payloadInt(payload, "size")
	if !ok || size < 0 {
		return firmwareFileCompletePayload{}, "firmware_file_complete payload.size must be a non-negative integer."
	}

	digest, ok := payload["sha256"].(string)
	if !ok || !sha256HexOK(digest) {
		return firmwareFileCompletePayload{}, "firmware_file_complete payload.sha256 must be 64 lowercase hex characters."
	}

	return firmwareFileCompletePayload{
		SessionID: sessionID,
		Path:      path,
		Size:      size,
		SHA256:    digest,
	}, ""
}

type firmwareCommitPayload struct {
	SessionID     string
	TargetVersion string
}

func parseFirmwareCommitPayload(payload map[string]any) (firmwareCommitPayload, string) {
	sessionID, ok := payloadString(payload, "sessionId")
	if !ok {
		return firmwareCommitPayload{}, "firmware_commit payload.sessionId must be a non-empty string."
	}

	targetVersion, ok := payloadString(payload, "targetVersion")
	if !ok {
		return firmwareCommitPayload{}, "firmware_commit payload.targetVersion must be a non-empty string."
	}

	return firmwareCommitPayload{SessionID: sessionID, TargetVersion: targetVersion}, ""
}

type firmwareAbortPayload struct {
	SessionID string
	Reason    string
}

func parseFirmwareAbortPayload(payload map[string]any) (firmwareAbortPayload, string) {
	sessionID, ok := payloadString(payload, "sessionId")
	if !ok {
		return firmwareAbortPayload{}, "firmware_abort payload.sessionId must be a non-empty string."
	}

	reason := ""
	if raw, present := payload["reason"]; present {
		value, isStr := raw.(string)
		if !isStr {
			return firmwareAbortPayload{}, "firmware_abort payload.reason must be a string."
		}
		reason = value
	}

	return firmwareAbortPayload{SessionID: sessionID, Reason: reason}, ""
}
