// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 thx4cmn

package padproto

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Envelope is the fixed outer structure wrapping every protocol message,
// request and response alike.
type Envelope struct {
	V       int            `json:"v"`
	Type    string         `json:"type"`
	ID      string         `json:"id"`
	Ts      int64          `json:"ts"`
	Payload map[string]any `json:"payload"`
}

// NewEnvelope creates an envelope for the supported protocol version.
// A nil payload is replaced with an empty object so the wire form always
// carries a payload field.
func NewEnvelope(msgType, id string, payload map[string]any, ts int64) Envelope {
	if payload == nil {
		payload = map[string]any{}
	}
	return Envelope{
		V:       ProtocolVersion,
		Type:    msgType,
		ID:      id,
		Ts:      ts,
		Payload: payload,
	}
}

func errorResponse(id, code, message string, details map[string]any, ts int64) Envelope {
	payload := map[string]any{"code": code, "message": message}
	if details != nil {
		payload["details"] = details
	}
	return NewEnvelope(MsgError, id, payload, ts)
}

func ackResponse(id, requestType string, ts int64, extra map[string]any) Envelope {
	payload := map[string]any{"requestType": requestType, "status": "ok"}
	for key, value := range extra {
		payload[key] = value
	}
	return NewEnvelope(MsgAck, id, payload, ts)
}

func nackResponse(id, requestType, code, reason string, retryable bool, ts int64) Envelope {
	payload := map[string]any{
		"requestType": requestType,
		"code":        code,
		"reason":      reason,
		"retryable":   retryable,
	}
	return NewEnvelope(MsgNack, id, payload, ts)
}

// Request is a validated inbound envelope. Payload values produced by the
// two-phase parse are generic JSON values with numbers as json.Number.
type Request struct {
	Type    string
	ID      string
	Ts      json.Number
	Payload map[string]any
}

// parseJSONValue decodes one JSON value from a frame line. Numbers are kept
// as json.Number so integer fields can be told apart from floats.
func parseJSONValue(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return value, nil
}

// extractMessageID recovers a correlation id from a parsed frame, valid or
// not. Error responses for an invalid envelope still use the caller's id
// when one can be found; otherwise UnmatchedID.
func extractMessageID(candidate any) string {
	if obj, ok := candidate.(map[string]any); ok {
		if id, ok := obj["id"].(string); ok && id != "" {
			return id
		}
	}
	return UnmatchedID
}

func isJSONInteger(value any) bool {
	num, ok := value.(json.Number)
	if !ok {
		return false
	}
	_, err := num.Int64()
	return err == nil
}

func isJSONNumber(value any) bool {
	_, ok := value.(json.Number)
	return ok
}

// validateEnvelope checks a parsed JSON value against the envelope schema.
// Field presence and type failures are reported first (in the fixed field
// order v, type, id, ts, payload), then the version check, then the
// non-empty checks. The first failure wins.
func validateEnvelope(candidate any) (code, message string, ok bool) {
	obj, isObj := candidate.(map[string]any)
	if !isObj {
		return ErrMalformedFrame, "Envelope must be an object.", false
	}

	for _, field := range []string{"v", "type", "id", "ts", "payload"} {
		value, present := obj[field]
		if !present {
			return ErrMalformedFrame, fmt.Sprintf("Missing required envelope field: %s", field), false
		}

		switch field {
		case "v":
			if !isJSONInteger(value) {
				return ErrMalformedFrame, "Invalid envelope field type for: v", false
			}
		case "type", "id":
			if _, isStr := value.(string); !isStr {
				return ErrMalformedFrame, fmt.Sprintf("Invalid envelope field type for: %s", field), false
			}
		case "ts":
			if !isJSONNumber(value) {
				return ErrMalformedFrame, "Invalid envelope field type for: ts", false
			}
		case "payload":
			if _, isMap := value.(map[string]any); !isMap {
				return ErrMalformedFrame, "Envelope payload must be an object.", false
			}
		}
	}

	version, _ := obj["v"].(json.Number).Int64()
	if version != ProtocolVersion {
		return ErrUnsupportedVersion, "Unsupported protocol version.", false
	}

	if obj["id"].(string) == "" {
		return ErrMalformedFrame, "Envelope id must be a non-empty string.", false
	}

	if obj["type"].(string) == "" {
		return ErrMalformedFrame, "Envelope type must be a non-empty string.", false
	}

	return "", "", true
}

// requestFromObject converts a validated envelope object into a Request.
func requestFromObject(obj map[string]any) Request {
	return Request{
		Type:    obj["type"].(string),
		ID:      obj["id"].(string),
		Ts:      obj["ts"].(json.Number),
		Payload: obj["payload"].(map[string]any),
	}
}
