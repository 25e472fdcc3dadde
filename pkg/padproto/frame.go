// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 thx4cmn

package padproto

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"
)

// EncodeFrame serializes a response envelope to wire format: compact JSON
// followed by a single newline.
func EncodeFrame(env Envelope) []byte {
	data, err := json.Marshal(env)
	if err != nil {
		// Envelope payloads are built from JSON-safe values only; an
		// encode failure is a programming error.
		panic("padproto: encode error: " + err.Error())
	}
	return append(data, '\n')
}

// DecodeFrame parses one received frame line into an Envelope. Host-side
// helper; the device side goes through Engine.ProcessChunk.
func DecodeFrame(line []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(bytes.TrimSpace(line), &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Engine accumulates transport bytes, extracts newline-terminated frames
// and dispatches them against a capability Context. It owns the single
// accumulation buffer; the external polling loop guarantees at most one
// ProcessChunk call in flight at a time, so no locking is done here.
type Engine struct {
	ctx    Context
	buffer []byte
	stats  Statistics
}

// NewEngine creates a protocol engine bound to a capability context.
func NewEngine(ctx Context) *Engine {
	return &Engine{
		ctx:    ctx,
		buffer: make([]byte, 0, MaxFrameSize),
		stats:  newStatistics(),
	}
}

// Stats returns a snapshot of the engine's frame statistics.
func (e *Engine) Stats() Statistics {
	return e.stats
}

// ProcessChunk appends incoming bytes to the frame buffer, extracts every
// complete line, and returns the encoded response frames in request order.
// Frame-level failures (empty, oversized, non-UTF-8, unterminated overrun)
// are fatal to the single line only; each produces exactly one error
// response. ts is the response timestamp in milliseconds since epoch.
func (e *Engine) ProcessChunk(chunk []byte, ts int64) [][]byte {
	if len(chunk) > 0 {
		e.buffer = append(e.buffer, chunk...)
	}

	var responses [][]byte

	for {
		newlineIndex := bytes.IndexByte(e.buffer, '\n')
		if newlineIndex < 0 {
			break
		}

		line := make([]byte, newlineIndex)
		copy(line, e.buffer[:newlineIndex])
		e.buffer = e.buffer[:copy(e.buffer, e.buffer[newlineIndex+1:])]

		line = bytes.TrimSuffix(line, []byte{'\r'})

		resp, frameErr := e.processLineBytes(line, ts)
		e.stats.observe(resp, frameErr)
		responses = append(responses, EncodeFrame(resp))
	}

	// A client that never sends a terminator must not grow the buffer
	// without bound.
	if len(e.buffer) > MaxFrameSize {
		resp := errorResponse(UnmatchedID, ErrMalformedFrame,
			"Missing newline terminator before max frame size.",
			map[string]any{"maxFrameSize": MaxFrameSize}, ts)
		e.stats.observe(resp, true)
		responses = append(responses, EncodeFrame(resp))
		e.buffer = e.buffer[:0]
	}

	return responses
}

// processLineBytes applies the frame-level checks to one extracted line and
// hands valid text to the line processor. The second return value reports
// whether the failure was frame-level (for statistics).
func (e *Engine) processLineBytes(line []byte, ts int64) (Envelope, bool) {
	if len(line) == 0 {
		return errorResponse(UnmatchedID, ErrMalformedFrame, "Frame is empty.", nil, ts), true
	}

	if len(line) > MaxFrameSize {
		return errorResponse(UnmatchedID, ErrMalformedFrame, "Frame exceeds maximum size.",
			map[string]any{"maxFrameSize": MaxFrameSize, "actualSize": len(line)}, ts), true
	}

	if !utf8.Valid(line) {
		return errorResponse(UnmatchedID, ErrMalformedFrame, "Frame is not valid UTF-8.", nil, ts), true
	}

	return processLine(string(line), e.ctx, ts), false
}
