// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 thx4cmn

package macropad

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thx4cmn/padlink/pkg/padproto"
)

type deviceFixture struct {
	device    *Device
	engine    *padproto.Engine
	statePath string
	destRoot  string
}

func newDeviceFixture(t *testing.T) *deviceFixture {
	t.Helper()
	root := t.TempDir()
	statePath := filepath.Join(root, "device_state.json")
	destRoot := filepath.Join(root, "dest")

	store := OpenStore(statePath, testLogger())
	updater := NewUpdater(filepath.Join(root, "staging"), destRoot, nil, testLogger())
	device := NewDevice(store, updater, testLogger())

	return &deviceFixture{
		device:    device,
		engine:    padproto.NewEngine(device),
		statePath: statePath,
		destRoot:  destRoot,
	}
}

// roundTrip sends one request frame through the engine and decodes the
// single response.
func (fx *deviceFixture) roundTrip(t *testing.T, msgType, id string, payload map[string]any) padproto.Envelope {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"v": padproto.ProtocolVersion, "type": msgType, "id": id, "ts": 1, "payload": payload,
	})
	require.NoError(t, err)

	responses := fx.engine.ProcessChunk(append(raw, '\n'), 100)
	require.Len(t, responses, 1)

	env, err := padproto.DecodeFrame(responses[0])
	require.NoError(t, err)
	require.Equal(t, id, env.ID)
	return env
}

func (fx *deviceFixture) requireAck(t *testing.T, msgType, id string, payload map[string]any) padproto.Envelope {
	t.Helper()
	env := fx.roundTrip(t, msgType, id, payload)
	require.Equal(t, padproto.MsgAck, env.Type, "payload: %v", env.Payload)
	return env
}

func TestDevice_Capabilities(t *testing.T) {
	fx := newDeviceFixture(t)

	caps := fx.device.Capabilities()
	assert.Equal(t, DeviceName, caps["device"])
	assert.Equal(t, FirmwareVersion, caps["firmwareVersion"])
	assert.Contains(t, caps["features"], padproto.FeatureFirmwareUpdateV1)
	assert.Contains(t, caps["features"], padproto.FeatureNotePresetsV1)
}

func TestDevice_HelloHandshake(t *testing.T) {
	fx := newDeviceFixture(t)

	env := fx.roundTrip(t, padproto.MsgHello, "h1", map[string]any{
		"client":                   "device tests",
		"requestedProtocolVersion": padproto.ProtocolVersion,
	})

	require.Equal(t, padproto.MsgHelloAck, env.Type)
	assert.Equal(t, DeviceName, env.Payload["device"])
	assert.NotNil(t, env.Payload["state"])

	// A successful handshake queues the acceptance animation.
	assert.True(t, fx.device.Store().ConsumeAnimation())
}

func TestDevice_ApplyConfigEndToEnd(t *testing.T) {
	fx := newDeviceFixture(t)

	config := padproto.DefaultDeviceState()
	config.NotePreset.Mode = padproto.ModeRain
	doc, err := json.Marshal(config)
	require.NoError(t, err)
	var configDoc map[string]any
	require.NoError(t, json.Unmarshal(doc, &configDoc))

	env := fx.requireAck(t, padproto.MsgApplyConfig, "a1", map[string]any{
		"configId":       "cfg-1",
		"idempotencyKey": "key-1",
		"config":         configDoc,
	})
	assert.Equal(t, "cfg-1", env.Payload["appliedConfigId"])

	// get_state reflects the applied config, and the file is on disk.
	stateEnv := fx.requireAck(t, padproto.MsgGetState, "g1", map[string]any{})
	state := stateEnv.Payload["state"].(map[string]any)
	assert.Equal(t, padproto.ModeRain, state["notePreset"].(map[string]any)["mode"])

	_, err = os.Stat(fx.statePath)
	assert.NoError(t, err)
}

func TestDevice_FirmwareUpdateEndToEnd(t *testing.T) {
	fx := newDeviceFixture(t)

	content := []byte("import board\nprint('new firmware')\n")
	digest := sha256.Sum256(content)
	digestHex := hex.EncodeToString(digest[:])

	fx.requireAck(t, padproto.MsgFirmwareBegin, "b1", map[string]any{
		"sessionId":     "sess-1",
		"targetVersion": "2.5.0",
		"files": []any{
			map[string]any{"path": "/code.py", "size": len(content), "sha256": digestHex},
		},
	})

	chunkSize := 10
	index := 0
	for offset := 0; offset < len(content); offset += chunkSize {
		end := offset + chunkSize
		if end > len(content) {
			end = len(content)
		}
		fx.requireAck(t, padproto.MsgFirmwareChunk, fmt.Sprintf("c%d", index), map[string]any{
			"sessionId":  "sess-1",
			"path":       "/code.py",
			"chunkIndex": index,
			"dataBase64": base64.StdEncoding.EncodeToString(content[offset:end]),
		})
		index++
	}

	fx.requireAck(t, padproto.MsgFirmwareFileComplete, "fc1", map[string]any{
		"sessionId": "sess-1",
		"path":      "/code.py",
		"size":      len(content),
		"sha256":    digestHex,
	})

	env := fx.requireAck(t, padproto.MsgFirmwareCommit, "cm1", map[string]any{
		"sessionId":     "sess-1",
		"targetVersion": "2.5.0",
	})
	assert.Equal(t, true, env.Payload["resetQueued"])

	installed, err := os.ReadFile(filepath.Join(fx.destRoot, "code.py"))
	require.NoError(t, err)
	assert.Equal(t, content, installed)
	assert.True(t, fx.device.Updater().ConsumeReset())
}

func TestDevice_FirmwareChunkOutOfOrderNack(t *testing.T) {
	fx := newDeviceFixture(t)

	content := []byte("abc")
	digest := sha256.Sum256(content)

	fx.requireAck(t, padproto.MsgFirmwareBegin, "b1", map[string]any{
		"sessionId":     "sess-1",
		"targetVersion": "2.5.0",
		"files": []any{
			map[string]any{"path": "/code.py", "size": len(content), "sha256": hex.EncodeToString(digest[:])},
		},
	})

	env := fx.roundTrip(t, padproto.MsgFirmwareChunk, "c1", map[string]any{
		"sessionId":  "sess-1",
		"path":       "/code.py",
		"chunkIndex": 3,
		"dataBase64": base64.StdEncoding.EncodeToString(content),
	})

	require.Equal(t, padproto.MsgNack, env.Type)
	assert.Equal(t, padproto.ErrInvalidFirmwareUpdate, env.Payload["code"])
	assert.Equal(t, false, env.Payload["retryable"])
}

func TestDevice_IdempotentApplyThroughProtocol(t *testing.T) {
	fx := newDeviceFixture(t)

	config := padproto.DefaultDeviceState()
	doc, err := json.Marshal(config)
	require.NoError(t, err)
	var configDoc map[string]any
	require.NoError(t, json.Unmarshal(doc, &configDoc))

	payload := map[string]any{
		"configId":       "cfg-1",
		"idempotencyKey": "key-1",
		"config":         configDoc,
	}

	fx.requireAck(t, padproto.MsgApplyConfig, "a1", payload)

	// Retried request (same idempotency key, new message id) still acks
	// and reports the originally applied config.
	env := fx.requireAck(t, padproto.MsgApplyConfig, "a2", payload)
	assert.Equal(t, "cfg-1", env.Payload["appliedConfigId"])
}
