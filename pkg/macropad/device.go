// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 thx4cmn

package macropad

import (
	"github.com/sirupsen/logrus"

	"github.com/thx4cmn/padlink/pkg/padproto"
)

// DeviceName is the identity advertised in hello_ack.
const DeviceName = "thx-c pico midi"

// FirmwareVersion is the firmware revision this device layer reports.
const FirmwareVersion = "2.4.0"

// Device wires the state store and firmware updater into the capability
// contract the protocol engine consumes.
type Device struct {
	store   *Store
	updater *Updater
	log     *logrus.Logger

	firmwareVersion string
}

// NewDevice assembles a device context from its stores.
func NewDevice(store *Store, updater *Updater, log *logrus.Logger) *Device {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Device{
		store:           store,
		updater:         updater,
		log:             log,
		firmwareVersion: FirmwareVersion,
	}
}

// Store returns the underlying state store.
func (d *Device) Store() *Store {
	return d.store
}

// Updater returns the underlying firmware updater.
func (d *Device) Updater() *Updater {
	return d.updater
}

// Capabilities implements padproto.Context.
func (d *Device) Capabilities() map[string]any {
	return map[string]any{
		"device":          DeviceName,
		"protocolVersion": padproto.ProtocolVersion,
		"features": []string{
			padproto.FeatureHandshake,
			padproto.FeatureGetState,
			padproto.FeatureApplyConfig,
			padproto.FeaturePing,
			padproto.FeatureConfigPersistence,
			padproto.FeatureNotePresetsV1,
			padproto.FeatureFirmwareUpdateV1,
		},
		"firmwareVersion": d.firmwareVersion,
	}
}

// GetState implements padproto.Context.
func (d *Device) GetState() any {
	return d.store.Snapshot()
}

// ApplyConfig implements padproto.Context.
func (d *Device) ApplyConfig(config *padproto.DeviceState, configID, idempotencyKey string) padproto.Result {
	return d.store.ApplyConfig(config, configID, idempotencyKey)
}

// OnHandshake implements padproto.Context. The acceptance animation runs
// between polling cycles on real hardware; here the queue flag is what the
// emulator loop consumes.
func (d *Device) OnHandshake() {
	d.log.Debug("handshake received")
	d.store.QueueAcceptanceAnimation()
}

// FirmwareBegin implements padproto.Context.
func (d *Device) FirmwareBegin(sessionID, targetVersion string, files []padproto.FirmwareFile) padproto.Result {
	return d.updater.Begin(sessionID, targetVersion, files)
}

// FirmwareChunk implements padproto.Context.
func (d *Device) FirmwareChunk(sessionID, path string, chunkIndex int, dataBase64 string) padproto.Result {
	return d.updater.Chunk(sessionID, path, chunkIndex, dataBase64)
}

// FirmwareFileComplete implements padproto.Context.
func (d *Device) FirmwareFileComplete(sessionID, path string, size int64, sha256 string) padproto.Result {
	return d.updater.FileComplete(sessionID, path, size, sha256)
}

// FirmwareCommit implements padproto.Context.
func (d *Device) FirmwareCommit(sessionID, targetVersion string) padproto.Result {
	return d.updater.Commit(sessionID, targetVersion)
}

// FirmwareAbort implements padproto.Context.
func (d *Device) FirmwareAbort(sessionID, reason string) padproto.Result {
	return d.updater.Abort(sessionID, reason)
}
