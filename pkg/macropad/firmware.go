// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 thx4cmn

package macropad

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/thx4cmn/padlink/pkg/padproto"
)

// DefaultFirmwarePaths is the allow-list of destination paths a firmware
// session may stage: the firmware's own source files.
var DefaultFirmwarePaths = []string{"/code.py", "/protocol_v1.py", "/boot.py"}

// fileTransfer tracks one file of the active session.
type fileTransfer struct {
	declared  padproto.FirmwareFile
	stagePath string
	stage     *os.File
	hash      hash.Hash
	received  int64
	nextChunk int
	complete  bool
}

type updateSession struct {
	id            string
	targetVersion string
	files         map[string]*fileTransfer
}

// Updater is the firmware update state machine. At most one session is
// active; a new begin unconditionally supersedes the previous session and
// cleans up its staging files.
type Updater struct {
	stagingDir   string
	destRoot     string
	allowedPaths map[string]bool
	log          *logrus.Logger

	session      *updateSession
	resetPending bool
}

// NewUpdater creates a firmware updater staging into stagingDir and
// committing under destRoot. allowed lists the permitted destination paths;
// nil means DefaultFirmwarePaths.
func NewUpdater(stagingDir, destRoot string, allowed []string, log *logrus.Logger) *Updater {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if allowed == nil {
		allowed = DefaultFirmwarePaths
	}

	allowedPaths := make(map[string]bool, len(allowed))
	for _, path := range allowed {
		allowedPaths[path] = true
	}

	return &Updater{
		stagingDir:   stagingDir,
		destRoot:     destRoot,
		allowedPaths: allowedPaths,
		log:          log,
	}
}

// ConsumeReset reports and clears the pending device reset queued by a
// successful commit. The device loop acts on it after the commit response
// has been flushed.
func (u *Updater) ConsumeReset() bool {
	pending := u.resetPending
	u.resetPending = false
	return pending
}

func (u *Updater) stagePathFor(path string) string {
	name := strings.ReplaceAll(strings.TrimPrefix(path, "/"), "/", "_")
	return filepath.Join(u.stagingDir, name+".stage")
}

// discardSession closes and removes all staging artifacts of the active
// session, if any.
func (u *Updater) discardSession() {
	if u.session == nil {
		return
	}
	for _, transfer := range u.session.files {
		if transfer.stage != nil {
			transfer.stage.Close()
		}
		os.Remove(transfer.stagePath)
	}
	u.session = nil
}

// Begin opens a new session, unconditionally superseding any prior one.
// There is no "session busy" rejection; a new begin always wins.
func (u *Updater) Begin(sessionID, targetVersion string, files []padproto.FirmwareFile) padproto.Result {
	u.discardSession()

	transfers := make(map[string]*fileTransfer, len(files))
	for _, file := range files {
		if !u.allowedPaths[file.Path] {
			return padproto.Reject(padproto.ErrInvalidFirmwareUpdate,
				fmt.Sprintf("File path is not allowed for firmware update: %s", file.Path), false)
		}
		if _, dup := transfers[file.Path]; dup {
			return padproto.Reject(padproto.ErrInvalidFirmwareUpdate,
				fmt.Sprintf("Duplicate file path in firmware session: %s", file.Path), false)
		}
		transfers[file.Path] = &fileTransfer{
			declared:  file,
			stagePath: u.stagePathFor(file.Path),
			hash:      sha256.New(),
		}
	}

	if err := os.MkdirAll(u.stagingDir, 0o755); err != nil {
		return padproto.Reject(padproto.ErrFirmwareStorageError,
			fmt.Sprintf("Unable to prepare staging directory: %v", err), true)
	}

	// Every staging file exists from here on; a zero-size file never
	// receives a chunk, so install must not depend on one arriving.
	for _, transfer := range transfers {
		stage, err := os.OpenFile(transfer.stagePath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			for _, opened := range transfers {
				if opened.stage != nil {
					opened.stage.Close()
					os.Remove(opened.stagePath)
				}
			}
			return padproto.Reject(padproto.ErrFirmwareStorageError,
				fmt.Sprintf("Unable to open staging file: %v", err), true)
		}
		transfer.stage = stage
	}

	u.session = &updateSession{
		id:            sessionID,
		targetVersion: targetVersion,
		files:         transfers,
	}

	u.log.WithFields(logrus.Fields{
		"sessionId":     sessionID,
		"targetVersion": targetVersion,
		"files":         len(files),
	}).Info("firmware session opened")

	return padproto.ResultOK()
}

// activeTransfer resolves the session and file for a firmware message.
func (u *Updater) activeTransfer(sessionID, path string) (*fileTransfer, padproto.Result) {
	if u.session == nil || u.session.id != sessionID {
		return nil, padproto.Reject(padproto.ErrFirmwareSessionMissing,
			"No matching firmware session is active.", false)
	}

	transfer, known := u.session.files[path]
	if !known {
		return nil, padproto.Reject(padproto.ErrInvalidFirmwareUpdate,
			fmt.Sprintf("File is not part of the active firmware session: %s", path), false)
	}

	return transfer, padproto.Result{OK: true}
}

// Chunk appends one base64 chunk to a file's staging area. Chunk indices
// must be strictly sequential from zero; nothing is mutated on rejection.
func (u *Updater) Chunk(sessionID, path string, chunkIndex int, dataBase64 string) padproto.Result {
	transfer, res := u.activeTransfer(sessionID, path)
	if !res.OK {
		return res
	}

	if transfer.complete {
		return padproto.Reject(padproto.ErrInvalidFirmwareUpdate,
			fmt.Sprintf("File has already been completed: %s", path), false)
	}

	if chunkIndex != transfer.nextChunk {
		return padproto.Reject(padproto.ErrInvalidFirmwareUpdate,
			fmt.Sprintf("Unexpected chunk index %d (expected %d).", chunkIndex, transfer.nextChunk), false)
	}

	data, err := base64.StdEncoding.DecodeString(dataBase64)
	if err != nil {
		return padproto.Reject(padproto.ErrInvalidFirmwareUpdate,
			"Chunk data is not valid base64.", false)
	}
	if len(data) == 0 {
		return padproto.Reject(padproto.ErrInvalidFirmwareUpdate,
			"Chunk data is empty.", false)
	}

	if _, err := transfer.stage.Write(data); err != nil {
		return padproto.Reject(padproto.ErrFirmwareStorageError,
			fmt.Sprintf("Unable to write staging file: %v", err), true)
	}

	transfer.hash.Write(data)
	transfer.received += int64(len(data))
	transfer.nextChunk++

	return padproto.ResultOK()
}

// FileComplete verifies a file against both the declared expectations from
// firmware_begin and the client's closing declaration. The file is marked
// complete only on full agreement; any mismatch leaves the transfer
// untouched.
func (u *Updater) FileComplete(sessionID, path string, size int64, digest string) padproto.Result {
	transfer, res := u.activeTransfer(sessionID, path)
	if !res.OK {
		return res
	}

	if transfer.complete {
		return padproto.Reject(padproto.ErrInvalidFirmwareUpdate,
			fmt.Sprintf("File has already been completed: %s", path), false)
	}

	if size != transfer.received || size != transfer.declared.Size {
		return padproto.Reject(padproto.ErrInvalidFirmwareUpdate,
			fmt.Sprintf("Size mismatch for %s: declared %d, received %d, expected %d.",
				path, size, transfer.received, transfer.declared.Size), false)
	}

	computed := hex.EncodeToString(transfer.hash.Sum(nil))
	if digest != computed || digest != transfer.declared.SHA256 {
		return padproto.Reject(padproto.ErrInvalidFirmwareUpdate,
			fmt.Sprintf("Digest mismatch for %s.", path), false)
	}

	if transfer.stage != nil {
		if err := transfer.stage.Close(); err != nil {
			return padproto.Reject(padproto.ErrFirmwareStorageError,
				fmt.Sprintf("Unable to finalize staging file: %v", err), true)
		}
		transfer.stage = nil
	}

	transfer.complete = true
	return padproto.ResultOK()
}

// Commit atomically installs every staged file to its destination path,
// clears staging, ends the session, and queues a device reset. The session
// survives storage failures so the commit can be retried.
func (u *Updater) Commit(sessionID, targetVersion string) padproto.Result {
	if u.session == nil || u.session.id != sessionID {
		return padproto.Reject(padproto.ErrFirmwareSessionMissing,
			"No matching firmware session is active.", false)
	}

	if targetVersion != u.session.targetVersion {
		return padproto.Reject(padproto.ErrInvalidFirmwareUpdate,
			"Target version does not match the active session.", false)
	}

	for path, transfer := range u.session.files {
		if !transfer.complete {
			return padproto.Reject(padproto.ErrInvalidFirmwareUpdate,
				fmt.Sprintf("File has not been completed: %s", path), false)
		}
	}

	for path, transfer := range u.session.files {
		if err := u.install(transfer.stagePath, path); err != nil {
			return padproto.Reject(padproto.ErrFirmwareStorageError,
				fmt.Sprintf("Unable to install %s: %v", path, err), true)
		}
	}

	for _, transfer := range u.session.files {
		os.Remove(transfer.stagePath)
	}

	u.log.WithFields(logrus.Fields{
		"sessionId":     sessionID,
		"targetVersion": targetVersion,
		"files":         len(u.session.files),
	}).Info("firmware committed, reset queued")

	u.session = nil
	u.resetPending = true

	return padproto.Result{OK: true, Payload: map[string]any{"resetQueued": true}}
}

// install copies staged bytes over the real destination path via a rename
// in the destination directory, so a partially written file is never left
// at the final path.
func (u *Updater) install(stagePath, destPath string) error {
	data, err := os.ReadFile(stagePath)
	if err != nil {
		return err
	}

	target := filepath.Join(u.destRoot, filepath.FromSlash(strings.TrimPrefix(destPath, "/")))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	tmp := target + ".new"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, target)
}

// Abort is advisory and idempotent: it clears staging and the session when
// the id matches, and still succeeds when no matching session exists.
func (u *Updater) Abort(sessionID, reason string) padproto.Result {
	if u.session != nil && u.session.id == sessionID {
		u.log.WithFields(logrus.Fields{
			"sessionId": sessionID,
			"reason":    reason,
		}).Info("firmware session aborted")
		u.discardSession()
	}
	return padproto.ResultOK()
}
