package api

import (
	"context"
	"encoding/json"

	"github.com/photonlab/daqd/pkg/archive"
)

// StorageConfigInfo reports the archive's static sizing for clients that
// want to display or validate against it before starting a recording.
type StorageConfigInfo struct {
	RingSizeBytes int
	FlushInterval string
	DatabasePath  string
}

// StorageService is the Go-level contract for spec.md §6's Storage RPC
// group: recording lifecycle and archive introspection.
type StorageService interface {
	// GetStorageConfig reports the archive's static configuration.
	GetStorageConfig(ctx context.Context) (StorageConfigInfo, error)

	// StartRecording begins a new named recording. Fails with
	// FailedPrecondition if one is already active.
	StartRecording(ctx context.Context, name string, metadata json.RawMessage, scanID, runUID, outputPath string) error

	// StopRecording ends the active recording, if any.
	StopRecording(ctx context.Context) error

	// GetRecordingStatus returns the active acquisition, or nil if none.
	GetRecordingStatus(ctx context.Context) (*archive.Acquisition, error)

	// ListAcquisitions returns every past and present recording.
	ListAcquisitions(ctx context.Context) ([]archive.Acquisition, error)
}

// storageService is the Recorder-backed StorageService implementation.
type storageService struct {
	recorder *archive.Recorder
	cfg      StorageConfigInfo
}

// NewStorageService returns a StorageService backed by recorder, reporting
// cfg for GetStorageConfig.
func NewStorageService(recorder *archive.Recorder, cfg StorageConfigInfo) StorageService {
	return &storageService{recorder: recorder, cfg: cfg}
}

func (s *storageService) GetStorageConfig(ctx context.Context) (StorageConfigInfo, error) {
	return s.cfg, nil
}

func (s *storageService) StartRecording(ctx context.Context, name string, metadata json.RawMessage, scanID, runUID, outputPath string) error {
	_, err := s.recorder.StartRecording(ctx, name, metadata, scanID, runUID, outputPath)
	return err
}

func (s *storageService) StopRecording(ctx context.Context) error {
	return s.recorder.StopRecording(ctx)
}

func (s *storageService) GetRecordingStatus(ctx context.Context) (*archive.Acquisition, error) {
	return s.recorder.GetRecordingStatus(ctx)
}

func (s *storageService) ListAcquisitions(ctx context.Context) ([]archive.Acquisition, error) {
	return s.recorder.ListAcquisitions(ctx)
}
