package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultThresholdsKey = "thresholds_final.json"
	DefaultReportKey     = "policy_summary_test.json"
)

// Blobs is a flat key/value byte store. Get returns ErrNotFound for unknown keys.
type Blobs interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Store reads and writes the threshold artifact and the run report on top of Blobs.
type Store struct {
	blobs         Blobs
	thresholdsKey string
	reportKey     string
}

func NewStore(blobs Blobs, thresholdsKey, reportKey string) *Store {
	if strings.TrimSpace(thresholdsKey) == "" {
		thresholdsKey = DefaultThresholdsKey
	}
	if strings.TrimSpace(reportKey) == "" {
		reportKey = DefaultReportKey
	}
	return &Store{blobs: blobs, thresholdsKey: thresholdsKey, reportKey: reportKey}
}

func (s *Store) SaveThresholds(ctx context.Context, a ThresholdArtifact) error {
	data, err := Encode(a)
	if err != nil {
		return err
	}
	if err := s.blobs.Put(ctx, s.thresholdsKey, data); err != nil {
		return fmt.Errorf("save thresholds %s: %w", s.thresholdsKey, err)
	}
	return nil
}

func (s *Store) LoadThresholds(ctx context.Context) (ThresholdArtifact, error) {
	data, err := s.blobs.Get(ctx, s.thresholdsKey)
	if err != nil {
		return ThresholdArtifact{}, fmt.Errorf("load thresholds %s: %w", s.thresholdsKey, err)
	}
	a, err := Decode(data)
	if err != nil {
		return ThresholdArtifact{}, fmt.Errorf("load thresholds %s: %w", s.thresholdsKey, err)
	}
	return a, nil
}

func (s *Store) SaveReport(ctx context.Context, r Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	if err := s.blobs.Put(ctx, s.reportKey, data); err != nil {
		return fmt.Errorf("save report %s: %w", s.reportKey, err)
	}
	return nil
}

func (s *Store) LoadReport(ctx context.Context) (Report, error) {
	data, err := s.blobs.Get(ctx, s.reportKey)
	if err != nil {
		return Report{}, fmt.Errorf("load report %s: %w", s.reportKey, err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("load report %s: %w", s.reportKey, err)
	}
	return r, nil
}

// FileBlobs keeps each key as a file under Dir.
type FileBlobs struct {
	Dir string
}

func (f FileBlobs) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("artifact: empty key")
	}
	return filepath.Join(f.Dir, clean), nil
}

func (f FileBlobs) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	// write then rename so readers never see a partial artifact
	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}

func (f FileBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return data, err
}
