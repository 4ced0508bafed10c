// Package scratchpad stores run artifacts: raw result payloads and
// harvested downloads. Bytes live on disk, metadata in the store.
package scratchpad

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/runmeter/runmeter/domain"
	"github.com/runmeter/runmeter/store"
)

// Storage persists artifacts under dataDir/<user>/<run>/<agent>/.
type Storage struct {
	store   store.Store
	dataDir string
}

// NewStorage creates artifact storage rooted at dataDir.
func NewStorage(st store.Store, dataDir string) *Storage {
	return &Storage{store: st, dataDir: dataDir}
}

// SaveJSON stores a raw result payload as a JSON artifact.
func (s *Storage) SaveJSON(ctx context.Context, userID, runID, agentID string, payload []byte) (*domain.ScratchpadFile, error) {
	id := uuid.New().String()
	filename := "results-" + id[:8] + ".json"
	return s.save(ctx, &domain.ScratchpadFile{
		ID:          id,
		UserID:      userID,
		RunID:       runID,
		AgentID:     agentID,
		Filename:    filename,
		ContentType: "application/json",
		CreatedAt:   time.Now(),
	}, payload)
}

// SaveDownload stores downloaded bytes as an artifact tagged with the
// property path and source URL they were harvested from.
func (s *Storage) SaveDownload(ctx context.Context, userID, runID, agentID, filename, contentType, sourcePath, sourceURL string, data []byte) (*domain.ScratchpadFile, error) {
	return s.save(ctx, &domain.ScratchpadFile{
		ID:          uuid.New().String(),
		UserID:      userID,
		RunID:       runID,
		AgentID:     agentID,
		Filename:    filename,
		SourcePath:  sourcePath,
		SourceURL:   sourceURL,
		ContentType: contentType,
		CreatedAt:   time.Now(),
	}, data)
}

func (s *Storage) save(ctx context.Context, file *domain.ScratchpadFile, data []byte) (*domain.ScratchpadFile, error) {
	dir := filepath.Join(s.dataDir, file.UserID, file.RunID, file.AgentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	file.Path = filepath.Join(dir, file.ID+"_"+filepath.Base(file.Filename))
	if err := os.WriteFile(file.Path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write artifact: %w", err)
	}

	if err := s.store.CreateScratchpadFile(ctx, file); err != nil {
		// Keep disk and metadata consistent.
		os.Remove(file.Path)
		return nil, fmt.Errorf("failed to record artifact: %w", err)
	}
	return file, nil
}

// List returns the artifacts of a run owned by a user.
func (s *Storage) List(ctx context.Context, runID, userID string) ([]domain.ScratchpadFile, error) {
	files, err := s.store.ListScratchpadFiles(ctx, runID)
	if err != nil {
		return nil, err
	}
	owned := files[:0]
	for _, f := range files {
		if f.UserID == userID {
			owned = append(owned, f)
		}
	}
	return owned, nil
}

// Purge deletes all artifacts of a run, metadata and bytes together.
// Returns the number of files removed.
func (s *Storage) Purge(ctx context.Context, runID string) (int, error) {
	files, err := s.store.DeleteScratchpadFiles(ctx, runID)
	if err != nil {
		return 0, err
	}
	for _, f := range files {
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			log.Printf("WARN: failed to remove artifact %s: %v", f.Path, err)
		}
	}
	return len(files), nil
}
