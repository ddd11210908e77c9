package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/config"
	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/elastic"

	"github.com/google/uuid"
)

var DebugLog func(string, ...interface{})

// A Session is one invocation of the launcher: a fresh UUID stamped on
// every database row and export document, plus the JSONL record file the
// run outcomes are written to.
type Session struct {
	ID  string
	Dir string
}

func New() *Session {
	return &Session{
		ID:  uuid.New().String(),
		Dir: config.GetSessionsDir(),
	}
}

func (s *Session) RecordFile() string {
	return filepath.Join(s.Dir, s.ID+".jsonl")
}

// WriteRecords persists one JSON line per resolved run. The file is
// rewritten whole each time; the session owns it.
func (s *Session) WriteRecords(docs []elastic.RunDocument) (string, error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create sessions directory: %w", err)
	}

	recordFile := s.RecordFile()
	file, err := os.Create(recordFile)
	if err != nil {
		return "", fmt.Errorf("failed to create record file: %w", err)
	}
	defer file.Close()

	for _, doc := range docs {
		jsonBytes, err := json.Marshal(doc)
		if err != nil {
			return "", fmt.Errorf("failed to marshal run record: %w", err)
		}
		if _, err := fmt.Fprintln(file, string(jsonBytes)); err != nil {
			return "", fmt.Errorf("failed to write run record: %w", err)
		}
	}

	if DebugLog != nil {
		DebugLog("wrote %d run records to %s", len(docs), recordFile)
	}

	return recordFile, nil
}

// Info describes a stored session record file.
type Info struct {
	ID       string
	Path     string
	Modified time.Time
}

// List returns all stored sessions, newest first.
func List() ([]Info, error) {
	dir := config.GetSessionsDir()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var sessions []Info
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		sessions = append(sessions, Info{
			ID:       strings.TrimSuffix(entry.Name(), ".jsonl"),
			Path:     filepath.Join(dir, entry.Name()),
			Modified: info.ModTime(),
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Modified.After(sessions[j].Modified)
	})

	return sessions, nil
}

// Latest returns the record file of the most recent session.
func Latest() (string, error) {
	sessions, err := List()
	if err != nil {
		return "", err
	}
	if len(sessions) == 0 {
		return "", fmt.Errorf("no session record files found")
	}
	return sessions[0].Path, nil
}
