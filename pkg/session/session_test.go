package session

import (
	"bufio"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/elastic"
)

func TestNewAssignsUniqueIDs(t *testing.T) {
	a := New()
	b := New()

	if a.ID == "" {
		t.Fatal("expected a non-empty session id")
	}
	if a.ID == b.ID {
		t.Fatalf("expected unique session ids, got %s twice", a.ID)
	}
}

func TestWriteRecords(t *testing.T) {
	s := &Session{ID: "test-session", Dir: t.TempDir()}

	started := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	docs := []elastic.RunDocument{
		{
			SessionID: s.ID,
			RunPath:   "arxiv/gpt2/lr1e-04_linear_adamw_wd1e-03_256-2x128_mem16_bs8-32_plain/run_1",
			Task:      "arxiv",
			Model:     "gpt2",
			Status:    "COMPLETED",
			StartedAt: &started,
		},
		{
			SessionID: s.ID,
			RunPath:   "arxiv/gpt2/lr1e-04_linear_adamw_wd1e-03_256-2x128_mem16_bs8-32_plain/run_2",
			Task:      "arxiv",
			Model:     "gpt2",
			Status:    "QUEUED",
		},
	}

	recordFile, err := s.WriteRecords(docs)
	if err != nil {
		t.Fatalf("WriteRecords failed: %v", err)
	}
	if recordFile != s.RecordFile() {
		t.Fatalf("expected record file %s, got %s", s.RecordFile(), recordFile)
	}

	file, err := os.Open(recordFile)
	if err != nil {
		t.Fatalf("failed to open record file: %v", err)
	}
	defer file.Close()

	var lines int
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var doc elastic.RunDocument
		if err := json.Unmarshal(scanner.Bytes(), &doc); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", lines+1, err)
		}
		if doc.SessionID != s.ID {
			t.Fatalf("line %d has session id %s, want %s", lines+1, doc.SessionID, s.ID)
		}
		lines++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("failed to read record file: %v", err)
	}

	if lines != len(docs) {
		t.Fatalf("expected %d record lines, got %d", len(docs), lines)
	}
}
