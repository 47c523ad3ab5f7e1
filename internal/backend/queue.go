package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/soukbot/tg-product-scraper/internal/observability"
	"github.com/soukbot/tg-product-scraper/internal/product"
)

// QueueEntry is one failed delivery awaiting replay.
type QueueEntry struct {
	Record       product.Record `json:"record"`
	Reason       string         `json:"reason"`
	EnqueuedAt   time.Time      `json:"enqueued_at"`
	AttemptCount int            `json:"attempt_count"`
}

// Queue is a JSON-file failure queue. Every mutation rewrites the whole file
// through a temp file and rename, so a crash never leaves a torn queue.
type Queue struct {
	path string

	mu sync.Mutex
}

func NewQueue(path string) *Queue {
	return &Queue{path: path}
}

// Enqueue appends a failed record to the queue.
func (q *Queue) Enqueue(rec *product.Record, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load()
	if err != nil {
		return err
	}

	entries = append(entries, QueueEntry{
		Record:       *rec,
		Reason:       reason,
		EnqueuedAt:   time.Now().UTC(),
		AttemptCount: 1,
	})

	return q.save(entries)
}

// Entries returns a snapshot of the queue.
func (q *Queue) Entries() ([]QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.load()
}

// Rewrite replaces the queue contents, used by replay after re-attempting
// every entry.
func (q *Queue) Rewrite(entries []QueueEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.save(entries)
}

func (q *Queue) load() ([]QueueEntry, error) {
	data, err := os.ReadFile(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read failure queue: %w", err)
	}

	var entries []QueueEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse failure queue %s: %w", q.path, err)
	}

	return entries, nil
}

func (q *Queue) save(entries []QueueEntry) error {
	if entries == nil {
		entries = []QueueEntry{}
	}

	if err := writeJSONAtomic(q.path, entries); err != nil {
		return fmt.Errorf("write failure queue: %w", err)
	}

	observability.FailureQueueSize.Set(float64(len(entries)))

	return nil
}

// RecordFile is an append-only JSON array of product records, used for the
// delivered-products log and the offline file. Appends are idempotent per
// unique id.
type RecordFile struct {
	path string

	mu sync.Mutex
}

func NewRecordFile(path string) *RecordFile {
	return &RecordFile{path: path}
}

func (f *RecordFile) Append(rec *product.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.load()
	if err != nil {
		return err
	}

	for _, existing := range records {
		if existing.UniqueID == rec.UniqueID {
			return nil
		}
	}

	records = append(records, *rec)

	if err := writeJSONAtomic(f.path, records); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}

	return nil
}

func (f *RecordFile) load() ([]product.Record, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}

	var records []product.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}

	return records, nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
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

	return os.Rename(tmp.Name(), path)
}
