package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	interfaces "github.com/levelbot/levelbot/internal/interfaces"
	"github.com/levelbot/levelbot/internal/metrics"
)

// Table names, kept identical to the historical JSON file names.
const (
	LedgerTable      = "bank"
	ProgressionTable = "levels"
	VoiceTable       = "voice_levels"
)

var emptyDocument = []byte("{}")

// Table is a typed view over one named document in a TableStore. Every
// read-modify-write runs under the table mutex, so two operations never
// interleave between load and save.
type Table[T any] struct {
	name    string
	store   interfaces.TableStore
	log     *logrus.Logger
	metrics *metrics.BotMetrics

	mu sync.Mutex
}

func NewTable[T any](name string, store interfaces.TableStore, log *logrus.Logger, m *metrics.BotMetrics) *Table[T] {
	return &Table[T]{
		name:    name,
		store:   store,
		log:     log,
		metrics: m,
	}
}

func (t *Table[T]) Name() string {
	return t.name
}

// Load returns a fresh copy of every row.
func (t *Table[T]) Load(ctx context.Context) (map[string]*T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rows, _, err := t.load(ctx)
	return rows, err
}

// View runs fn against a fresh copy of the table while holding the table lock.
func (t *Table[T]) View(ctx context.Context, fn func(rows map[string]*T) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, _, err := t.load(ctx)
	if err != nil {
		return err
	}
	return fn(rows)
}

// Update loads the table, applies fn and writes the whole table back when fn
// reports a change. A failed write drops the update and is returned.
func (t *Table[T]) Update(ctx context.Context, fn func(rows map[string]*T) (bool, error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, doc, err := t.load(ctx)
	if err != nil {
		return err
	}
	changed, err := fn(rows)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if err := t.save(ctx, rows, doc); err != nil {
		t.metrics.ObserveWriteFailure(t.name)
		return err
	}
	return nil
}

// document is the stored form of a table as last read. Other writers share
// these tables, so rows that do not decode into T and fields T does not
// declare are carried through every save untouched.
type document struct {
	fields map[string]map[string]json.RawMessage
	opaque map[string]json.RawMessage
}

func (t *Table[T]) load(ctx context.Context) (map[string]*T, document, error) {
	doc := document{
		fields: make(map[string]map[string]json.RawMessage),
		opaque: make(map[string]json.RawMessage),
	}
	data, err := t.store.ReadTable(ctx, t.name)
	if err != nil {
		return nil, doc, fmt.Errorf("read table %s: %w", t.name, err)
	}

	rows := make(map[string]*T)
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		if err := t.store.WriteTable(ctx, t.name, emptyDocument); err != nil {
			t.log.WithError(err).WithField("table", t.name).Warn("failed to initialise empty table")
		}
		return rows, doc, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.log.WithFields(logrus.Fields{
			"table": t.name,
			"error": err,
		}).Warn("table is not valid JSON, continuing with an empty table")
		t.metrics.ObserveStorageRecovery(t.name)
		return rows, doc, nil
	}

	for id, msg := range raw {
		var fields map[string]json.RawMessage
		if json.Unmarshal(msg, &fields) == nil && fields != nil {
			doc.fields[id] = fields
		}

		var rec T
		if err := json.Unmarshal(msg, &rec); err != nil {
			t.log.WithFields(logrus.Fields{
				"table":   t.name,
				"user_id": id,
				"error":   err,
			}).Debug("keeping undecodable row as stored")
			doc.opaque[id] = msg
			continue
		}
		rows[id] = &rec
	}
	return rows, doc, nil
}

func (t *Table[T]) save(ctx context.Context, rows map[string]*T, doc document) error {
	out := make(map[string]json.RawMessage, len(rows)+len(doc.opaque))
	for id, msg := range doc.opaque {
		out[id] = msg
	}
	for id, rec := range rows {
		msg, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode table %s row %s: %w", t.name, id, err)
		}
		if stored := doc.fields[id]; len(stored) > 0 {
			if msg, err = overlay(stored, msg); err != nil {
				return fmt.Errorf("encode table %s row %s: %w", t.name, id, err)
			}
		}
		out[id] = msg
	}

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode table %s: %w", t.name, err)
	}
	if err := t.store.WriteTable(ctx, t.name, data); err != nil {
		return fmt.Errorf("write table %s: %w", t.name, err)
	}
	return nil
}

// overlay writes the fields of row over the stored fields of the same row.
func overlay(stored map[string]json.RawMessage, row []byte) (json.RawMessage, error) {
	var typed map[string]json.RawMessage
	if err := json.Unmarshal(row, &typed); err != nil || typed == nil {
		return row, nil
	}
	merged := make(map[string]json.RawMessage, len(stored)+len(typed))
	for k, v := range stored {
		merged[k] = v
	}
	for k, v := range typed {
		merged[k] = v
	}
	return json.Marshal(merged)
}
