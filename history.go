package main

// history module provides the append-only inference ledger
//

import (
	"time"

	"github.com/google/uuid"
	"gopkg.in/mgo.v2/bson"
)

// HistoryStore records inference outcomes and lists them back
type HistoryStore interface {
	// Append assigns an identifier, persists the record and returns
	// the persisted copy
	Append(rec HistoryRecord) (HistoryRecord, error)
	// ListAll returns all records in insertion order
	ListAll() ([]HistoryRecord, error)
}

// Ledger implements HistoryStore on top of MongoDB
type Ledger struct {
	DBName string
	DBColl string
}

// Append persists given history record, records are append-only and
// never mutated afterwards
func (l *Ledger) Append(rec HistoryRecord) (HistoryRecord, error) {
	rec.ID = uuid.New().String()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if err := MongoInsert(l.DBName, l.DBColl, []any{rec}); err != nil {
		return HistoryRecord{}, stageError("history", PersistenceError, err)
	}
	return rec, nil
}

// ListAll fetches all history records sorted by timestamp, which keeps
// insertion order reproducible across calls
func (l *Ledger) ListAll() ([]HistoryRecord, error) {
	records := []HistoryRecord{}
	err := MongoGetSorted(l.DBName, l.DBColl, bson.M{}, []string{"timestamp"}, &records)
	if err != nil {
		return nil, stageError("history", DatabaseError, err)
	}
	return records, nil
}
