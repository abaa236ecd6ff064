// Package realtime carries row change notifications from writers to the
// sessions watching them, over Redis pub/sub.
package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
)

const DefaultSchema = "public"

// Record is one row as a column -> value map. Numbers stay json.Number so
// large ids survive the round trip.
type Record map[string]any

func (r Record) Uint(key string) (uint, bool) {
	switch v := r[key].(type) {
	case json.Number:
		n, err := strconv.ParseUint(v.String(), 10, 64)
		return uint(n), err == nil
	case float64:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	case uint:
		return v, true
	case int:
		return uint(v), v >= 0
	case int64:
		return uint(v), v >= 0
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		return uint(n), err == nil
	}
	return 0, false
}

func (r Record) Int64(key string) (int64, bool) {
	switch v := r[key].(type) {
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case uint:
		return int64(v), true
	}
	return 0, false
}

func (r Record) String(key string) (string, bool) {
	s, ok := r[key].(string)
	return s, ok
}

// ChangeEvent mirrors the payload of a database change feed.
type ChangeEvent struct {
	Schema          string    `json:"schema"`
	Table           string    `json:"table"`
	EventType       EventType `json:"eventType"`
	Old             Record    `json:"old,omitempty"`
	New             Record    `json:"new,omitempty"`
	CommitTimestamp time.Time `json:"commit_timestamp"`
}

// Row is the row the event is about: New, or Old for deletes.
func (e ChangeEvent) Row() Record {
	if e.EventType == Delete || e.New == nil {
		return e.Old
	}
	return e.New
}

// NewChangeEvent builds an event in the default schema from row values,
// which may be models or maps. A nil row is left out.
func NewChangeEvent(table string, typ EventType, oldRow, newRow any) (ChangeEvent, error) {
	ev := ChangeEvent{
		Schema:          DefaultSchema,
		Table:           table,
		EventType:       typ,
		CommitTimestamp: time.Now().UTC(),
	}
	var err error
	if ev.Old, err = toRecord(oldRow); err != nil {
		return ev, fmt.Errorf("old row: %w", err)
	}
	if ev.New, err = toRecord(newRow); err != nil {
		return ev, fmt.Errorf("new row: %w", err)
	}
	return ev, nil
}

func toRecord(row any) (Record, error) {
	if row == nil {
		return nil, nil
	}
	if rec, ok := row.(Record); ok {
		return rec, nil
	}
	raw, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var rec Record
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DecodeEvent parses a published payload.
func DecodeEvent(data []byte) (ChangeEvent, error) {
	var ev ChangeEvent
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&ev); err != nil {
		return ev, fmt.Errorf("decode change event: %w", err)
	}
	if ev.Schema == "" {
		ev.Schema = DefaultSchema
	}
	return ev, nil
}

// Topic is the pub/sub channel that carries changes of one table.
func Topic(schema, table string) string {
	if schema == "" {
		schema = DefaultSchema
	}
	return "realtime:" + schema + ":" + table
}
