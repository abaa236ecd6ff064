// Package directory merges message history and explicit contacts into the
// list of people a user can write to.
package directory

import (
	"slices"
	"time"

	"github.com/osslararemellan/ole/internal/models"
)

// Summary is what message history knows about a counterpart before their
// profile is loaded.
type Summary struct {
	CounterpartID uint
	LastMessage   string
	LastMessageAt time.Time
	Unread        int64
}

// Entry is one addressable person. Loaded is false until profile fields have
// been filled in.
type Entry struct {
	ProfileID     uint       `json:"profile_id"`
	FullName      string     `json:"full_name"`
	AvatarURL     string     `json:"avatar_url"`
	Title         string     `json:"title"`
	School        string     `json:"school"`
	Loaded        bool       `json:"loaded"`
	IsContact     bool       `json:"is_contact"`
	LastMessage   string     `json:"last_message,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	Unread        int64      `json:"unread"`

	seq int
}

func (e *Entry) fill(p *models.Profile) {
	e.FullName = p.FullName
	e.AvatarURL = p.AvatarURL
	e.Title = p.Title
	e.School = p.School
	e.Loaded = true
}

// Directory holds at most one entry per profile id. It is not safe for
// concurrent use.
type Directory struct {
	entries map[uint]*Entry
	seq     int
}

func New() *Directory {
	return &Directory{entries: make(map[uint]*Entry)}
}

// Build merges history summaries and contact profiles. A person found in
// both sources becomes one entry carrying both.
func Build(summaries []Summary, contacts []models.Profile) *Directory {
	d := New()
	for _, s := range summaries {
		d.AddSummary(s)
	}
	for i := range contacts {
		e := d.entry(contacts[i].ID)
		e.IsContact = true
		e.fill(&contacts[i])
	}
	return d
}

func (d *Directory) entry(id uint) *Entry {
	if e, ok := d.entries[id]; ok {
		return e
	}
	d.seq++
	e := &Entry{ProfileID: id, seq: d.seq}
	d.entries[id] = e
	return e
}

// AddSummary records history for a counterpart, keeping the newest.
func (d *Directory) AddSummary(s Summary) {
	if s.CounterpartID == 0 {
		return
	}
	e := d.entry(s.CounterpartID)
	if e.LastMessageAt == nil || s.LastMessageAt.After(*e.LastMessageAt) {
		at := s.LastMessageAt
		e.LastMessageAt = &at
		e.LastMessage = s.LastMessage
	}
	e.Unread = s.Unread
}

// Missing lists ids whose profile fields are not loaded, in insertion order.
func (d *Directory) Missing() []uint {
	var ids []uint
	for _, e := range d.sortedBySeq() {
		if !e.Loaded {
			ids = append(ids, e.ProfileID)
		}
	}
	return ids
}

// Backfill fills the entries named in profiles, whatever source created
// them, and returns how many it updated. Unknown ids are ignored.
func (d *Directory) Backfill(profiles map[uint]*models.Profile) int {
	n := 0
	for id, p := range profiles {
		if e, ok := d.entries[id]; ok && p != nil {
			e.fill(p)
			n++
		}
	}
	return n
}

// Ensure inserts p if no entry exists for it and reports whether it did.
// An existing entry only gets its profile fields refreshed.
func (d *Directory) Ensure(p *models.Profile) bool {
	if p == nil || p.ID == 0 {
		return false
	}
	_, existed := d.entries[p.ID]
	d.entry(p.ID).fill(p)
	return !existed
}

func (d *Directory) Has(id uint) bool {
	_, ok := d.entries[id]
	return ok
}

func (d *Directory) Get(id uint) (Entry, bool) {
	e, ok := d.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// SetUnread overwrites the unread badge and returns the previous value.
func (d *Directory) SetUnread(id uint, n int64) (int64, bool) {
	e, ok := d.entries[id]
	if !ok {
		return 0, false
	}
	prev := e.Unread
	e.Unread = n
	return prev, true
}

func (d *Directory) Len() int { return len(d.entries) }

// Entries returns copies in display order: people with history by newest
// message first, then everybody else in the order they were added.
func (d *Directory) Entries() []Entry {
	all := d.sortedBySeq()
	slices.SortStableFunc(all, func(a, b *Entry) int {
		switch {
		case a.LastMessageAt != nil && b.LastMessageAt != nil:
			return b.LastMessageAt.Compare(*a.LastMessageAt)
		case a.LastMessageAt != nil:
			return -1
		case b.LastMessageAt != nil:
			return 1
		}
		return 0
	})
	out := make([]Entry, len(all))
	for i, e := range all {
		out[i] = *e
	}
	return out
}

func (d *Directory) sortedBySeq() []*Entry {
	all := make([]*Entry, 0, len(d.entries))
	for _, e := range d.entries {
		all = append(all, e)
	}
	slices.SortFunc(all, func(a, b *Entry) int { return a.seq - b.seq })
	return all
}
