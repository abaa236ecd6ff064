package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memberRow struct {
	GroupID uint   `json:"group_id"`
	UserID  uint   `json:"user_id"`
	Status  string `json:"status"`
}

func TestNewChangeEventRoundTrip(t *testing.T) {
	ev, err := NewChangeEvent("group_members", Update,
		memberRow{GroupID: 3, UserID: 7, Status: "approved"},
		memberRow{GroupID: 3, UserID: 7, Status: "pending"})
	require.NoError(t, err)
	assert.Equal(t, DefaultSchema, ev.Schema)

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	got, err := DecodeEvent(raw)
	require.NoError(t, err)

	assert.Equal(t, Update, got.EventType)
	gid, ok := got.New.Uint("group_id")
	require.True(t, ok)
	assert.Equal(t, uint(3), gid)
	status, _ := got.Old.String("status")
	assert.Equal(t, "approved", status)
	assert.Equal(t, "pending", got.Row()["status"])
	assert.WithinDuration(t, ev.CommitTimestamp, got.CommitTimestamp, 0)
}

func TestRowForDelete(t *testing.T) {
	ev, err := NewChangeEvent("group_members", Delete, memberRow{GroupID: 1, UserID: 2}, nil)
	require.NoError(t, err)
	assert.Nil(t, ev.New)
	uid, ok := ev.Row().Uint("user_id")
	assert.True(t, ok)
	assert.Equal(t, uint(2), uid)
}

func TestRecordAccessors(t *testing.T) {
	big := int64(1) << 60
	r := Record{
		"n":    json.Number("42"),
		"big":  json.Number("1152921504606846976"),
		"f":    float64(5),
		"neg":  -1,
		"s":    "9",
		"word": "x",
	}
	v, ok := r.Uint("n")
	assert.True(t, ok)
	assert.Equal(t, uint(42), v)
	i, ok := r.Int64("big")
	assert.True(t, ok)
	assert.Equal(t, big, i)
	v, _ = r.Uint("f")
	assert.Equal(t, uint(5), v)
	_, ok = r.Uint("neg")
	assert.False(t, ok)
	v, ok = r.Uint("s")
	assert.True(t, ok)
	assert.Equal(t, uint(9), v)
	_, ok = r.Uint("word")
	assert.False(t, ok)
	_, ok = r.Uint("missing")
	assert.False(t, ok)
}

func TestFilterMatches(t *testing.T) {
	ev, err := NewChangeEvent("group_members", Delete, memberRow{GroupID: 3, UserID: 7}, nil)
	require.NoError(t, err)

	assert.True(t, Filter{Table: "group_members"}.matches(ev))
	assert.True(t, Filter{Table: "group_members", Events: []EventType{Delete, Update}, Match: map[string]any{"group_id": uint(3), "user_id": 7}}.matches(ev))
	assert.False(t, Filter{Table: "group_members", Events: []EventType{Insert}}.matches(ev))
	assert.False(t, Filter{Table: "group_members", Match: map[string]any{"user_id": 8}}.matches(ev))
	assert.False(t, Filter{Table: "messages"}.matches(ev))
	assert.False(t, Filter{Schema: "audit", Table: "group_members"}.matches(ev))
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "realtime:public:messages", Topic("", "messages"))
	assert.Equal(t, "realtime:audit:x", Topic("audit", "x"))
}
