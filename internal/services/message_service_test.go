package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osslararemellan/ole/internal/conversation"
	"github.com/osslararemellan/ole/internal/models"
	"github.com/osslararemellan/ole/internal/realtime"
	"github.com/osslararemellan/ole/internal/testutil"
)

var base = time.Date(2026, 4, 20, 8, 0, 0, 0, time.UTC)

func TestMessageService_SendDirect(t *testing.T) {
	f := newFixture(t, 0)
	f.clock(base)
	testutil.SeedProfiles(t, f.db, 1, 2)
	ctx := context.Background()

	res := f.resource(t, 1, "Bråk")
	file, err := f.fileSvc.Upload(ctx, 1, "plan.pdf", "application/pdf", 3, strings.NewReader("pdf"))
	require.NoError(t, err)

	msg, err := f.messageSvc.Send(ctx, 1, conversation.Direct(2), SendRequest{
		Content:     "Titta på den här",
		MaterialIDs: []uint{res.ID, res.ID, 0},
		FileIDs:     []uint{file.ID},
	})
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	require.NotNil(t, msg.ReceiverID)
	assert.Equal(t, uint(2), *msg.ReceiverID)
	assert.Nil(t, msg.GroupID)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, "User 1", msg.Sender.FullName)
	require.Len(t, msg.Materials, 1, "duplicate material ids collapse")
	assert.Equal(t, "Bråk", msg.Materials[0].Title)
	require.Len(t, msg.Files, 1)
	assert.True(t, strings.HasPrefix(msg.Files[0].URL, "https://blobs.test/1/"))

	events := f.pub.Events("messages")
	require.Len(t, events, 1)
	assert.Equal(t, realtime.Insert, events[0].EventType)
	id, ok := events[0].New.Int64("id")
	require.True(t, ok)
	assert.Equal(t, msg.ID, id)

	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"id":"`)
}

func TestMessageService_SendRejects(t *testing.T) {
	f := newFixture(t, 0)
	testutil.SeedProfiles(t, f.db, 1, 2, 3)
	ctx := context.Background()

	r1, r2, r3, r4 := f.resource(t, 1, "a"), f.resource(t, 1, "b"), f.resource(t, 1, "c"), f.resource(t, 1, "d")
	var theirs uint
	{
		file, err := f.fileSvc.Upload(ctx, 2, "x.png", "image/png", 1, strings.NewReader("x"))
		require.NoError(t, err)
		theirs = file.ID
	}
	pending := f.group(t, 3, false, map[uint]string{1: models.MemberStatusPending})
	other := f.group(t, 3, false, nil)

	cases := []struct {
		name   string
		target conversation.Target
		req    SendRequest
		want   error
	}{
		{"no target", conversation.None(), SendRequest{Content: "x"}, ErrInvalidTarget},
		{"self", conversation.Direct(1), SendRequest{Content: "x"}, ErrSelfTarget},
		{"blank", conversation.Direct(2), SendRequest{Content: " \n\t "}, ErrEmptyMessage},
		{"unknown receiver", conversation.Direct(99), SendRequest{Content: "x"}, ErrNotFound},
		{"four materials", conversation.Direct(2), SendRequest{MaterialIDs: []uint{r1.ID, r2.ID, r3.ID, r4.ID}}, ErrTooManyMaterials},
		{"four files", conversation.Direct(2), SendRequest{FileIDs: []uint{11, 12, 13, 14}}, ErrTooManyFiles},
		{"unknown material", conversation.Direct(2), SendRequest{MaterialIDs: []uint{999}}, ErrUnknownMaterial},
		{"foreign file", conversation.Direct(2), SendRequest{FileIDs: []uint{theirs}}, ErrFileNotOwned},
		{"pending member", conversation.Group(pending.ID), SendRequest{Content: "x"}, ErrMembershipNotApproved},
		{"not a member", conversation.Group(other.ID), SendRequest{Content: "x"}, ErrNotMember},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.messageSvc.Send(ctx, 1, tc.target, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&models.Message{}).Count(&count).Error)
	assert.Zero(t, count, "rejected sends write nothing")
	assert.Empty(t, f.pub.Events("messages"))
}

func TestMessageService_AttachmentOnlyMessage(t *testing.T) {
	f := newFixture(t, 0)
	testutil.SeedProfiles(t, f.db, 1, 2)
	res := f.resource(t, 2, "Glosor")

	msg, err := f.messageSvc.Send(context.Background(), 1, conversation.Direct(2), SendRequest{MaterialIDs: []uint{res.ID}})
	require.NoError(t, err)
	assert.Empty(t, msg.Content)
	assert.Len(t, msg.Materials, 1)
}

func TestMessageService_RateLimit(t *testing.T) {
	f := newFixture(t, 2)
	testutil.SeedProfiles(t, f.db, 1, 2)
	ctx := context.Background()

	for range 2 {
		_, err := f.messageSvc.Send(ctx, 1, conversation.Direct(2), SendRequest{Content: "hej"})
		require.NoError(t, err)
	}
	_, err := f.messageSvc.Send(ctx, 1, conversation.Direct(2), SendRequest{Content: "hej"})
	assert.ErrorIs(t, err, ErrRateLimited)

	_, err = f.messageSvc.Send(ctx, 2, conversation.Direct(1), SendRequest{Content: "svar"})
	assert.NoError(t, err, "limits are per sender")

	f.mr.SetError("redis down")
	_, err = f.messageSvc.Send(ctx, 1, conversation.Direct(2), SendRequest{Content: "ändå"})
	assert.NoError(t, err, "limiter fails open")
}

func TestMessageService_HistoryAndMarkRead(t *testing.T) {
	f := newFixture(t, 0)
	f.clock(base)
	testutil.SeedProfiles(t, f.db, 1, 2, 3)
	ctx := context.Background()

	for _, s := range []struct {
		from, to uint
		text     string
	}{{1, 2, "ett"}, {2, 1, "två"}, {3, 1, "annan"}, {2, 1, "tre"}} {
		_, err := f.messageSvc.Send(ctx, s.from, conversation.Direct(s.to), SendRequest{Content: s.text})
		require.NoError(t, err)
	}

	history, err := f.messageSvc.History(ctx, 1, conversation.Direct(2))
	require.NoError(t, err)
	var texts []string
	for _, m := range history {
		texts = append(texts, m.Content)
	}
	assert.Equal(t, []string{"ett", "två", "tre"}, texts)

	n, err := f.messageSvc.MarkRead(ctx, 1, conversation.Direct(2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	n, err = f.messageSvc.MarkRead(ctx, 1, conversation.Direct(2))
	require.NoError(t, err)
	assert.Zero(t, n)

	summaries, err := f.messageSvc.Summaries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, uint(2), summaries[0].CounterpartID)
	assert.Equal(t, "tre", summaries[0].LastMessage)
	assert.Zero(t, summaries[0].Unread)
	assert.Equal(t, uint(3), summaries[1].CounterpartID)
	assert.Equal(t, int64(1), summaries[1].Unread)

	_, err = f.messageSvc.History(ctx, 1, conversation.None())
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestMessageService_GroupConversation(t *testing.T) {
	f := newFixture(t, 0)
	f.clock(base)
	testutil.SeedProfiles(t, f.db, 1, 2, 3)
	ctx := context.Background()
	g := f.group(t, 1, false, map[uint]string{2: models.MemberStatusApproved, 3: models.MemberStatusPending})

	_, err := f.messageSvc.Send(ctx, 1, conversation.Group(g.ID), SendRequest{Content: "välkomna"})
	require.NoError(t, err)
	_, err = f.messageSvc.Send(ctx, 2, conversation.Group(g.ID), SendRequest{Content: "tack"})
	require.NoError(t, err)

	history, err := f.messageSvc.History(ctx, 2, conversation.Group(g.ID))
	require.NoError(t, err)
	assert.Len(t, history, 2)

	_, err = f.messageSvc.History(ctx, 3, conversation.Group(g.ID))
	assert.ErrorIs(t, err, ErrMembershipNotApproved)

	entries, err := f.groupSvc.Directory(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].Unread)

	_, err = f.messageSvc.MarkRead(ctx, 2, conversation.Group(g.ID))
	require.NoError(t, err)
	entries, err = f.groupSvc.Directory(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, entries[0].Unread)

	_, err = f.messageSvc.MarkRead(ctx, 3, conversation.Group(g.ID))
	assert.ErrorIs(t, err, ErrMembershipNotApproved)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b", snippet(" a \n b "))
	long := strings.Repeat("å", 150)
	got := snippet(long)
	assert.Equal(t, strings.Repeat("å", 100)+"…", got)
}
