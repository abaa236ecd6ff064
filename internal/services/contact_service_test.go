package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osslararemellan/ole/internal/conversation"
	"github.com/osslararemellan/ole/internal/directory"
	"github.com/osslararemellan/ole/internal/models"
	"github.com/osslararemellan/ole/internal/testutil"
)

func entryIDs(entries []directory.Entry) []uint {
	out := make([]uint, len(entries))
	for i, e := range entries {
		out[i] = e.ProfileID
	}
	return out
}

func TestContactService_Directory(t *testing.T) {
	f := newFixture(t, 0)
	f.clock(base)
	const me, b, c, d = 1, 2, 3, 4
	testutil.SeedProfiles(t, f.db, me, b, c, d)
	ctx := context.Background()

	_, err := f.messageSvc.Send(ctx, d, conversation.Direct(me), SendRequest{Content: "först"})
	require.NoError(t, err)
	_, err = f.messageSvc.Send(ctx, me, conversation.Direct(c), SendRequest{Content: "sen"})
	require.NoError(t, err)
	require.NoError(t, f.contactSvc.AddContact(ctx, me, b))
	require.NoError(t, f.contactSvc.AddContact(ctx, me, d))

	dir, err := f.contactSvc.Directory(ctx, me)
	require.NoError(t, err)
	entries := dir.Entries()
	assert.Equal(t, []uint{c, d, b}, entryIDs(entries))
	for _, e := range entries {
		assert.True(t, e.Loaded, "entry %d backfilled", e.ProfileID)
		assert.NotEmpty(t, e.FullName)
	}
	assert.True(t, entries[1].IsContact)
	assert.Equal(t, int64(1), entries[1].Unread)
	assert.False(t, entries[0].IsContact)
}

func TestContactService_Resolve(t *testing.T) {
	f := newFixture(t, 0)
	testutil.SeedProfiles(t, f.db, 1, 5)
	ctx := context.Background()

	dir, err := f.contactSvc.Directory(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, dir.Len())

	e, err := f.contactSvc.Resolve(ctx, dir, 5)
	require.NoError(t, err)
	assert.Equal(t, "User 5", e.FullName)
	_, err = f.contactSvc.Resolve(ctx, dir, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, dir.Len())

	_, err = f.contactSvc.Resolve(ctx, dir, 77)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, dir.Len())
}

func TestContactService_Edges(t *testing.T) {
	f := newFixture(t, 0)
	testutil.SeedProfiles(t, f.db, 1, 2)
	ctx := context.Background()

	assert.ErrorIs(t, f.contactSvc.AddContact(ctx, 1, 1), ErrSelfTarget)
	assert.ErrorIs(t, f.contactSvc.AddContact(ctx, 1, 42), ErrNotFound)
	require.NoError(t, f.contactSvc.AddContact(ctx, 1, 2))
	require.NoError(t, f.contactSvc.AddContact(ctx, 1, 2))

	list, err := f.contactSvc.ListContacts(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, f.contactSvc.RemoveContact(ctx, 1, 2))
	assert.ErrorIs(t, f.contactSvc.RemoveContact(ctx, 1, 2), ErrNotFound)

	var count int64
	require.NoError(t, f.db.Model(&models.Contact{}).Count(&count).Error)
	assert.Zero(t, count)
}
