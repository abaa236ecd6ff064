package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/osslararemellan/ole/internal/conversation"
	"github.com/osslararemellan/ole/internal/models"
	"github.com/osslararemellan/ole/internal/testutil"
)

func send(t *testing.T, repo *MessageRepository, id int64, from uint, to conversation.Target, content string, at time.Time) *models.Message {
	t.Helper()
	m, err := models.NewMessage(from, to, content)
	require.NoError(t, err)
	m.ID = id
	m.CreatedAt = at
	require.NoError(t, repo.Create(context.Background(), m, nil, nil))
	return m
}

func TestMessageRepository_History(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()
	testutil.SeedProfiles(t, db, 1, 2, 3)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	send(t, repo, 1, 1, conversation.Direct(2), "hi", base)
	send(t, repo, 2, 2, conversation.Direct(1), "hello", base.Add(time.Minute))
	send(t, repo, 3, 1, conversation.Direct(3), "other thread", base.Add(2*time.Minute))
	send(t, repo, 4, 3, conversation.Group(7), "group", base.Add(3*time.Minute))

	res := &models.Resource{Title: "Algebra", Subject: "Ma", Grade: "7", ResourceType: "pdf", FilePath: "r/a.pdf", AuthorID: 1}
	require.NoError(t, db.Create(res).Error)
	file := &models.UploadedFile{OwnerID: 1, StorageKey: "1/5_x.png", FileName: "x.png", Size: 10}
	require.NoError(t, db.Create(file).Error)
	m, err := models.NewMessage(1, conversation.Direct(2), "")
	require.NoError(t, err)
	m.ID = 5
	m.CreatedAt = base.Add(4 * time.Minute)
	require.NoError(t, repo.Create(ctx, m, []uint{res.ID}, []uint{file.ID}))

	history, err := repo.History(ctx, 1, conversation.Direct(2), 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []int64{1, 2, 5}, []int64{history[0].ID, history[1].ID, history[2].ID})
	require.NotNil(t, history[1].Sender)
	assert.Equal(t, "User 2", history[1].Sender.FullName)
	assert.Empty(t, history[1].Sender.School, "sender is a projection")
	require.Len(t, history[2].Materials, 1)
	assert.Equal(t, "Algebra", history[2].Materials[0].Resource.Title)
	require.Len(t, history[2].Files, 1)
	assert.Equal(t, "x.png", history[2].Files[0].File.FileName)

	same, err := repo.History(ctx, 2, conversation.Direct(1), 0)
	require.NoError(t, err)
	assert.Len(t, same, 3, "both directions")

	latest, err := repo.History(ctx, 1, conversation.Direct(2), 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, int64(2), latest[0].ID)
	assert.Equal(t, int64(5), latest[1].ID)

	group, err := repo.History(ctx, 1, conversation.Group(7), 0)
	require.NoError(t, err)
	require.Len(t, group, 1)

	none, err := repo.History(ctx, 1, conversation.None(), 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMessageRepository_AddresseeCheck(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewMessageRepository(db)
	receiver, group := uint(2), uint(3)

	both := &models.Message{ID: 1, SenderID: 1, ReceiverID: &receiver, GroupID: &group}
	assert.Error(t, repo.Create(context.Background(), both, nil, nil))

	neither := &models.Message{ID: 2, SenderID: 1}
	assert.Error(t, repo.Create(context.Background(), neither, nil, nil))
}

func TestMessageRepository_AttachmentsRollBack(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewMessageRepository(db)
	m, err := models.NewMessage(1, conversation.Direct(2), "x")
	require.NoError(t, err)
	m.ID = 1

	// duplicate join rows violate the unique index, undoing the message too
	err = repo.Create(context.Background(), m, []uint{4, 4}, nil)
	require.Error(t, err)
	_, err = repo.GetByID(context.Background(), 1)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestMessageRepository_SummariesAndRead(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	// A=1, C=3 has two messages (latest at T2), D=4 one (T1 < T2)
	send(t, repo, 1, 3, conversation.Direct(1), "c1", base)
	send(t, repo, 2, 4, conversation.Direct(1), "d1", base.Add(time.Minute))
	send(t, repo, 3, 1, conversation.Direct(3), "c2", base.Add(2*time.Minute))
	send(t, repo, 4, 1, conversation.Group(9), "group noise", base.Add(3*time.Minute))

	sums, err := repo.Summaries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.Equal(t, uint(3), sums[0].CounterpartID)
	assert.Equal(t, "c2", sums[0].Last.Content)
	assert.Equal(t, int64(1), sums[0].Unread)
	assert.Equal(t, uint(4), sums[1].CounterpartID)
	assert.Equal(t, int64(1), sums[1].Unread)

	n, err := repo.MarkDirectRead(ctx, 1, 3, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = repo.MarkDirectRead(ctx, 1, 3, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	sums, err = repo.Summaries(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, sums[0].Unread)

	empty, err := repo.Summaries(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
