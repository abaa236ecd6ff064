package repositories

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osslararemellan/ole/internal/models"
	"github.com/osslararemellan/ole/internal/testutil"
)

func seedLibrary(t *testing.T, repo *ResourceRepository) []models.Resource {
	t.Helper()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	rows := []models.Resource{
		{Title: "Bråk för nybörjare", Description: "Introduktion", Subject: "Matematik", Grade: "4", Difficulty: "easy", ResourceType: "worksheet", FilePath: "a", AuthorID: 1},
		{Title: "Ekvationer", Description: "Linjära ekvationer", Subject: "Matematik", Grade: "7", Difficulty: "medium", ResourceType: "pdf", FilePath: "b", AuthorID: 1},
		{Title: "Andragradare", Description: "", Subject: "Matematik", Grade: "7", Difficulty: "hard", ResourceType: "pdf", FilePath: "c", AuthorID: 2},
		{Title: "Fotosyntes", Description: "Växter och ljus", Subject: "Biologi", Grade: "7", Difficulty: "medium", ResourceType: "video", FilePath: "d", AuthorID: 2},
	}
	for i := range rows {
		rows[i].CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, repo.Create(context.Background(), &rows[i]))
	}
	return rows
}

func TestResourceRepository_Search(t *testing.T) {
	repo := NewResourceRepository(testutil.NewDB(t))
	rows := seedLibrary(t, repo)
	ctx := context.Background()

	got, total, err := repo.Search(ctx, ResourceFilter{Subject: "Matematik", Grade: "7"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, got, 2)
	assert.Equal(t, rows[2].ID, got[0].ID, "newest first")

	got, total, err = repo.Search(ctx, ResourceFilter{Query: "EKVATION"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "Ekvationer", got[0].Title)

	got, _, err = repo.Search(ctx, ResourceFilter{Query: "ljus", Subject: "Biologi"})
	require.NoError(t, err)
	require.Len(t, got, 1, "description matches")

	got, total, err = repo.Search(ctx, ResourceFilter{AuthorID: 2, Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, got, 1)
	assert.Equal(t, rows[2].ID, got[0].ID)
}

func TestResourceRepository_Facets(t *testing.T) {
	repo := NewResourceRepository(testutil.NewDB(t))
	seedLibrary(t, repo)
	ctx := context.Background()

	f, err := repo.Facets(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Biologi", "Matematik"}, f.Subjects)
	assert.Empty(t, f.Grades)

	f, err = repo.Facets(ctx, "Matematik", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "7"}, f.Grades)
	assert.Empty(t, f.Difficulties)

	f, err = repo.Facets(ctx, "Matematik", "7")
	require.NoError(t, err)
	assert.Equal(t, []string{"hard", "medium"}, f.Difficulties)
}

func TestResourceRepository_Downloads(t *testing.T) {
	repo := NewResourceRepository(testutil.NewDB(t))
	rows := seedLibrary(t, repo)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			_, err := repo.IncrementDownloads(ctx, rows[0].ID)
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	got, err := repo.GetByID(ctx, rows[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.Downloads)

	_, err = repo.IncrementDownloads(ctx, 999)
	assert.True(t, IsNotFound(err))
}

func TestResourceRepository_CRUD(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewResourceRepository(db)
	rows := seedLibrary(t, repo)
	ctx := context.Background()

	ids, err := repo.ExistingIDs(ctx, []uint{rows[0].ID, 999})
	require.NoError(t, err)
	assert.Equal(t, []uint{rows[0].ID}, ids)

	require.NoError(t, repo.Update(ctx, rows[0].ID, map[string]any{"title": "Bråk"}))
	got, err := repo.GetByID(ctx, rows[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Bråk", got.Title)

	require.NoError(t, repo.Delete(ctx, rows[0].ID))
	assert.True(t, IsNotFound(repo.Delete(ctx, rows[0].ID)))

	files := NewFileRepository(db)
	f := &models.UploadedFile{OwnerID: 1, StorageKey: "1/1_a.pdf", FileName: "a.pdf", Size: 3}
	require.NoError(t, files.Create(ctx, f))
	owned, err := files.OwnedIDs(ctx, 1, []uint{f.ID, f.ID + 1})
	require.NoError(t, err)
	assert.Equal(t, []uint{f.ID}, owned)
	owned, err = files.OwnedIDs(ctx, 2, []uint{f.ID})
	require.NoError(t, err)
	assert.Empty(t, owned)
}
