package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/convsync/internal/model"
	"github.com/roach88/convsync/internal/upload"
)

var recordedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func orphan(digest string, at time.Time) upload.Orphan {
	return upload.Orphan{
		Digest:     digest,
		Name:       digest + ".png",
		Attachment: model.Attachment{URL: "/uploads/" + digest, Kind: model.AttachmentImage},
		RecordedAt: at,
	}
}

func TestOrphans_ClaimOnce(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.RecordOrphan(ctx, orphan("abc", recordedAt)))

	got, ok, err := s.ClaimOrphan(ctx, "abc", recordedAt.Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, orphan("abc", recordedAt), got)

	_, ok, err = s.ClaimOrphan(ctx, "abc", recordedAt.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "a claimed orphan is gone")
}

func TestOrphans_ExpiredIsDiscarded(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.RecordOrphan(ctx, orphan("old", recordedAt)))

	_, ok, err := s.ClaimOrphan(ctx, "old", recordedAt.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM orphan_uploads`).Scan(&n))
	assert.Zero(t, n)
}

func TestOrphans_RecordReplaces(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.RecordOrphan(ctx, orphan("abc", recordedAt)))

	newer := orphan("abc", recordedAt.Add(time.Hour))
	newer.Attachment.URL = "/uploads/second"
	require.NoError(t, s.RecordOrphan(ctx, newer))

	got, ok, err := s.ClaimOrphan(ctx, "abc", recordedAt)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/uploads/second", got.Attachment.URL)
}

func TestOrphans_Prune(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.RecordOrphan(ctx, orphan("a", recordedAt)))
	require.NoError(t, s.RecordOrphan(ctx, orphan("b", recordedAt.Add(2*time.Hour))))

	n, err := s.PruneOrphans(ctx, recordedAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, ok, err := s.ClaimOrphan(ctx, "b", recordedAt)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOrphans_PipelineReusesCachedUpload(t *testing.T) {
	s := createTestStore(t)
	uploader := &countingUploader{}
	now := recordedAt
	p := upload.New(uploader, upload.WithOrphanLedger(s), upload.WithNow(func() time.Time { return now }))

	files := []upload.File{{Name: "a.txt", Data: []byte("same bytes")}}
	batch, err := p.Upload(context.Background(), files)
	require.NoError(t, err)
	p.Abandon(context.Background(), batch)

	now = now.Add(time.Minute)
	again, err := p.Upload(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, again.Items, 1)
	assert.True(t, again.Items[0].Reused)
	assert.Equal(t, 1, uploader.calls)
}

type countingUploader struct{ calls int }

func (u *countingUploader) UploadFile(_ context.Context, name, _ string, _ []byte) (model.Attachment, error) {
	u.calls++
	return model.Attachment{URL: "/uploads/" + name, Kind: model.AttachmentFile}, nil
}

func TestClaimOrphan_DeleteFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT digest, name, file_url, file_type, recorded_at").
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows([]string{"digest", "name", "file_url", "file_type", "recorded_at"}).
			AddRow("abc", "a.png", "/u/a", "image", recordedAt.UnixMilli()))
	mock.ExpectExec("DELETE FROM orphan_uploads").WithArgs("abc").WillReturnError(errors.New("readonly database"))
	mock.ExpectRollback()

	_, ok, err := NewWithDB(db).ClaimOrphan(context.Background(), "abc", recordedAt)
	assert.False(t, ok)
	assert.ErrorContains(t, err, "readonly database")
	assert.NoError(t, mock.ExpectationsWereMet())
}
