package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnifunnel/visibility-cli/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresFromPool(mock), mock
}

func TestPostgresGetClusterNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, site_id, name, description, seed_prompt, keywords, created_at`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetCluster(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetCluster(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, site_id, name, description, seed_prompt, keywords, created_at`).
		WithArgs("cl-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "site_id", "name", "description", "seed_prompt", "keywords", "created_at"}).
			AddRow("cl-1", "site-1", "crm tools", "", "best crm tools", []byte(`["crm","sales"]`), now))

	got, err := store.GetCluster(context.Background(), "cl-1")
	require.NoError(t, err)
	assert.Equal(t, "site-1", got.SiteID)
	assert.Equal(t, []string{"crm", "sales"}, got.Keywords)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertAnswerDuplicate(t *testing.T) {
	store, mock := newMockStore(t)

	a := model.Answer{
		ID: "a1", RunID: "r1", Engine: "openai",
		RawText: "text", Hash: model.HashText("text"),
		CreatedAt: time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO answers`).
		WithArgs(a.ID, a.RunID, a.Engine, a.VariantID, a.RawText, a.Hash, 0, 0, 0.0, a.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := store.InsertAnswer(context.Background(), a)
	assert.ErrorIs(t, err, ErrDuplicateAnswer)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertAnswer(t *testing.T) {
	store, mock := newMockStore(t)

	a := model.Answer{
		ID: "a1", RunID: "r1", Engine: "openai",
		RawText: "text", Hash: model.HashText("text"),
		Usage:     model.TokenUsage{InputTokens: 10, OutputTokens: 20},
		CreatedAt: time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO answers`).
		WithArgs(a.ID, a.RunID, a.Engine, a.VariantID, a.RawText, a.Hash, 10, 20, 0.0, a.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, store.InsertAnswer(context.Background(), a))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateRunStatus(t *testing.T) {
	store, mock := newMockStore(t)

	counts := model.JobCounts{Total: 4, Succeeded: 4}
	countsJSON, err := json.Marshal(counts)
	require.NoError(t, err)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("completed", countsJSON, "", pgxmock.AnyArg(), "r1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.UpdateRunStatus(context.Background(), "r1", model.RunStatusCompleted, counts, ""))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateRunStatusNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("failed", pgxmock.AnyArg(), "boom", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateRunStatus(context.Background(), "missing", model.RunStatusFailed, model.JobCounts{}, "boom")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertVariantsUsesCopy(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	vs := []model.Variant{
		{ID: "v1", ClusterID: "cl-1", BatchID: "b1", Text: "one", Strategy: "paraphrase", CreatedAt: now},
		{ID: "v2", ClusterID: "cl-1", BatchID: "b1", Text: "two", Strategy: "question_form", CreatedAt: now},
	}

	mock.ExpectCopyFrom(
		pgx.Identifier{"variants"},
		[]string{"id", "cluster_id", "batch_id", "text", "strategy", "params", "created_at"},
	).WillReturnResult(2)

	require.NoError(t, store.InsertVariants(context.Background(), vs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertCitationsUsesCopy(t *testing.T) {
	store, mock := newMockStore(t)

	cs := []model.Citation{
		{ID: "c1", AnswerID: "a1", URL: "https://example.com", Normalized: "example.com", Domain: "example.com", Position: 0, Authority: 40},
	}

	mock.ExpectCopyFrom(
		pgx.Identifier{"citations"},
		[]string{"id", "answer_id", "url", "normalized", "domain", "position", "authority"},
	).WillReturnResult(1)

	require.NoError(t, store.InsertCitations(context.Background(), cs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListScores(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	sub := model.Subscores{PromptSOV: 60, AnswerQuality: 45}
	subJSON, err := json.Marshal(sub)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT id, site_id, cluster_id, total, subscores, window_days, recommendations, created_at`).
		WithArgs("site-1", 100).
		WillReturnRows(pgxmock.NewRows([]string{"id", "site_id", "cluster_id", "total", "subscores", "window_days", "recommendations", "created_at"}).
			AddRow("sc-1", "site-1", "", 42.5, subJSON, 30, []byte(`[]`), now))

	got, err := store.ListScores(context.Background(), "site-1", "", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 42.5, got[0].Total)
	assert.Equal(t, sub, got[0].Subscores)
	assert.NoError(t, mock.ExpectationsWereMet())
}
