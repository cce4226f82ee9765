package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/omnifunnel/visibility-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS clusters (
	id          TEXT PRIMARY KEY,
	site_id     TEXT NOT NULL,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	seed_prompt TEXT NOT NULL,
	keywords    TEXT NOT NULL DEFAULT '[]',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS variants (
	id         TEXT PRIMARY KEY,
	cluster_id TEXT NOT NULL REFERENCES clusters(id),
	batch_id   TEXT NOT NULL,
	text       TEXT NOT NULL,
	strategy   TEXT NOT NULL,
	params     TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	cluster_id     TEXT NOT NULL REFERENCES clusters(id),
	engines        TEXT NOT NULL DEFAULT '[]',
	variant_sample INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL DEFAULT 'queued',
	counts         TEXT NOT NULL DEFAULT '{}',
	error          TEXT NOT NULL DEFAULT '',
	started_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at    DATETIME
);

CREATE TABLE IF NOT EXISTS answers (
	id            TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL REFERENCES runs(id),
	engine        TEXT NOT NULL,
	variant_id    TEXT,
	raw_text      TEXT NOT NULL,
	hash          TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd      REAL NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(run_id, hash)
);

CREATE TABLE IF NOT EXISTS citations (
	id         TEXT PRIMARY KEY,
	answer_id  TEXT NOT NULL REFERENCES answers(id),
	url        TEXT NOT NULL,
	normalized TEXT NOT NULL,
	domain     TEXT NOT NULL,
	position   INTEGER NOT NULL,
	authority  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS scores (
	id              TEXT PRIMARY KEY,
	site_id         TEXT NOT NULL,
	cluster_id      TEXT NOT NULL DEFAULT '',
	total           REAL NOT NULL,
	subscores       TEXT NOT NULL,
	window_days     INTEGER NOT NULL,
	recommendations TEXT NOT NULL DEFAULT '[]',
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_clusters_site_id ON clusters(site_id);
CREATE INDEX IF NOT EXISTS idx_variants_cluster_batch ON variants(cluster_id, batch_id);
CREATE INDEX IF NOT EXISTS idx_runs_cluster_id ON runs(cluster_id);
CREATE INDEX IF NOT EXISTS idx_answers_run_id ON answers(run_id);
CREATE INDEX IF NOT EXISTS idx_answers_created_at ON answers(created_at);
CREATE INDEX IF NOT EXISTS idx_citations_answer_id ON citations(answer_id);
CREATE INDEX IF NOT EXISTS idx_scores_site_created ON scores(site_id, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateCluster(ctx context.Context, c model.Cluster) (*model.Cluster, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = time.Now().UTC()

	keywordsJSON, err := json.Marshal(c.Keywords)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal keywords")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO clusters (id, site_id, name, description, seed_prompt, keywords, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.SiteID, c.Name, c.Description, c.SeedPrompt, string(keywordsJSON), c.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert cluster")
	}
	return &c, nil
}

func (s *SQLiteStore) GetCluster(ctx context.Context, clusterID string) (*model.Cluster, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, site_id, name, description, seed_prompt, keywords, created_at
		 FROM clusters WHERE id = ?`,
		clusterID,
	)

	var c model.Cluster
	var keywordsJSON string
	err := row.Scan(&c.ID, &c.SiteID, &c.Name, &c.Description, &c.SeedPrompt, &keywordsJSON, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: cluster %s", clusterID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cluster")
	}
	if err := json.Unmarshal([]byte(keywordsJSON), &c.Keywords); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal keywords")
	}
	return &c, nil
}

func (s *SQLiteStore) InsertVariants(ctx context.Context, vs []model.Variant) error {
	if len(vs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert variants")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO variants (id, cluster_id, batch_id, text, strategy, params, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert variants")
	}
	defer stmt.Close()

	for _, v := range vs {
		paramsJSON, err := json.Marshal(v.Params)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal variant params")
		}
		if _, err := stmt.ExecContext(ctx,
			v.ID, v.ClusterID, v.BatchID, v.Text, v.Strategy, string(paramsJSON), v.CreatedAt,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert variant %s", v.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit insert variants")
}

func (s *SQLiteStore) ListVariants(ctx context.Context, clusterID string) ([]model.Variant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cluster_id, batch_id, text, strategy, params, created_at
		 FROM variants
		 WHERE cluster_id = ? AND batch_id = (
		 	SELECT batch_id FROM variants WHERE cluster_id = ?
		 	ORDER BY created_at DESC LIMIT 1)
		 ORDER BY created_at, id`,
		clusterID, clusterID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list variants")
	}
	defer rows.Close()

	var out []model.Variant
	for rows.Next() {
		var v model.Variant
		var paramsJSON string
		if err := rows.Scan(&v.ID, &v.ClusterID, &v.BatchID, &v.Text, &v.Strategy, &paramsJSON, &v.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan variant")
		}
		if err := json.Unmarshal([]byte(paramsJSON), &v.Params); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal variant params")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list variants iterate")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, clusterID string, engines []string, variantSample int) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	enginesJSON, err := json.Marshal(engines)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal engines")
	}
	countsJSON, err := json.Marshal(model.JobCounts{})
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal counts")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, cluster_id, engines, variant_sample, status, counts, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, clusterID, string(enginesJSON), variantSample, string(model.RunStatusQueued), string(countsJSON), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:            id,
		ClusterID:     clusterID,
		Engines:       engines,
		VariantSample: variantSample,
		Status:        model.RunStatusQueued,
		StartedAt:     now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, counts model.JobCounts, errMsg string) error {
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal counts")
	}

	var finishedAt any
	if status.Terminal() {
		finishedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, counts = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), string(countsJSON), errMsg, finishedAt, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, cluster_id, engines, variant_sample, status, counts, error, started_at, finished_at
		 FROM runs WHERE id = ?`,
		runID,
	)

	var r model.Run
	var enginesJSON, countsJSON string
	var finishedAt sql.NullTime
	err := row.Scan(&r.ID, &r.ClusterID, &enginesJSON, &r.VariantSample, &r.Status, &countsJSON, &r.Error, &r.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get run")
	}

	if err := json.Unmarshal([]byte(enginesJSON), &r.Engines); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal engines")
	}
	if err := json.Unmarshal([]byte(countsJSON), &r.Counts); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal counts")
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

func (s *SQLiteStore) InsertAnswer(ctx context.Context, a model.Answer) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO answers
		 (id, run_id, engine, variant_id, raw_text, hash, input_tokens, output_tokens, cost_usd, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RunID, a.Engine, a.VariantID, a.RawText, a.Hash,
		a.Usage.InputTokens, a.Usage.OutputTokens, a.CostUSD, a.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert answer")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: insert answer rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrDuplicateAnswer, "sqlite: run %s hash %s", a.RunID, a.Hash)
	}
	return nil
}

func (s *SQLiteStore) InsertCitations(ctx context.Context, cs []model.Citation) error {
	if len(cs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert citations")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO citations (id, answer_id, url, normalized, domain, position, authority)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert citations")
	}
	defer stmt.Close()

	for _, c := range cs {
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.AnswerID, c.URL, c.Normalized, c.Domain, c.Position, c.Authority,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert citation %s", c.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit insert citations")
}

func (s *SQLiteStore) ListAnswers(ctx context.Context, clusterID string, filter AnswerFilter) ([]model.AnswerSummary, error) {
	query := `SELECT a.id, a.run_id, a.engine, a.variant_id, substr(a.raw_text, 1, 240),
	          (SELECT COUNT(*) FROM citations ct WHERE ct.answer_id = a.id), a.created_at
	          FROM answers a
	          JOIN runs r ON r.id = a.run_id
	          WHERE r.cluster_id = ?`
	args := []any{clusterID}

	if filter.Engine != "" {
		query += ` AND a.engine = ?`
		args = append(args, filter.Engine)
	}
	query += ` ORDER BY a.created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list answers")
	}
	defer rows.Close()

	var out []model.AnswerSummary
	for rows.Next() {
		var a model.AnswerSummary
		var variantID sql.NullString
		if err := rows.Scan(&a.ID, &a.RunID, &a.Engine, &variantID, &a.Snippet, &a.CitationCount, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan answer summary")
		}
		a.VariantID = variantID.String
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list answers iterate")
}

func (s *SQLiteStore) Population(ctx context.Context, siteID, clusterID string, since time.Time) ([]model.AnswerRecord, error) {
	query := `SELECT a.id, a.run_id, a.engine, a.variant_id, a.raw_text, a.hash,
	          a.input_tokens, a.output_tokens, a.cost_usd, a.created_at, COALESCE(v.text, '')
	          FROM answers a
	          JOIN runs r ON r.id = a.run_id
	          JOIN clusters c ON c.id = r.cluster_id
	          LEFT JOIN variants v ON v.id = a.variant_id
	          WHERE c.site_id = ? AND a.created_at >= ?`
	args := []any{siteID, since}

	if clusterID != "" {
		query += ` AND c.id = ?`
		args = append(args, clusterID)
	}
	query += ` ORDER BY a.created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: population answers")
	}
	defer rows.Close()

	var recs []model.AnswerRecord
	index := make(map[string]int)
	for rows.Next() {
		var rec model.AnswerRecord
		var variantID sql.NullString
		if err := rows.Scan(
			&rec.Answer.ID, &rec.Answer.RunID, &rec.Answer.Engine, &variantID,
			&rec.Answer.RawText, &rec.Answer.Hash,
			&rec.Answer.Usage.InputTokens, &rec.Answer.Usage.OutputTokens,
			&rec.Answer.CostUSD, &rec.Answer.CreatedAt, &rec.VariantText,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan population answer")
		}
		rec.Answer.VariantID = variantID.String
		index[rec.Answer.ID] = len(recs)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: population answers iterate")
	}
	if len(recs) == 0 {
		return nil, nil
	}

	citeQuery := `SELECT ct.id, ct.answer_id, ct.url, ct.normalized, ct.domain, ct.position, ct.authority
	              FROM citations ct
	              JOIN answers a ON a.id = ct.answer_id
	              JOIN runs r ON r.id = a.run_id
	              JOIN clusters c ON c.id = r.cluster_id
	              WHERE c.site_id = ? AND a.created_at >= ?`
	citeArgs := []any{siteID, since}
	if clusterID != "" {
		citeQuery += ` AND c.id = ?`
		citeArgs = append(citeArgs, clusterID)
	}
	citeQuery += ` ORDER BY ct.answer_id, ct.position`

	citeRows, err := s.db.QueryContext(ctx, citeQuery, citeArgs...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: population citations")
	}
	defer citeRows.Close()

	for citeRows.Next() {
		var c model.Citation
		if err := citeRows.Scan(&c.ID, &c.AnswerID, &c.URL, &c.Normalized, &c.Domain, &c.Position, &c.Authority); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan population citation")
		}
		if i, ok := index[c.AnswerID]; ok {
			recs[i].Citations = append(recs[i].Citations, c)
		}
	}
	return recs, eris.Wrap(citeRows.Err(), "sqlite: population citations iterate")
}

func (s *SQLiteStore) InsertScore(ctx context.Context, sc model.Score) error {
	subJSON, err := json.Marshal(sc.Subscores)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal subscores")
	}
	recJSON, err := json.Marshal(sc.Recommendations)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal recommendations")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scores (id, site_id, cluster_id, total, subscores, window_days, recommendations, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.SiteID, sc.ClusterID, sc.Total, string(subJSON), sc.WindowDays, string(recJSON), sc.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert score")
}

func (s *SQLiteStore) ListScores(ctx context.Context, siteID, clusterID string, limit int) ([]model.Score, error) {
	query := `SELECT id, site_id, cluster_id, total, subscores, window_days, recommendations, created_at
	          FROM scores WHERE site_id = ?`
	args := []any{siteID}

	if clusterID != "" {
		query += ` AND cluster_id = ?`
		args = append(args, clusterID)
	}
	query += ` ORDER BY created_at DESC`

	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scores")
	}
	defer rows.Close()

	var out []model.Score
	for rows.Next() {
		var sc model.Score
		var subJSON, recJSON string
		if err := rows.Scan(&sc.ID, &sc.SiteID, &sc.ClusterID, &sc.Total, &subJSON, &sc.WindowDays, &recJSON, &sc.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan score")
		}
		if err := json.Unmarshal([]byte(subJSON), &sc.Subscores); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal subscores")
		}
		if err := json.Unmarshal([]byte(recJSON), &sc.Recommendations); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal recommendations")
		}
		out = append(out, sc)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list scores iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}
