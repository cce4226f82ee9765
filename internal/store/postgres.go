package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/omnifunnel/visibility-cli/internal/db"
	"github.com/omnifunnel/visibility-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot path: run bookkeeping and answer recording.
var preparedStatements = map[string]string{
	"insert_run":        `INSERT INTO runs (id, cluster_id, engines, variant_sample, status, counts, started_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"update_run_status": `UPDATE runs SET status = $1, counts = $2, error = $3, finished_at = $4 WHERE id = $5`,
	"get_run":           `SELECT id, cluster_id, engines, variant_sample, status, counts, error, started_at, finished_at FROM runs WHERE id = $1`,
	"insert_answer":     `INSERT INTO answers (id, run_id, engine, variant_id, raw_text, hash, input_tokens, output_tokens, cost_usd, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) ON CONFLICT (run_id, hash) DO NOTHING`,
	"get_cluster":       `SELECT id, site_id, name, description, seed_prompt, keywords, created_at FROM clusters WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool, used by tests to substitute a
// mock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS clusters (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	site_id     TEXT NOT NULL,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	seed_prompt TEXT NOT NULL,
	keywords    JSONB NOT NULL DEFAULT '[]',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS variants (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	cluster_id TEXT NOT NULL REFERENCES clusters(id),
	batch_id   TEXT NOT NULL,
	text       TEXT NOT NULL,
	strategy   TEXT NOT NULL,
	params     JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	cluster_id     TEXT NOT NULL REFERENCES clusters(id),
	engines        JSONB NOT NULL DEFAULT '[]',
	variant_sample INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL DEFAULT 'queued',
	counts         JSONB NOT NULL DEFAULT '{}',
	error          TEXT NOT NULL DEFAULT '',
	started_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS answers (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id        TEXT NOT NULL REFERENCES runs(id),
	engine        TEXT NOT NULL,
	variant_id    TEXT,
	raw_text      TEXT NOT NULL,
	hash          TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd      DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(run_id, hash)
);

CREATE TABLE IF NOT EXISTS citations (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	answer_id  TEXT NOT NULL REFERENCES answers(id),
	url        TEXT NOT NULL,
	normalized TEXT NOT NULL,
	domain     TEXT NOT NULL,
	position   INTEGER NOT NULL,
	authority  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS scores (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	site_id         TEXT NOT NULL,
	cluster_id      TEXT NOT NULL DEFAULT '',
	total           DOUBLE PRECISION NOT NULL,
	subscores       JSONB NOT NULL,
	window_days     INTEGER NOT NULL,
	recommendations JSONB NOT NULL DEFAULT '[]',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_clusters_site_id ON clusters(site_id);
CREATE INDEX IF NOT EXISTS idx_variants_cluster_batch ON variants(cluster_id, batch_id);
CREATE INDEX IF NOT EXISTS idx_runs_cluster_id ON runs(cluster_id);
CREATE INDEX IF NOT EXISTS idx_answers_run_id ON answers(run_id);
CREATE INDEX IF NOT EXISTS idx_answers_created_at ON answers(created_at);
CREATE INDEX IF NOT EXISTS idx_citations_answer_id ON citations(answer_id);
CREATE INDEX IF NOT EXISTS idx_scores_site_created ON scores(site_id, created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateCluster(ctx context.Context, c model.Cluster) (*model.Cluster, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = time.Now().UTC()

	keywordsJSON, err := json.Marshal(c.Keywords)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal keywords")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO clusters (id, site_id, name, description, seed_prompt, keywords, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.SiteID, c.Name, c.Description, c.SeedPrompt, keywordsJSON, c.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert cluster")
	}
	return &c, nil
}

func (s *PostgresStore) GetCluster(ctx context.Context, clusterID string) (*model.Cluster, error) {
	var c model.Cluster
	var keywordsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, site_id, name, description, seed_prompt, keywords, created_at
		 FROM clusters WHERE id = $1`,
		clusterID,
	).Scan(&c.ID, &c.SiteID, &c.Name, &c.Description, &c.SeedPrompt, &keywordsJSON, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: cluster %s", clusterID)
		}
		return nil, eris.Wrap(err, "postgres: get cluster")
	}
	if err := json.Unmarshal(keywordsJSON, &c.Keywords); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal keywords")
	}
	return &c, nil
}

func (s *PostgresStore) InsertVariants(ctx context.Context, vs []model.Variant) error {
	if len(vs) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(vs))
	for _, v := range vs {
		paramsJSON, err := json.Marshal(v.Params)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal variant params")
		}
		rows = append(rows, []any{v.ID, v.ClusterID, v.BatchID, v.Text, v.Strategy, paramsJSON, v.CreatedAt})
	}

	_, err := db.CopyFrom(ctx, s.pool, "variants",
		[]string{"id", "cluster_id", "batch_id", "text", "strategy", "params", "created_at"},
		rows,
	)
	return eris.Wrap(err, "postgres: insert variants")
}

func (s *PostgresStore) ListVariants(ctx context.Context, clusterID string) ([]model.Variant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, cluster_id, batch_id, text, strategy, params, created_at
		 FROM variants
		 WHERE cluster_id = $1 AND batch_id = (
		 	SELECT batch_id FROM variants WHERE cluster_id = $1
		 	ORDER BY created_at DESC LIMIT 1)
		 ORDER BY created_at, id`,
		clusterID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list variants")
	}
	defer rows.Close()

	var out []model.Variant
	for rows.Next() {
		var v model.Variant
		var paramsJSON []byte
		if err := rows.Scan(&v.ID, &v.ClusterID, &v.BatchID, &v.Text, &v.Strategy, &paramsJSON, &v.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan variant")
		}
		if err := json.Unmarshal(paramsJSON, &v.Params); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal variant params")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list variants iterate")
}

func (s *PostgresStore) CreateRun(ctx context.Context, clusterID string, engines []string, variantSample int) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	enginesJSON, err := json.Marshal(engines)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal engines")
	}
	countsJSON, err := json.Marshal(model.JobCounts{})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal counts")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, cluster_id, engines, variant_sample, status, counts, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, clusterID, enginesJSON, variantSample, string(model.RunStatusQueued), countsJSON, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
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

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, counts model.JobCounts, errMsg string) error {
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal counts")
	}

	var finishedAt *time.Time
	if status.Terminal() {
		now := time.Now().UTC()
		finishedAt = &now
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, counts = $2, error = $3, finished_at = $4 WHERE id = $5`,
		string(status), countsJSON, errMsg, finishedAt, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var enginesJSON, countsJSON []byte
	var finishedAt *time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT id, cluster_id, engines, variant_sample, status, counts, error, started_at, finished_at
		 FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.ClusterID, &enginesJSON, &r.VariantSample, &r.Status, &countsJSON, &r.Error, &r.StartedAt, &finishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if err := json.Unmarshal(enginesJSON, &r.Engines); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal engines")
	}
	if err := json.Unmarshal(countsJSON, &r.Counts); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal counts")
	}
	r.FinishedAt = finishedAt
	return &r, nil
}

func (s *PostgresStore) InsertAnswer(ctx context.Context, a model.Answer) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO answers
		 (id, run_id, engine, variant_id, raw_text, hash, input_tokens, output_tokens, cost_usd, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (run_id, hash) DO NOTHING`,
		a.ID, a.RunID, a.Engine, a.VariantID, a.RawText, a.Hash,
		a.Usage.InputTokens, a.Usage.OutputTokens, a.CostUSD, a.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert answer")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrDuplicateAnswer, "postgres: run %s hash %s", a.RunID, a.Hash)
	}
	return nil
}

func (s *PostgresStore) InsertCitations(ctx context.Context, cs []model.Citation) error {
	if len(cs) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(cs))
	for _, c := range cs {
		rows = append(rows, []any{c.ID, c.AnswerID, c.URL, c.Normalized, c.Domain, c.Position, c.Authority})
	}

	_, err := db.CopyFrom(ctx, s.pool, "citations",
		[]string{"id", "answer_id", "url", "normalized", "domain", "position", "authority"},
		rows,
	)
	return eris.Wrap(err, "postgres: insert citations")
}

func (s *PostgresStore) ListAnswers(ctx context.Context, clusterID string, filter AnswerFilter) ([]model.AnswerSummary, error) {
	query := `SELECT a.id, a.run_id, a.engine, COALESCE(a.variant_id, ''), substr(a.raw_text, 1, 240),
	          (SELECT COUNT(*) FROM citations ct WHERE ct.answer_id = a.id), a.created_at
	          FROM answers a
	          JOIN runs r ON r.id = a.run_id
	          WHERE r.cluster_id = $1`
	args := []any{clusterID}
	argIdx := 2

	if filter.Engine != "" {
		query += fmt.Sprintf(` AND a.engine = $%d`, argIdx)
		args = append(args, filter.Engine)
		argIdx++
	}
	query += ` ORDER BY a.created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list answers")
	}
	defer rows.Close()

	var out []model.AnswerSummary
	for rows.Next() {
		var a model.AnswerSummary
		if err := rows.Scan(&a.ID, &a.RunID, &a.Engine, &a.VariantID, &a.Snippet, &a.CitationCount, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan answer summary")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list answers iterate")
}

func (s *PostgresStore) Population(ctx context.Context, siteID, clusterID string, since time.Time) ([]model.AnswerRecord, error) {
	query := `SELECT a.id, a.run_id, a.engine, COALESCE(a.variant_id, ''), a.raw_text, a.hash,
	          a.input_tokens, a.output_tokens, a.cost_usd, a.created_at, COALESCE(v.text, '')
	          FROM answers a
	          JOIN runs r ON r.id = a.run_id
	          JOIN clusters c ON c.id = r.cluster_id
	          LEFT JOIN variants v ON v.id = a.variant_id
	          WHERE c.site_id = $1 AND a.created_at >= $2`
	args := []any{siteID, since}

	if clusterID != "" {
		query += ` AND c.id = $3`
		args = append(args, clusterID)
	}
	query += ` ORDER BY a.created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: population answers")
	}
	defer rows.Close()

	var recs []model.AnswerRecord
	index := make(map[string]int)
	for rows.Next() {
		var rec model.AnswerRecord
		if err := rows.Scan(
			&rec.Answer.ID, &rec.Answer.RunID, &rec.Answer.Engine, &rec.Answer.VariantID,
			&rec.Answer.RawText, &rec.Answer.Hash,
			&rec.Answer.Usage.InputTokens, &rec.Answer.Usage.OutputTokens,
			&rec.Answer.CostUSD, &rec.Answer.CreatedAt, &rec.VariantText,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan population answer")
		}
		index[rec.Answer.ID] = len(recs)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: population answers iterate")
	}
	if len(recs) == 0 {
		return nil, nil
	}

	citeQuery := `SELECT ct.id, ct.answer_id, ct.url, ct.normalized, ct.domain, ct.position, ct.authority
	              FROM citations ct
	              JOIN answers a ON a.id = ct.answer_id
	              JOIN runs r ON r.id = a.run_id
	              JOIN clusters c ON c.id = r.cluster_id
	              WHERE c.site_id = $1 AND a.created_at >= $2`
	citeArgs := []any{siteID, since}
	if clusterID != "" {
		citeQuery += ` AND c.id = $3`
		citeArgs = append(citeArgs, clusterID)
	}
	citeQuery += ` ORDER BY ct.answer_id, ct.position`

	citeRows, err := s.pool.Query(ctx, citeQuery, citeArgs...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: population citations")
	}
	defer citeRows.Close()

	for citeRows.Next() {
		var c model.Citation
		if err := citeRows.Scan(&c.ID, &c.AnswerID, &c.URL, &c.Normalized, &c.Domain, &c.Position, &c.Authority); err != nil {
			return nil, eris.Wrap(err, "postgres: scan population citation")
		}
		if i, ok := index[c.AnswerID]; ok {
			recs[i].Citations = append(recs[i].Citations, c)
		}
	}
	return recs, eris.Wrap(citeRows.Err(), "postgres: population citations iterate")
}

func (s *PostgresStore) InsertScore(ctx context.Context, sc model.Score) error {
	subJSON, err := json.Marshal(sc.Subscores)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal subscores")
	}
	recJSON, err := json.Marshal(sc.Recommendations)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal recommendations")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO scores (id, site_id, cluster_id, total, subscores, window_days, recommendations, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sc.ID, sc.SiteID, sc.ClusterID, sc.Total, subJSON, sc.WindowDays, recJSON, sc.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert score")
}

func (s *PostgresStore) ListScores(ctx context.Context, siteID, clusterID string, limit int) ([]model.Score, error) {
	query := `SELECT id, site_id, cluster_id, total, subscores, window_days, recommendations, created_at
	          FROM scores WHERE site_id = $1`
	args := []any{siteID}
	argIdx := 2

	if clusterID != "" {
		query += fmt.Sprintf(` AND cluster_id = $%d`, argIdx)
		args = append(args, clusterID)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scores")
	}
	defer rows.Close()

	var out []model.Score
	for rows.Next() {
		var sc model.Score
		var subJSON, recJSON []byte
		if err := rows.Scan(&sc.ID, &sc.SiteID, &sc.ClusterID, &sc.Total, &subJSON, &sc.WindowDays, &recJSON, &sc.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan score")
		}
		if err := json.Unmarshal(subJSON, &sc.Subscores); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal subscores")
		}
		if err := json.Unmarshal(recJSON, &sc.Recommendations); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal recommendations")
		}
		out = append(out, sc)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list scores iterate")
}
