// Package store persists clusters, variants, runs, answers, citations, and
// score history behind a backend-neutral interface.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/omnifunnel/visibility-cli/internal/model"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateAnswer indicates an answer with the same content hash
	// already exists for the run. Duplicates are rejected, never
	// overwritten.
	ErrDuplicateAnswer = errors.New("duplicate answer for run")
)

// AnswerFilter narrows an answer listing.
type AnswerFilter struct {
	Engine string `json:"engine,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the visibility pipeline.
type Store interface {
	// Clusters
	CreateCluster(ctx context.Context, c model.Cluster) (*model.Cluster, error)
	GetCluster(ctx context.Context, clusterID string) (*model.Cluster, error)

	// Variants. InsertVariants appends one generation batch; ListVariants
	// returns the newest batch, which is the one runs draw from.
	InsertVariants(ctx context.Context, vs []model.Variant) error
	ListVariants(ctx context.Context, clusterID string) ([]model.Variant, error)

	// Runs
	CreateRun(ctx context.Context, clusterID string, engines []string, variantSample int) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, counts model.JobCounts, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)

	// Answers and citations
	InsertAnswer(ctx context.Context, a model.Answer) error
	InsertCitations(ctx context.Context, cs []model.Citation) error
	ListAnswers(ctx context.Context, clusterID string, filter AnswerFilter) ([]model.AnswerSummary, error)

	// Population returns the scoring population for a site: every answer
	// recorded since the cutoff, with its variant text and citations.
	// An empty clusterID spans all of the site's clusters.
	Population(ctx context.Context, siteID, clusterID string, since time.Time) ([]model.AnswerRecord, error)

	// Scores. History is append-only and returned newest first.
	InsertScore(ctx context.Context, sc model.Score) error
	ListScores(ctx context.Context, siteID, clusterID string, limit int) ([]model.Score, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
