package report

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/omnifunnel/visibility-cli/internal/model"
)

func TestWriteHistoryXLSX(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.xlsx")
	scores := []model.Score{
		{
			ID: "sc-2", SiteID: "site-1", ClusterID: "cl-1",
			Total: 48.0,
			Subscores: model.Subscores{
				PromptSOV: 66.67, GenerativeAppearance: 50, CitationAuthority: 60,
				AnswerQuality: 45, VoicePresence: 25, AITraffic: 15, AIConversions: 40,
			},
			WindowDays:      30,
			Recommendations: []string{"first", "second"},
			CreatedAt:       time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC),
		},
		{
			ID: "sc-1", SiteID: "site-1",
			Total:      42.5,
			WindowDays: 30,
			CreatedAt:  time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC),
		},
	}

	require.NoError(t, WriteHistoryXLSX(path, scores))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)

	sheet := f.Sheets[0]
	assert.Equal(t, "Score History", sheet.Name)
	require.Len(t, sheet.Rows, 3, "header plus one row per score")

	assert.Equal(t, "Computed At", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "Total", sheet.Rows[0].Cells[3].String())

	first := sheet.Rows[1]
	assert.Equal(t, "2026-03-15 10:00:00", first.Cells[0].String())
	assert.Equal(t, "site-1", first.Cells[1].String())
	assert.Equal(t, "cl-1", first.Cells[2].String())
	total, err := first.Cells[3].Float()
	require.NoError(t, err)
	assert.Equal(t, 48.0, total)
	assert.Equal(t, "first\nsecond", first.Cells[12].String())

	second := sheet.Rows[2]
	assert.Equal(t, "", second.Cells[2].String())
	assert.Equal(t, "", second.Cells[12].String())
}

func TestWriteHistoryXLSXEmpty(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.xlsx")
	require.NoError(t, WriteHistoryXLSX(path, nil))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets[0].Rows, 1)
}
