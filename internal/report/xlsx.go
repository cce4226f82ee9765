// Package report exports score history for offline analysis.
package report

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/omnifunnel/visibility-cli/internal/model"
)

var historyHeader = []string{
	"Computed At", "Site", "Cluster", "Total",
	"Prompt SOV", "Generative Appearance", "Citation Authority",
	"Answer Quality", "Voice Presence", "AI Traffic", "AI Conversions",
	"Window Days", "Recommendations",
}

// WriteHistoryXLSX writes score records to an XLSX workbook, one row per
// score, newest first as given.
func WriteHistoryXLSX(path string, scores []model.Score) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Score History")
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range historyHeader {
		header.AddCell().SetString(h)
	}

	for _, sc := range scores {
		row := sheet.AddRow()
		row.AddCell().SetString(sc.CreatedAt.Format("2006-01-02 15:04:05"))
		row.AddCell().SetString(sc.SiteID)
		row.AddCell().SetString(sc.ClusterID)
		row.AddCell().SetFloat(sc.Total)
		row.AddCell().SetFloat(sc.Subscores.PromptSOV)
		row.AddCell().SetFloat(sc.Subscores.GenerativeAppearance)
		row.AddCell().SetFloat(sc.Subscores.CitationAuthority)
		row.AddCell().SetFloat(sc.Subscores.AnswerQuality)
		row.AddCell().SetFloat(sc.Subscores.VoicePresence)
		row.AddCell().SetFloat(sc.Subscores.AITraffic)
		row.AddCell().SetFloat(sc.Subscores.AIConversions)
		row.AddCell().SetInt(sc.WindowDays)

		recs := ""
		for i, r := range sc.Recommendations {
			if i > 0 {
				recs += "\n"
			}
			recs += r
		}
		row.AddCell().SetString(recs)
	}

	return eris.Wrap(f.Save(path), "report: save workbook")
}
