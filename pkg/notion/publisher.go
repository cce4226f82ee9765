package notion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// ScoreRow is one visibility score record to publish. Subscores are keyed by
// component name and become one number column each.
type ScoreRow struct {
	SiteName        string
	SiteID          string
	ClusterID       string
	Total           float64
	Subscores       map[string]float64
	WindowDays      int
	Recommendations []string
	ComputedAt      time.Time
}

// Publisher writes score rows into a Notion database. Rows are append-only,
// mirroring the score history itself.
type Publisher struct {
	client Client
	dbID   string
}

// NewPublisher creates a Publisher targeting the given database.
func NewPublisher(client Client, dbID string) *Publisher {
	return &Publisher{client: client, dbID: dbID}
}

// Publish creates one page for the score row and returns the page ID.
func (p *Publisher) Publish(ctx context.Context, row ScoreRow) (string, error) {
	title := fmt.Sprintf("%s — %s", row.SiteName, row.ComputedAt.Format("2006-01-02"))

	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Title: []notionapi.RichText{{Text: &notionapi.Text{Content: title}}},
		},
		"Site":        richText(row.SiteID),
		"Total":       numberProp(row.Total),
		"Window Days": numberProp(float64(row.WindowDays)),
		"Computed At": notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: dateOf(row.ComputedAt)},
		},
	}
	if row.ClusterID != "" {
		props["Cluster"] = richText(row.ClusterID)
	}
	for name, value := range row.Subscores {
		props[subscoreColumn(name)] = numberProp(value)
	}
	if len(row.Recommendations) > 0 {
		props["Recommendations"] = richText(strings.Join(row.Recommendations, "\n"))
	}

	page, err := p.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(p.dbID),
		},
		Properties: props,
	})
	if err != nil {
		return "", eris.Wrap(err, "notion: publish score")
	}
	return string(page.ID), nil
}

// subscoreColumn maps a snake_case component name to its column title, e.g.
// "prompt_sov" to "Prompt Sov".
func subscoreColumn(name string) string {
	parts := strings.Split(name, "_")
	for i, part := range parts {
		if part != "" {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, " ")
}

func richText(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: s}}},
	}
}

func numberProp(v float64) notionapi.NumberProperty {
	return notionapi.NumberProperty{Number: v}
}

func dateOf(t time.Time) *notionapi.Date {
	d := notionapi.Date(t)
	return &d
}
