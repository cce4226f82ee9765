package main

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/omnifunnel/visibility-cli/internal/model"
	"github.com/omnifunnel/visibility-cli/internal/report"
	"github.com/omnifunnel/visibility-cli/internal/visibility"
	"github.com/omnifunnel/visibility-cli/pkg/notion"
)

var (
	scoreSite    string
	scoreCluster string
	scoreDays    int
	scorePublish bool
	scoreXLSX    string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute the visibility score for a site",
	Long:  "Computes the 7-component weighted visibility score over the trailing window and appends it to score history. --publish pushes the record to Notion; --xlsx exports the full history.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if scoreSite == "" {
			return eris.New("--site is required")
		}
		site, err := cfg.Site(scoreSite)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		days := scoreDays
		if days <= 0 {
			days = cfg.Score.WindowDays
		}

		score, err := env.Aggregator.Compute(ctx, site, scoreCluster, days)
		if err != nil {
			if errors.Is(err, visibility.ErrNoScoreAvailable) {
				fmt.Printf("No answers recorded for site %s in the last %d days; nothing to score.\n", site.ID, days)
				return nil
			}
			return err
		}

		if err := env.Store.InsertScore(ctx, *score); err != nil {
			return err
		}
		printScore(score)

		if scorePublish {
			if env.Notion == nil || cfg.Notion.ScoreDB == "" {
				return eris.New("notion not configured: set notion.token and notion.score_db")
			}
			publisher := notion.NewPublisher(env.Notion, cfg.Notion.ScoreDB)
			pageID, err := publisher.Publish(ctx, notion.ScoreRow{
				SiteName:  site.BrandName,
				SiteID:    score.SiteID,
				ClusterID: score.ClusterID,
				Total:     score.Total,
				Subscores: map[string]float64{
					"prompt_sov":            score.Subscores.PromptSOV,
					"generative_appearance": score.Subscores.GenerativeAppearance,
					"citation_authority":    score.Subscores.CitationAuthority,
					"answer_quality":        score.Subscores.AnswerQuality,
					"voice_presence":        score.Subscores.VoicePresence,
					"ai_traffic":            score.Subscores.AITraffic,
					"ai_conversions":        score.Subscores.AIConversions,
				},
				WindowDays:      score.WindowDays,
				Recommendations: score.Recommendations,
				ComputedAt:      score.CreatedAt,
			})
			if err != nil {
				return err
			}
			zap.L().Info("score published to notion", zap.String("page_id", pageID))
			fmt.Printf("Published to Notion (page %s)\n", pageID)
		}

		if scoreXLSX != "" {
			history, err := env.Store.ListScores(ctx, site.ID, scoreCluster, 0)
			if err != nil {
				return err
			}
			if err := report.WriteHistoryXLSX(scoreXLSX, history); err != nil {
				return err
			}
			fmt.Printf("Wrote %d history rows to %s\n", len(history), scoreXLSX)
		}

		return nil
	},
}

func printScore(sc *model.Score) {
	fmt.Printf("Visibility score: %.2f (window %dd)\n\n", sc.Total, sc.WindowDays)
	fmt.Printf("  prompt_sov             %6.2f\n", sc.Subscores.PromptSOV)
	fmt.Printf("  generative_appearance  %6.2f\n", sc.Subscores.GenerativeAppearance)
	fmt.Printf("  citation_authority     %6.2f\n", sc.Subscores.CitationAuthority)
	fmt.Printf("  answer_quality         %6.2f\n", sc.Subscores.AnswerQuality)
	fmt.Printf("  voice_presence         %6.2f\n", sc.Subscores.VoicePresence)
	fmt.Printf("  ai_traffic             %6.2f\n", sc.Subscores.AITraffic)
	fmt.Printf("  ai_conversions         %6.2f\n", sc.Subscores.AIConversions)
	if len(sc.Recommendations) > 0 {
		fmt.Println("\nRecommendations:")
		for _, r := range sc.Recommendations {
			fmt.Printf("  - %s\n", r)
		}
	}
}

func init() {
	scoreCmd.Flags().StringVar(&scoreSite, "site", "", "site ID (required)")
	scoreCmd.Flags().StringVar(&scoreCluster, "cluster", "", "optional cluster filter")
	scoreCmd.Flags().IntVar(&scoreDays, "days", 0, "trailing window in days (default from config)")
	scoreCmd.Flags().BoolVar(&scorePublish, "publish", false, "publish the score to Notion")
	scoreCmd.Flags().StringVar(&scoreXLSX, "xlsx", "", "export score history to an XLSX file")
	rootCmd.AddCommand(scoreCmd)
}
