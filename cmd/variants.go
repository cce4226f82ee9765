package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/omnifunnel/visibility-cli/internal/model"
	"github.com/omnifunnel/visibility-cli/internal/variants"
)

var (
	variantsSeed         string
	variantsKeywords     []string
	variantsCount        int
	variantsStrategySeed uint64
	variantsCluster      string
)

var variantsCmd = &cobra.Command{
	Use:   "variants",
	Short: "Generate prompt variants for a seed prompt",
	Long:  "Previews the deterministic variant set for a seed prompt. With --cluster, generates from the cluster's stored seed and persists the batch.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if variantsCluster == "" {
			if variantsSeed == "" {
				return eris.New("either --seed or --cluster is required")
			}
			gen, err := variants.Generate(variantsSeed, variantsKeywords, variantsCount, variants.Options{
				StrategySeed: variantsStrategySeed,
			})
			if err != nil {
				return err
			}
			printGenerated(gen)
			return nil
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		cluster, err := env.Store.GetCluster(ctx, variantsCluster)
		if err != nil {
			return err
		}

		gen, err := variants.Generate(cluster.SeedPrompt, cluster.Keywords, variantsCount, variants.Options{
			StrategySeed: variantsStrategySeed,
		})
		if err != nil {
			return err
		}

		batchID := uuid.New().String()
		now := time.Now().UTC()
		batch := make([]model.Variant, 0, len(gen))
		for _, g := range gen {
			batch = append(batch, model.Variant{
				ID:        uuid.New().String(),
				ClusterID: cluster.ID,
				BatchID:   batchID,
				Text:      g.Text,
				Strategy:  string(g.Strategy),
				Params:    g.Params,
				CreatedAt: now,
			})
		}
		if err := env.Store.InsertVariants(ctx, batch); err != nil {
			return err
		}

		fmt.Printf("Stored batch %s with %d variants for cluster %s\n\n", batchID, len(batch), cluster.ID)
		printGenerated(gen)
		return nil
	},
}

func printGenerated(gen []variants.Generated) {
	for i, g := range gen {
		fmt.Printf("%2d  %-16s  %s\n", i+1, g.Strategy, g.Text)
	}
	fmt.Printf("\n%d variants, strategies: %s\n", len(gen), strings.Join(strategyNames(gen), ", "))
}

func strategyNames(gen []variants.Generated) []string {
	seen := make(map[string]bool)
	var names []string
	for _, g := range gen {
		s := string(g.Strategy)
		if !seen[s] {
			seen[s] = true
			names = append(names, s)
		}
	}
	return names
}

func init() {
	variantsCmd.Flags().StringVar(&variantsSeed, "seed", "", "seed prompt (required unless --cluster)")
	variantsCmd.Flags().StringSliceVar(&variantsKeywords, "keywords", nil, "cluster keywords")
	variantsCmd.Flags().IntVar(&variantsCount, "count", 6, "number of variants")
	variantsCmd.Flags().Uint64Var(&variantsStrategySeed, "strategy-seed", 1, "deterministic generation seed")
	variantsCmd.Flags().StringVar(&variantsCluster, "cluster", "", "cluster ID to generate and store a batch for")
	rootCmd.AddCommand(variantsCmd)
}
