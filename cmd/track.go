package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/omnifunnel/visibility-cli/internal/model"
)

var (
	trackEngines []string
	trackSample  int
)

var trackCmd = &cobra.Command{
	Use:   "track <cluster-id>",
	Short: "Create and execute a tracking run for a cluster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		cluster, err := env.Store.GetCluster(ctx, args[0])
		if err != nil {
			return err
		}

		selected, err := env.Store.ListVariants(ctx, cluster.ID)
		if err != nil {
			return err
		}
		if len(selected) == 0 {
			return eris.Errorf("cluster %s has no variants: generate a batch first", cluster.ID)
		}

		sample := trackSample
		if sample <= 0 {
			sample = cfg.Tracker.VariantSample
		}
		if sample > 0 && sample < len(selected) {
			selected = selected[:sample]
		}

		engines, err := env.Registry.Select(trackEngines)
		if err != nil {
			return err
		}

		run, err := env.Store.CreateRun(ctx, cluster.ID, trackEngines, len(selected))
		if err != nil {
			return err
		}

		fmt.Printf("Run %s: %d variants x %d engines = %d jobs\n",
			run.ID, len(selected), len(engines), len(selected)*len(engines))

		if err := env.Orch.Execute(ctx, run, selected, engines); err != nil {
			return err
		}

		printRun(run)
		return nil
	},
}

func printRun(run *model.Run) {
	fmt.Printf("Status:    %s\n", run.Status)
	fmt.Printf("Succeeded: %d\n", run.Counts.Succeeded)
	fmt.Printf("Failed:    %d\n", run.Counts.Failed)
	fmt.Printf("Cancelled: %d\n", run.Counts.Cancelled)
	fmt.Printf("Retried:   %d\n", run.Counts.Retried)
}

func init() {
	trackCmd.Flags().StringSliceVar(&trackEngines, "engines", nil, "engine filter (default all registered)")
	trackCmd.Flags().IntVar(&trackSample, "sample", 0, "variant sample size (default full batch)")
	rootCmd.AddCommand(trackCmd)
}
