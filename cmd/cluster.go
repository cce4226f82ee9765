package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/omnifunnel/visibility-cli/internal/model"
)

var (
	clusterSite        string
	clusterName        string
	clusterDescription string
	clusterSeed        string
	clusterKeywords    []string
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Manage keyword clusters",
}

var clusterCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a keyword cluster for a site",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if clusterSite == "" || clusterName == "" || clusterSeed == "" {
			return eris.New("--site, --name, and --seed are required")
		}
		if _, err := cfg.Site(clusterSite); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		cluster, err := env.Store.CreateCluster(ctx, model.Cluster{
			SiteID:      clusterSite,
			Name:        clusterName,
			Description: clusterDescription,
			SeedPrompt:  clusterSeed,
			Keywords:    clusterKeywords,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Created cluster %s (%s)\n", cluster.ID, cluster.Name)
		fmt.Println("Next: generate its variant batch with")
		fmt.Printf("  visibility-cli variants --cluster %s\n", cluster.ID)
		return nil
	},
}

var clusterShowCmd = &cobra.Command{
	Use:   "show <cluster-id>",
	Short: "Show a cluster and its current variant batch",
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
		vs, err := env.Store.ListVariants(ctx, cluster.ID)
		if err != nil {
			return err
		}

		fmt.Printf("Cluster:  %s\n", cluster.ID)
		fmt.Printf("Site:     %s\n", cluster.SiteID)
		fmt.Printf("Name:     %s\n", cluster.Name)
		fmt.Printf("Seed:     %s\n", cluster.SeedPrompt)
		if len(cluster.Keywords) > 0 {
			fmt.Printf("Keywords: %v\n", cluster.Keywords)
		}
		fmt.Printf("Variants: %d\n", len(vs))
		for _, v := range vs {
			fmt.Printf("  %-16s  %s\n", v.Strategy, v.Text)
		}
		return nil
	},
}

func init() {
	clusterCreateCmd.Flags().StringVar(&clusterSite, "site", "", "owning site ID (must be configured)")
	clusterCreateCmd.Flags().StringVar(&clusterName, "name", "", "cluster name")
	clusterCreateCmd.Flags().StringVar(&clusterDescription, "description", "", "cluster description")
	clusterCreateCmd.Flags().StringVar(&clusterSeed, "seed", "", "seed prompt")
	clusterCreateCmd.Flags().StringSliceVar(&clusterKeywords, "keywords", nil, "cluster keywords")
	clusterCmd.AddCommand(clusterCreateCmd)
	clusterCmd.AddCommand(clusterShowCmd)
	rootCmd.AddCommand(clusterCmd)
}
