package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var enginesProbe bool

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "List registered engines with capabilities and health",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		fmt.Printf("%-12s %-18s %-18s %s\n", "ENGINE", "SEARCH GROUNDING", "NATIVE CITATIONS", "HEALTH")
		for _, name := range env.Registry.Names() {
			e := env.Registry.Get(name)
			caps := e.Capabilities()

			health := env.Health.State(name)
			if enginesProbe {
				health = e.Health(ctx)
			}

			fmt.Printf("%-12s %-18t %-18t %s\n", name, caps.SearchGrounding, caps.NativeCitations, health)
		}
		return nil
	},
}

func init() {
	enginesCmd.Flags().BoolVar(&enginesProbe, "probe", false, "probe each engine now instead of showing the last recorded state")
	rootCmd.AddCommand(enginesCmd)
}
