package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openkb/chatbench/internal/catalog"
)

func newListCmd() *cobra.Command {
	var catalogsDir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available catalogs with their versions and test cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := catalog.List(catalogsDir)
			if err != nil {
				return fmt.Errorf("failed to list catalogs: %w", err)
			}

			if len(names) == 0 {
				fmt.Println("No catalogs found.")
				return nil
			}

			fmt.Printf("Available catalogs:\n\n")
			for _, name := range names {
				cat, err := catalog.Load(name, catalogsDir)
				if err != nil {
					fmt.Printf("  - %s (error loading: %v)\n", name, err)
					continue
				}
				fmt.Printf("  - %s\n", cat.Name)
				fmt.Printf("    Description: %s\n", cat.Description)
				fmt.Printf("    Pass threshold: %d\n", cat.PassThreshold)
				fmt.Printf("    Versions:\n")
				for _, v := range cat.Versions {
					fmt.Printf("      %s: %s (model: %s, temperature: %.1f)\n",
						v.ID, v.Name, v.Params.Model, v.Params.Temperature)
				}
				fmt.Printf("    Cases: %d (%d active)\n\n", len(cat.Cases), len(cat.ActiveCases()))
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&catalogsDir, "catalogs-dir", "", "External catalogs directory")

	return cmd
}
