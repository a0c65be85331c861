package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func prekeysCmd() *cobra.Command {
	var generate int
	cmd := &cobra.Command{
		Use:   "prekeys",
		Short: "Show or replenish one-time pre-keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			if generate > 0 {
				published, err := e.GeneratePreKeys(generate)
				if err != nil {
					return err
				}
				fmt.Printf("Generated %d pre-keys.\n", len(published))
			} else if published, err := e.RefillPreKeysIfNeeded(); err != nil {
				return err
			} else if len(published) > 0 {
				fmt.Printf("Refilled %d pre-keys.\n", len(published))
			}
			fmt.Printf("Pre-keys available: %d\n", e.PreKeyCount())
			return nil
		},
	}
	cmd.Flags().IntVar(&generate, "generate", 0, "generate this many new pre-keys")
	return cmd
}
