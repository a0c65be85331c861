package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func safetyNumberCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "safety-number <peer>",
		Short: "Print the safety number shared with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			sn, err := e.GetSafetyNumber(args[0])
			if err != nil {
				return err
			}
			fmt.Println(sn)
			return nil
		},
	}
}
