package commands

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"
)

func bundleCmd() *cobra.Command {
	var deviceID uint32
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Print a publishable pre-key bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			bundle, err := e.CreatePreKeyBundle(deviceID)
			if err != nil {
				return err
			}
			fmt.Println(base64.StdEncoding.EncodeToString(bundle.Serialize()))
			return nil
		},
	}
	cmd.Flags().Uint32Var(&deviceID, "device", 1, "device id for the bundle")
	return cmd
}
