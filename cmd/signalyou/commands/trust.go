package commands

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/phlthy88/Signal-You-Messenger/internal/crypto"
)

func trustCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trust <peer> <identity-key-base64>",
		Short: "Record a peer's identity key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := base64.StdEncoding.DecodeString(args[1])
			if err != nil {
				return fmt.Errorf("decode identity key: %w", err)
			}
			key, err := crypto.IdentityPublicKeyFromBytes(raw)
			if err != nil {
				return err
			}
			e, err := loadEngine()
			if err != nil {
				return err
			}
			if err := e.TrustIdentity(args[0], key); err != nil {
				return err
			}
			fmt.Printf("Recorded identity for %s.\n", args[0])
			return nil
		},
	}
}
