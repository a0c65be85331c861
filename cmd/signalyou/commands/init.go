package commands

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/phlthy88/Signal-You-Messenger/internal/engine"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate an identity and store it securely",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := engine.New(name, fileStore)
			if err != nil {
				return err
			}
			if _, err := e.GenerateSignedPreKey(); err != nil {
				return err
			}
			if _, err := e.GeneratePreKeys(100); err != nil {
				return err
			}
			key := e.IdentityKey()
			fmt.Printf("Identity created.\n")
			fmt.Printf("Identity key:    %s\n", base64.StdEncoding.EncodeToString(key.Slice()))
			fmt.Printf("Registration id: %d\n", e.RegistrationID())
			return nil
		},
	}
}
