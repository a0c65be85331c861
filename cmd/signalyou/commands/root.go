package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/phlthy88/Signal-You-Messenger/internal/engine"
	"github.com/phlthy88/Signal-You-Messenger/internal/store"
)

var (
	home       string
	passphrase string
	name       string

	fileStore *store.FileStore
)

func Execute() error {
	root := &cobra.Command{
		Use:   "signalyou",
		Short: "End-to-end encryption engine CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".signalyou")
			}
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			fs, err := store.NewFileStore(home, passphrase)
			if err != nil {
				return err
			}
			fileStore = fs
			return nil
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "config dir (default ~/.signalyou)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase to protect keys")
	root.PersistentFlags().StringVar(&name, "name", "me", "local endpoint name")

	root.AddCommand(initCmd(), prekeysCmd(), bundleCmd(), trustCmd(), safetyNumberCmd())
	return root.Execute()
}

// loadEngine restores the engine from the file store.
func loadEngine() (*engine.Engine, error) {
	e, err := engine.Load(name, fileStore)
	if err != nil {
		return nil, fmt.Errorf("load identity (did you run init?): %w", err)
	}
	return e, nil
}
