package main

import (
	"os"

	"github.com/phlthy88/Signal-You-Messenger/cmd/signalyou/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
