package main

import (
	"os"

	"github.com/reportd/reportd/cmd/reportd/commands"
)

func main() {
	if err := commands.NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
