package main

import (
	"os"

	"github.com/rl1809/split-market/cmd/server/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
