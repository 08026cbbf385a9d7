package main

import (
	"os"

	"github.com/cubbyfs/cubby/cmd/cubby/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		commands.PrintErr("Error: %v", err)
		os.Exit(1)
	}
}
