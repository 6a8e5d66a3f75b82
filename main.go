package main

import (
	"os"

	"github.com/Andasbek/ShkolaAI/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
