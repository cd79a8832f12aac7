package main

import (
	"os"

	"github.com/spigell/cv-classifier/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
