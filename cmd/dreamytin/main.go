package main

import (
	"os"

	"github.com/andreytim/dreamytin-ai/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
