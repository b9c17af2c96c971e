package main

import (
	"os"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
