package main

import (
	"os"

	"github.com/AaronLay10/SentientPlay/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
