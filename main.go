package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"stockbook/m/internal/cli"
)

func main() {
	_ = godotenv.Load()

	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "stockbook:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
