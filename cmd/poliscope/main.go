package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/poliscope/poliscope/internal/cli"
)

func main() {
	// Pick up OPENAI_API_KEY and POLISCOPE_* overrides from a local .env
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
