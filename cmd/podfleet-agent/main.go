package main

import (
	"os"

	"github.com/danpasecinic/podfleet/internal/agentcli"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	if err := agentcli.Execute(); err != nil {
		os.Exit(1)
	}
}
