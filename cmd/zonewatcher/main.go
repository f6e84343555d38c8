package main

import (
	"github.com/joho/godotenv"

	"zone-alerts/internal/cli"
)

func main() {
	// Optional local .env; real deployments provide the environment.
	_ = godotenv.Load()

	cli.Execute()
}
