package main

import (
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	approuters "NeuroBot/internal/app_routers"
	"NeuroBot/internal/configuration"
)

func main() {
	// NEUROBOT_* overrides may come from a local .env file
	_ = godotenv.Load(".env")

	configPath := flag.String("config", os.Getenv("NEUROBOT_CONFIG"), "path to the JSON config file")
	flag.Parse()

	container, err := configuration.BuildContainer(*configPath)
	if err != nil {
		log.Fatalf("Failed to build container: %v", err)
	}

	// Ensure cleanup on shutdown
	defer container.Close()

	approuters.StartServer(container)
}
