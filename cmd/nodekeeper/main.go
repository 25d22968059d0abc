package main

import (
	"log"

	"github.com/MrSnakeDoc/nodekeeper/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ nodekeeper failed to start: %v", err)
	}
}
