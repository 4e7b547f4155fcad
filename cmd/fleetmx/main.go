package main

import (
	"log"
	"os"

	"github.com/fleetmx/fleetmx/internal/app"
)

func main() {
	mode := "provision"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	a, err := app.New(mode)
	if err != nil {
		log.Fatalf("❌ fleetmx failed to start: %v", err)
	}
	if err := a.Run(); err != nil {
		log.Fatalf("❌ fleetmx: %v", err)
	}
}
