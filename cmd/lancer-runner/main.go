// Command lancer-runner hosts the scripting VM for one scenario run. It is
// spawned by the enclave runner with the working directory as its single
// argument and communicates results purely through the output tree.
package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/dominion-zone/dominion-lancer/internal/scenario"
	"github.com/dominion-zone/dominion-lancer/pkg/logger"
)

func main() {
	log := logger.NewDefault("lancer-runner")

	if len(os.Args) != 2 {
		log.Fatalf("usage: lancer-runner <working_dir>")
	}
	workingDir := os.Args[1]

	host, err := scenario.NewHost(workingDir, log)
	if err != nil {
		log.Fatalf("vm: %v", err)
	}

	scenarioPath := filepath.Join(workingDir, "input/glu/scenario.glu")
	if err := host.Run(context.Background(), scenarioPath); err != nil {
		log.Errorf("scenario failed: %v", err)
		os.Exit(1)
	}
}
