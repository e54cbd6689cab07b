// Command lancer-connector is the enclave-side process: it generates the
// per-process key material, obtains the attestation document, and serves
// bridge tasks through the runner.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dominion-zone/dominion-lancer/internal/config"
	"github.com/dominion-zone/dominion-lancer/internal/storage"
	"github.com/dominion-zone/dominion-lancer/internal/transport"
	"github.com/dominion-zone/dominion-lancer/pkg/logger"
	"github.com/dominion-zone/dominion-lancer/tee/attestation"
	"github.com/dominion-zone/dominion-lancer/tee/connector"
	"github.com/dominion-zone/dominion-lancer/tee/keys"
	"github.com/dominion-zone/dominion-lancer/tee/runner"
	"github.com/dominion-zone/dominion-lancer/tee/seal"
)

func main() {
	configPath := flag.String("config", "lancer-connector.json", "connector config file")
	flag.Parse()

	_ = godotenv.Load()

	log := logger.NewDefault("lancer-connector")

	cfg, err := config.LoadConnector(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	material, err := keys.Generate()
	if err != nil {
		log.Fatalf("key material: %v", err)
	}
	decryptionKey, err := material.DecryptionPublicKey()
	if err != nil {
		log.Fatalf("key material: %v", err)
	}

	device := attestation.New()
	document, err := device.Attest(material.SigningPublicKey())
	if err != nil {
		log.Fatalf("attestation: %v", err)
	}

	sealer, err := seal.NewSealer(cfg.LancerID, cfg.Seal)
	if err != nil {
		log.Fatalf("seal committee: %v", err)
	}
	encoder := storage.NewEncoder(cfg.WalrusShards)

	r := runner.New(material, sealer, encoder, cfg.RunnerPath, cfg.FrameworkDir,
		log.WithField("component", "runner"))

	identity := transport.Identity{
		DecryptionPublicKey: decryptionKey,
		Attestation:         document,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := connector.New(cfg.Port, cfg.UseTCP, identity, r, log.WithField("component", "connector"))
	if err := c.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("connector: %v", err)
	}
}
