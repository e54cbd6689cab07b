// Command lancer-server is the host process: the submission broker's HTTP
// ingress and the enclave-host bridge worker.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dominion-zone/dominion-lancer/internal/broker"
	"github.com/dominion-zone/dominion-lancer/internal/bridge"
	"github.com/dominion-zone/dominion-lancer/internal/chain"
	"github.com/dominion-zone/dominion-lancer/internal/config"
	"github.com/dominion-zone/dominion-lancer/internal/storage"
	"github.com/dominion-zone/dominion-lancer/internal/transport"
	"github.com/dominion-zone/dominion-lancer/pkg/logger"
)

func main() {
	configPath := flag.String("config", "lancer-server.json", "host config file")
	flag.Parse()

	// Optional .env overrides for local runs.
	_ = godotenv.Load()

	log := logger.NewDefault("lancer-server")

	cfg, err := config.LoadServer(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	storageCfg, err := storage.LoadConfig(cfg.StorageConfigFile)
	if err != nil {
		log.Fatalf("load storage config: %v", err)
	}

	client, err := chain.NewClient(chain.Config{RPCURL: cfg.RPCURL})
	if err != nil {
		log.Fatalf("chain client: %v", err)
	}
	wallet, err := chain.LoadWallet(client, cfg.WalletKeyFile)
	if err != nil {
		log.Fatalf("load wallet: %v", err)
	}
	store := storage.NewClient(storageCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The bridge holds the identity cell the broker reads; the broker's
	// bounded queue feeds the bridge.
	holder := &lateIdentity{}
	br := broker.New(cfg, client, holder, log.WithField("component", "broker"))
	b := bridge.New(cfg, client, wallet, store, br.Tasks(), log.WithField("component", "bridge"))
	holder.bridge = b

	go func() {
		if err := b.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatalf("bridge: %v", err)
		}
	}()

	server := &http.Server{Addr: cfg.ListenAddr, Handler: br.Router()}
	go func() {
		<-ctx.Done()
		server.Close()
	}()

	log.Infof("listening on http://%s", cfg.ListenAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("http server: %v", err)
	}
}

// lateIdentity adapts the late-bound bridge pointer to
// broker.IdentityHolder: the broker is constructed before the bridge.
type lateIdentity struct {
	bridge *bridge.Bridge
}

func (l *lateIdentity) CurrentIdentity() (*transport.Identity, bool) {
	if l.bridge == nil {
		return nil, false
	}
	return l.bridge.CurrentIdentity()
}
