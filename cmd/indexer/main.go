package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rawblock/btc-indexer/internal/config"
	"github.com/rawblock/btc-indexer/internal/nodegw"
	"github.com/rawblock/btc-indexer/internal/processor"
	"github.com/rawblock/btc-indexer/internal/store"
)

const (
	nodeConnectInitialBackoff = 5 * time.Second
	nodeConnectMaxBackoff     = 300 * time.Second
)

func main() {
	log.Println("Starting btc-indexer...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := connectNode(ctx, cfg.BitcoinRESTURL)
	if err != nil {
		log.Fatalf("FATAL: could not connect to Bitcoin node: %v", err)
	}

	st, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("FATAL: could not connect to database: %v", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalf("FATAL: migrations failed: %v", err)
	}

	proc := processor.New(gw, st)
	if err := proc.Run(ctx); err != nil {
		if errors.Is(err, processor.ErrFatal) {
			log.Fatalf("FATAL: %v", err)
		}
		log.Fatalf("FATAL: unexpected processor exit: %v", err)
	}

	log.Println("shutdown complete")
}

// connectNode retries the initial node connection with exponential
// backoff, 5s doubling to a 300s cap, per the startup error policy.
func connectNode(ctx context.Context, restURL string) (*nodegw.Client, error) {
	backoff := nodeConnectInitialBackoff
	for {
		gw, err := nodegw.New(restURL)
		if err == nil {
			return gw, nil
		}
		log.Printf("[indexer] node connection failed, retrying in %s: %v", backoff, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > nodeConnectMaxBackoff {
			backoff = nodeConnectMaxBackoff
		}
	}
}
