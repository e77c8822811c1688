// Tokengate issuance daemon.
//
// Usage:
//
//	tokengated [--datadir=... --rpc-port=...] Run daemon
//	tokengated --help                         Show help
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/monte1s/tokengate/config"
	"github.com/monte1s/tokengate/internal/engine"
	"github.com/monte1s/tokengate/internal/rpc"
)

func main() {
	cfg, _, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	eng, err := engine.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var server *rpc.Server
	if cfg.RPC.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.RPC.Addr, cfg.RPC.Port)
		server = rpc.New(addr, eng, cfg.RPC)
		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			eng.Close()
			os.Exit(1)
		}
		fmt.Printf("RPC listening on %s\n", server.Addr())
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	if server != nil {
		server.Stop()
	}
	eng.Close()
}
