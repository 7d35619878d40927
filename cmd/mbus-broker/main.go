// Command mbus-broker runs a standalone mbus broker: the registry of
// connected clients, built-in command routing, and publish/subscribe
// fan-out described in SPEC_FULL.md.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/alperakcan/mbus-sub000/public/broker"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML broker configuration file")
		tcpAddr    = flag.String("tcp", "127.0.0.1:8000", "TCP listen address (ignored if -config is set)")
		unixAddr   = flag.String("unix", "", "Unix domain socket path (ignored if -config is set)")
		wsAddr     = flag.String("ws", "", "WebSocket listen address (ignored if -config is set)")
		wsPath     = flag.String("ws-path", "/", "WebSocket upgrade path")
		password   = flag.String("password", "", "require this password on command.create")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "mbus-broker: ", log.LstdFlags)

	var b *broker.Broker
	if *configPath != "" {
		loaded, cfg, err := broker.FromConfigFile(*configPath)
		if err != nil {
			logger.Fatalf("load config: %v", err)
		}
		b = loaded
		if cfg.Broker.TCPAddr != "" {
			if cfg.Broker.TLS.Enabled {
				if err := b.ListenTLS(cfg.Broker.TCPAddr, cfg.Broker.TLS.CertFile, cfg.Broker.TLS.KeyFile); err != nil {
					logger.Fatalf("listen tls: %v", err)
				}
			} else if err := b.ListenTCP(cfg.Broker.TCPAddr); err != nil {
				logger.Fatalf("listen tcp: %v", err)
			}
		}
		if cfg.Broker.UnixAddr != "" {
			if cfg.Broker.TLS.Enabled {
				if err := b.ListenUnixTLS(cfg.Broker.UnixAddr, cfg.Broker.TLS.CertFile, cfg.Broker.TLS.KeyFile); err != nil {
					logger.Fatalf("listen unix tls: %v", err)
				}
			} else if err := b.ListenUnix(cfg.Broker.UnixAddr); err != nil {
				logger.Fatalf("listen unix: %v", err)
			}
		}
		if cfg.Broker.WSAddr != "" {
			if err := b.ListenWS(cfg.Broker.WSAddr, cfg.Broker.WSPath); err != nil {
				logger.Fatalf("listen ws: %v", err)
			}
		}
	} else {
		b = broker.New(broker.Config{
			Password: *password,
			Debug:    *debug,
			Logger:   logger,
		})
		if *tcpAddr != "" {
			if err := b.ListenTCP(*tcpAddr); err != nil {
				logger.Fatalf("listen tcp: %v", err)
			}
		}
		if *unixAddr != "" {
			if err := b.ListenUnix(*unixAddr); err != nil {
				logger.Fatalf("listen unix: %v", err)
			}
		}
		if *wsAddr != "" {
			if err := b.ListenWS(*wsAddr, *wsPath); err != nil {
				logger.Fatalf("listen ws: %v", err)
			}
		}
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		logger.Printf("shutting down")
		b.Stop()
	}()

	logger.Printf("broker running")
	b.Run()
}
