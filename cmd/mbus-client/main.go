// Command mbus-client is a small interactive peer for an mbus broker,
// useful for manual testing and scripting: it can publish an event,
// subscribe and print incoming events, or issue a single command call
// and print the result.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alperakcan/mbus-sub000/internal/envelope"
	"github.com/alperakcan/mbus-sub000/public/client"
)

func main() {
	var (
		address    = flag.String("address", "127.0.0.1:8000", "broker address")
		network    = flag.String("network", "tcp", "transport: tcp, unix, or ws")
		identifier = flag.String("identifier", "", "client identifier (empty lets the broker mint one)")
		password   = flag.String("password", "", "command.create password")
		debug      = flag.Bool("debug", false, "enable debug logging")
		timeout    = flag.Duration("timeout", 5*time.Second, "call/subscribe timeout")
	)
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: mbus-client [flags] <pub|sub|call> ...")
		os.Exit(2)
	}

	logger := log.New(os.Stderr, "mbus-client: ", log.LstdFlags)
	c := client.New(client.Config{
		Network:         *network,
		Address:         *address,
		Identifier:      *identifier,
		Password:        *password,
		Debug:           *debug,
		Logger:          logger,
		ConnectInterval: time.Second,
		ConnectTimeout:  *timeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		logger.Fatalf("connect: %v", err)
	}
	defer c.Close()

	switch args[0] {
	case "pub":
		runPublish(c, args[1:])
	case "sub":
		runSubscribe(ctx, c, args[1:])
	case "call":
		runCall(c, args[1:], *timeout)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", args[0])
		os.Exit(2)
	}
}

func runPublish(c *client.Client, args []string) {
	if len(args) < 1 {
		log.Fatal("usage: pub <identifier> [json-payload]")
	}
	payload := json.RawMessage("{}")
	if len(args) > 1 {
		payload = json.RawMessage(args[1])
	}
	if err := c.Publish(args[0], payload, ""); err != nil {
		log.Fatalf("publish: %v", err)
	}
}

func runSubscribe(ctx context.Context, c *client.Client, args []string) {
	source := envelope.SourceAll
	event := envelope.IdentifierAll
	if len(args) > 0 {
		source = args[0]
	}
	if len(args) > 1 {
		event = args[1]
	}

	err := c.Subscribe(source, event, func(env *envelope.Envelope) {
		fmt.Printf("%s %s %s\n", env.Source, env.Identifier, string(env.Payload))
	})
	if err != nil {
		log.Fatalf("subscribe: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
}

func runCall(c *client.Client, args []string, timeout time.Duration) {
	if len(args) < 2 {
		log.Fatal("usage: call <destination> <identifier> [json-payload]")
	}
	payload := json.RawMessage("{}")
	if len(args) > 2 {
		payload = json.RawMessage(args[2])
	}

	res, err := c.Call(args[0], args[1], payload, timeout)
	if err != nil {
		log.Fatalf("call: %v", err)
	}
	status := 0
	if res.Status != nil {
		status = *res.Status
	}
	fmt.Printf("status=%d payload=%s\n", status, string(res.Payload))
}
