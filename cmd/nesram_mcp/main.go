//go:build linux

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"nesram/config"
	"nesram/engine"
	"nesram/mcp"
	"nesram/process"
	"nesram/process_linux"
)

func main() {
	// stdout carries the protocol, everything else goes to stderr
	protocolOut := os.Stdout
	os.Stdout = os.Stderr

	cfg := config.Default()
	configPath := flag.String("config", "", "JSON config file")
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		cfg = loaded
		// flags win over the file
		fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
		fs.String("config", "", "JSON config file")
		cfg.RegisterFlags(fs)
		fs.Parse(os.Args[1:])
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	v, err := cfg.Validator()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	locator := process_linux.NewLocator(cfg.ProcessName, process.ProcessID(cfg.PID))
	eng := engine.New(locator, v, cfg.EngineOptions())
	defer eng.Close()

	server := mcp.NewServer(eng)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.WebsocketAddr != "" {
		go func() {
			if err := server.ServeWebsocket(ctx, cfg.WebsocketAddr); err != nil {
				fmt.Fprintln(os.Stderr, "websocket:", err)
				stop()
			}
		}()
	}

	if err := server.ServeStdio(ctx, os.Stdin, protocolOut); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	// without a stdio client keep serving websocket clients
	if cfg.WebsocketAddr != "" {
		<-ctx.Done()
	}
}
