package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/matthewfallshaw/chrome-tabs-finder/internal/config"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/host"
)

func main() {
	configPath := flag.String("config", "", "Path to a config file (layered over .tabsfinder/config.yaml)")
	timeout := flag.Duration("timeout", 0, "How long to wait for a reply (default host.reply_timeout)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <message>\n\n", os.Args[0])
		fmt.Fprintf(flag.CommandLine.Output(), "  %s help\n", os.Args[0])
		fmt.Fprintf(flag.CommandLine.Output(), "  %s '{\"focus\": {\"title\": \"* - Gmail\"}}'\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	log.SetFlags(0)

	message := strings.Join(flag.Args(), " ")
	if message == "" {
		flag.Usage()
		os.Exit(2)
	}

	cwd, _ := os.Getwd()
	cfg, _, err := config.LoadWithWorkspace(*configPath, cwd)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	wait := *timeout
	if wait <= 0 {
		wait = cfg.Host.ReplyTimeoutDuration()
	}

	reply, err := host.Converse(context.Background(), cfg.Host.ClientSocketPath, message, wait)
	if err != nil {
		log.Fatalf("%v", err)
	}
	fmt.Println(string(reply))
	if strings.HasPrefix(string(reply), `{"error"`) {
		os.Exit(1)
	}
}
