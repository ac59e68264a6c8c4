package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cardvault/voucher-service/internal/app"
	log "github.com/sirupsen/logrus"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to the config file")
	flag.Usage = usage
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = "serve"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case "serve":
		err = app.RunServer(ctx, configPath)
	case "migrate":
		err = app.Migrate(ctx, configPath)
	case "create-admin":
		err = runCreateAdmin(ctx, configPath, flag.Args()[1:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", command, err)
	}
}

func runCreateAdmin(ctx context.Context, configPath string, args []string) error {
	fs := flag.NewFlagSet("create-admin", flag.ExitOnError)
	username := fs.String("username", "", "admin login name")
	password := fs.String("password", "", "admin password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return app.CreateAdmin(ctx, configPath, *username, *password)
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: vouchersvc [flags] <command>

Commands:
  serve         run the API server (default)
  migrate       run database migrations and exit
  create-admin  create or reset an admin account

Flags:
`)
	flag.PrintDefaults()
}
