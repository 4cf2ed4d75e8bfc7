package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ftso-network/ftso/internal/config"
	httpservice "github.com/ftso-network/ftso/internal/interface/http"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

//nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var urlFlag = &cli.StringFlag{
	Name:  "url",
	Usage: "base url of the node http api",
	Value: fmt.Sprintf("http://localhost:%d", config.DefaultPort),
}

func main() {
	app := cli.NewApp()

	app.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	app.Name = "ftsod"
	app.Usage = "price provider node: commits, reveals and signs feed prices every round"
	app.Flags = []cli.Flag{urlFlag}
	app.Commands = append(
		app.Commands,
		statusCmd,
		roundCmd,
		claimsCmd,
		finalizationCmd,
	)
	app.Action = mainAction

	if err := app.Run(os.Args); err != nil {
		fmt.Println(fmt.Errorf("error: %v", err))
		os.Exit(1)
	}
}

func mainAction(_ *cli.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("invalid config: %s", err)
	}

	log.SetLevel(log.Level(cfg.LogLevel))

	svcConfig := httpservice.Config{
		Port: cfg.Port,
	}
	svc, err := httpservice.NewService(svcConfig, cfg)
	if err != nil {
		return err
	}

	log.RegisterExitHandler(svc.Stop)

	log.Infof("starting node %s", cfg)
	if err := svc.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, os.Interrupt)
	<-sigChan

	log.Info("shutting down node...")
	log.Exit(0)
	return nil
}
