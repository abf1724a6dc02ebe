package main

import (
	"context"
	"log"
	"os"

	echoapi "github.com/lumenedu/lumen/apps/portal/echo"
	"github.com/lumenedu/lumen/core"
	"github.com/lumenedu/lumen/core/session"
	"github.com/lumenedu/lumen/services/completion"
	"github.com/lumenedu/lumen/services/identity"
	logsvc "github.com/lumenedu/lumen/services/logger"
)

func main() {
	// missing identity store configuration is the one fatal condition
	conf, err := core.NewConfig()
	if err != nil {
		log.Fatalf("%+v", err)
	}

	std := log.New(os.Stdout, conf.AppName+" : ", log.LstdFlags|log.Lshortfile)
	var logger core.Logger
	if conf.Debug {
		logger = logsvc.NewConsoleLogger(std)
	} else {
		logger = logsvc.NewRollbarLogger(std, conf)
	}

	// set up services
	store := identity.NewClient(conf, logger)
	completionSvc := completion.NewOpenAIService(conf, logger)
	if conf.Completion.APIKey == "" {
		logger.Warn("completion service key missing: the assistant degrades to a fixed message")
	}

	// resolve identity before any route renders
	ctrl := session.NewController(store, logger)
	if err := ctrl.Init(context.Background()); err != nil {
		logger.Fatal("initializing session controller", err)
	}
	defer ctrl.Close()

	// start the portal facade
	app := echoapi.NewServer(
		&echoapi.Options{
			Addr:          conf.Server.Addr,
			Conf:          conf,
			Logger:        logger,
			Ctrl:          ctrl,
			Store:         store,
			CompletionSvc: completionSvc,
		},
	)
	app.Start()
}
