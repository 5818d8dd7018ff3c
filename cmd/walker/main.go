// walker drives the bipedal walking controller: it wires the trajectory
// planner, the feedback cascade and the robot collaborators into the
// orchestrator, then serves the operator command API.
//
// Usage:
//
//	walker -config walker.yaml [options]
//
// Options:
//
//	-config string  Controller configuration file (YAML)
//	-verbose        Enable debug logging
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"walking-go/pkg/command"
	"walking-go/pkg/config"
	"walking-go/pkg/goalfeed"
	"walking-go/pkg/planner"
	"walking-go/pkg/realtime"
	"walking-go/pkg/robot"
	"walking-go/pkg/walking"
)

func main() {
	configFile := flag.String("config", "", "Controller configuration file (YAML)")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	log := logger.WithField("component", "walker")

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			log.WithError(err).Fatal("configuration rejected")
		}
		cfg = loaded
	}

	realtime.Setup(logger.WithField("component", "realtime"))

	plannerParams := planner.DefaultParameters()
	plannerParams.SamplingTime = cfg.General.SamplingTime
	plannerParams.ComHeight = cfg.General.ComHeight
	gaitPlanner, err := planner.NewReference(plannerParams, logger.WithField("component", "planner"))
	if err != nil {
		log.WithError(err).Fatal("planner setup failed")
	}

	sim := robot.NewSim(cfg.General.ComHeight, plannerParams.StepWidth, cfg.General.SamplingTime)

	orchestrator, err := walking.New(cfg, walking.Deps{
		Planner:  gaitPlanner,
		Feedback: sim,
		IK:       sim,
		Actuator: sim,
		Log:      logger.WithField("component", "orchestrator"),
	})
	if err != nil {
		log.WithError(err).Fatal("orchestrator setup failed")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := orchestrator.Run(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("orchestrator exited")
			cancel()
		}
	}()

	if cfg.Goal.Broker != "" {
		feed, err := goalfeed.Connect(cfg.Goal.Broker, cfg.Goal.Topic, orchestrator,
			logger.WithField("component", "goalfeed"))
		if err != nil {
			log.WithError(err).Fatal("goal feed setup failed")
		}
		defer feed.Close()
	}

	server := command.New(orchestrator, cfg.Command.Addr, logger.WithField("component", "command"))
	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Error("command server exited")
			cancel()
		}
	}()

	<-ctx.Done()
	server.Stop()
	log.Info("walker shut down")
	os.Exit(0)
}
