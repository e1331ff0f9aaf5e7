package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/gwillem/armlink/pkg/command"
	"github.com/gwillem/armlink/pkg/peer"
	"github.com/gwillem/armlink/pkg/robot"
)

type RigCommand struct {
	Listen string `long:"listen" env:"ARMLINK_LISTEN" description:"Address to accept the operator on (overrides config)"`
	Serial string `long:"serial" description:"Servo serial port (overrides config)"`
	DryRun bool   `long:"dry-run" description:"Keep servo positions in memory instead of driving hardware"`
	Silent bool   `long:"silent" description:"Do not acknowledge commands"`
}

func (c *RigCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Listen != "" {
		cfg.Listen = c.Listen
	}
	if c.Serial != "" {
		cfg.Servos.Port = c.Serial
	}

	logger := initLogging(os.Stderr)
	if !cfg.Servos.IsCalibrated() {
		logger.Warn("servos not calibrated, using default ranges")
		cfg.Servos.Calibration = robot.DefaultCalibration()
	}

	codec, err := command.NewCodec(cfg.Tokens)
	if err != nil {
		return err
	}

	bus, err := openRigBus(cfg.Servos, c.DryRun, logger)
	if err != nil {
		return err
	}
	defer bus.Close()

	rig := robot.NewRig(bus, cfg.Servos, logger.With("component", "rig"))
	server := peer.NewServer(codec, rig, logger.With("component", "peer"))
	server.Silent = c.Silent

	ctx, cancel := signalContext()
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rig.Start(ctx) })
	g.Go(func() error { return server.ListenAndServe(ctx, cfg.Listen) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openRigBus(cfg robot.RigConfig, dryRun bool, logger *slog.Logger) (robot.Bus, error) {
	if dryRun {
		logger.Info("dry run, servos are simulated")
		return robot.NewMemoryBus(nil), nil
	}
	if cfg.Port == "" {
		return nil, fmt.Errorf("no servo port configured (run setup, pass --serial or use --dry-run)")
	}
	return robot.OpenBus(cfg.Port, cfg.Calibration.ServoIDs()...)
}
