package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/mattn/go-isatty"

	"github.com/gwillem/armlink/internal/log"
	"github.com/gwillem/armlink/pkg/config"
)

type Options struct {
	Config   string `short:"c" long:"config" default:"armlink.json" description:"Configuration file"`
	LogLevel string `long:"log-level" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log level"`

	Setup       SetupCommand       `command:"setup" description:"Configure the rig connection and calibrate servos"`
	Teleoperate TeleoperateCommand `command:"teleoperate" alias:"teleop" description:"Drive the rig from body pose or keys"`
	Rig         RigCommand         `command:"rig" description:"Serve commands on the rig side and drive the servos"`
	Scan        ScanCommand        `command:"scan" description:"List serial ports with rig servos"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "armlink - gesture teleoperation for ESP32 servo rigs"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file named by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFrom(opts.Config)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// initLogging sends logs to w, colored when w is a terminal.
func initLogging(w io.Writer) *slog.Logger {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd())
	}
	return log.Init(opts.LogLevel, w, color)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
