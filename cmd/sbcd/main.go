package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/sbc/internal/daemon"
	"github.com/matheus3301/sbc/internal/logging"
	"github.com/matheus3301/sbc/internal/profile"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	quiet := flag.Bool("quiet", false, "log to the profile log file only")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			ProfileName: profileName,
			Log:         logging.Options{Level: *logLevel, Quiet: *quiet},
		}),
	)

	app.Run()
}
