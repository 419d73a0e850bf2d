package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"oscc-brake/brake"
	"oscc-brake/utils"
)

func main() {
	var (
		iface        = flag.String("iface", "vcan0", "SocketCAN interface name")
		profileName  = flag.String("profile", "", "Vehicle calibration profile (defaults to the scenario's)")
		profilesPath = flag.String("profiles", "", "Optional YAML file with extra calibration profiles")
		scenPath     = flag.String("scenario", "brake_commander/scenarios/ramp_hold_release.json", "Pedal scenario JSON file")
		logLevel     = flag.String("log", "info", "trace|debug|info|warn|error|critical")
		logFile      = flag.String("log-file", "brake_commander.log", "Rotated log file path")
	)
	flag.Parse()

	log, err := utils.NewFileLogger(*logFile, utils.ParseLevel(*logLevel), true)
	if err != nil {
		_, _ = os.Stderr.WriteString("ERROR: cannot open log: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Close()

	if code := run(log, *iface, *profileName, *profilesPath, *scenPath); code != 0 {
		_ = log.Close()
		os.Exit(code)
	}
}

func run(log *utils.Logger, iface, profileName, profilesPath, scenPath string) int {
	scen, err := LoadScenario(scenPath)
	if err != nil {
		log.Critical("Load scenario %s: %v", scenPath, err)
		return 1
	}

	profiles := brake.BuiltinProfiles()
	if profilesPath != "" {
		extra, err := brake.LoadProfiles(profilesPath)
		if err != nil {
			log.Critical("Load profiles %s: %v", profilesPath, err)
			return 1
		}
		profiles = profiles.Merge(extra)
	}
	if profileName == "" {
		profileName = scen.Meta.Profile
	}
	cal, err := profiles.Lookup(profileName)
	if err != nil {
		log.Critical("Profile: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus, err := utils.NewSocketCANBus(ctx, iface)
	if err != nil {
		log.Critical("Startup failed: %v", err)
		return 1
	}

	cfg := RunnerConfig{
		Interface:    iface,
		ProfileName:  cal.Name,
		ScenarioPath: scenPath,
	}
	runner, err := NewRunner(cfg, cal, scen, bus, log)
	if err != nil {
		log.Critical("Startup failed: %v", err)
		return 1
	}
	defer runner.Close()

	err = runner.Run(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	case errors.Is(err, ErrOperatorOverride):
		log.Warn("Driver took over; brakes returned to manual control")
		return 0
	default:
		log.Critical("Run failed: %v", err)
		return 1
	}
}
