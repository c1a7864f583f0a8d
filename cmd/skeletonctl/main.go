// skeletonctl exercises a single hobby servo attached to a Pololu
// Maestro controller: it restores the last known pose, glides to a
// target angle over a requested duration and waits out the auto-detach
// dwell before releasing the unit.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/juergmaier/skeletoncontrol/drivers"
	"github.com/juergmaier/skeletoncontrol/servo"
)

var (
	portFlag        string
	channelFlag     int
	logLevelFlag    string
	calibrationFlag string
	nameFlag        string
	minFlag         int
	maxFlag         int
	invertedFlag    bool
	autoDetachFlag  time.Duration
	lastPosFlag     int
	verboseFlag     bool

	toFlag       int
	durationFlag time.Duration
)

func main() {
	root := &cobra.Command{
		Use:           "skeletonctl",
		Short:         "Exercise a single hobby servo with timed motion",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := log.ParseLevel(logLevelFlag)
			if err != nil {
				return fmt.Errorf("unrecognized log level %q", logLevelFlag)
			}
			log.SetLevel(level)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&portFlag, "port", "/dev/ttyACM0", "Maestro serial port")
	pf.IntVar(&channelFlag, "channel", 0, "Maestro channel the servo is wired to")
	pf.StringVar(&logLevelFlag, "loglevel", "info", "Log level. Can be: debug, info, warning, error")
	pf.StringVar(&calibrationFlag, "calibration", "", "JSON calibration file; overrides the flag-based setup")
	pf.StringVar(&nameFlag, "name", "servo", "Logical servo name (key into the calibration file)")
	pf.IntVar(&minFlag, "min", 0, "Minimum angle in degrees")
	pf.IntVar(&maxFlag, "max", 180, "Maximum angle in degrees")
	pf.BoolVar(&invertedFlag, "inverted", false, "Mirror the written angle")
	pf.DurationVar(&autoDetachFlag, "auto-detach", 500*time.Millisecond, "Dwell after arrival before power-down, 0 disables")
	pf.IntVar(&lastPosFlag, "last-position", 90, "Assumed position from before the power cycle")
	pf.BoolVar(&verboseFlag, "verbose", false, "Enable per-unit diagnostic traces")

	moveCmd := &cobra.Command{
		Use:   "move",
		Short: "Glide the servo to a target angle over a duration",
		RunE:  runMove,
	}
	moveCmd.Flags().IntVar(&toFlag, "to", 90, "Target angle in degrees")
	moveCmd.Flags().DurationVar(&durationFlag, "duration", time.Second, "Transit duration")
	root.AddCommand(moveCmd)

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func unitConfig() (servo.Config, error) {
	if calibrationFlag == "" {
		return servo.Config{
			Name:         nameFlag,
			Pin:          channelFlag,
			Min:          minFlag,
			Max:          maxFlag,
			Inverted:     invertedFlag,
			AutoDetach:   autoDetachFlag,
			LastPosition: lastPosFlag,
			Verbose:      verboseFlag,
		}, nil
	}

	cals, err := servo.LoadCalibrations(calibrationFlag)
	if err != nil {
		return servo.Config{}, err
	}
	cal, ok := cals[nameFlag]
	if !ok {
		return servo.Config{}, fmt.Errorf("no calibration named %q in %s", nameFlag, calibrationFlag)
	}
	cfg := cal.Config()
	cfg.Verbose = verboseFlag
	return cfg, nil
}

func runMove(cmd *cobra.Command, args []string) error {
	cfg, err := unitConfig()
	if err != nil {
		return err
	}

	driver, err := drivers.OpenMaestro(drivers.MaestroConfig{
		Port:    portFlag,
		Channel: cfg.Pin,
	})
	if err != nil {
		return err
	}
	defer driver.Close()

	unit := servo.New(driver, servo.Options{
		Sink: servo.StatusFunc(func(st servo.Status) {
			log.WithFields(log.Fields{
				"pin":      st.Pin,
				"position": st.Position,
				"moving":   st.Moving,
				"attached": st.Attached,
			}).Info("status")
		}),
	})
	if err := unit.Configure(cfg); err != nil {
		return err
	}
	if err := unit.PowerUp(); err != nil {
		return err
	}
	if err := unit.MoveTo(toFlag, durationFlag); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			unit.Stop()
			return unit.Detach(true)
		default:
		}

		switch unit.Tick() {
		case servo.TickArrived:
			log.WithField("position", unit.Position()).Info("arrived")
			if cfg.AutoDetach == 0 {
				return unit.Detach(true)
			}
		case servo.TickDetachReady:
			log.Info("dwell elapsed, powering down")
			return unit.Detach(true)
		}
	}
}
