package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roman-kulish/frequency-response/cmd/fresp/app"
)

var (
	logLevel slog.LevelVar
	logger   = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &logLevel}))

	levelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "fresp",
	Short: "Measure the frequency response of a circuit with an oscilloscope and a signal generator",
	Long: `fresp sweeps a sine stimulus across a frequency range, autoscales the
oscilloscope at every step and reports gain and phase (or delay) between the
input and output channels.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("log-level") {
			return logLevel.UnmarshalText([]byte(levelFlag))
		}
		return nil
	},
}

var (
	configPath string

	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Run a sweep described by a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config := app.NewConfig()
			if configPath != "" {
				var err error
				if config, err = app.LoadConfig(configPath); err != nil {
					return fmt.Errorf("failed to load configuration file %s: %w", configPath, err)
				}
			}

			if !cmd.Flags().Changed("log-level") {
				logLevel.Set(config.LogLevel())
			}
			return app.Run(cmd.Context(), config, logger)
		},
	}
)

var (
	dbPath    string
	sessionID int64
	output    string

	sessionsCmd = &cobra.Command{
		Use:   "sessions",
		Short: "List stored sweeps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.ListSessions(cmd.Context(), dbPath, cmd.OutOrStdout())
		},
	}

	plotCmd = &cobra.Command{
		Use:   "plot",
		Short: "Render a stored sweep as a Bode chart (.png, .svg or .pdf)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Plot(cmd.Context(), dbPath, sessionID, output, logger)
		},
	}
)

var (
	simulate  = app.SimulateConfig{Q: 0.7071}
	frequency string

	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Serve a simulated oscilloscope and generator wired through a filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if simulate.Frequency, err = app.ParseQuantity(frequency); err != nil {
				return err
			}
			return app.Simulate(cmd.Context(), simulate, logger)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&levelFlag, "log-level", "info", "log level (debug, info, warn, error)")

	sweepCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the configuration file (defaults apply when omitted)")

	for _, cmd := range []*cobra.Command{sessionsCmd, plotCmd} {
		cmd.Flags().StringVar(&dbPath, "db", "", "path to the database file")
		_ = cmd.MarkFlagRequired("db")
	}
	plotCmd.Flags().Int64VarP(&sessionID, "session", "s", 1, "session ID")
	plotCmd.Flags().StringVarP(&output, "output", "o", "", "path to the output file")
	_ = plotCmd.MarkFlagRequired("output")

	simulateCmd.Flags().StringVar(&simulate.ScopeAddress, "scope", "127.0.0.1:5025", "oscilloscope listen address")
	simulateCmd.Flags().StringVar(&simulate.GeneratorAddress, "generator", "127.0.0.1:5555", "generator listen address")
	simulateCmd.Flags().StringVar(&simulate.Filter, "filter", "lowpass", "device under test (lowpass, highpass, bandpass, notch, wire)")
	simulateCmd.Flags().StringVar(&frequency, "cutoff", "10k", "filter cutoff or center frequency")
	simulateCmd.Flags().Float64VarP(&simulate.Q, "q", "q", 0.7071, "filter Q")
	simulateCmd.Flags().Float64Var(&simulate.Gain, "gain", 1, "passband gain")

	rootCmd.AddCommand(sweepCmd, sessionsCmd, plotCmd, simulateCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(app.ExitCode(err))
	}
}
