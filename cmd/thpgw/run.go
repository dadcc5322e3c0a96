package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	goble "github.com/srg/thpgw/internal/device/go-ble"
	"github.com/srg/thpgw/internal/gateway"
)

type runOptions struct {
	autostart bool
	reportURL string
	listen    string
	outbox    string
	name      string
	address   string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the gateway",
		Long: `Scans for the sensor, keeps the connection alive and on timers writes the
trigger, reads temperature, humidity and pressure, and reports them.

Examples:
  # Run with the built-in defaults
  thpgw run

  # Report to another endpoint and expose the control API
  thpgw run --report-url http://localhost:8080/Sensor_THP/SensorPush --listen 127.0.0.1:8090

  # Connect but wait for PUT /polling before sampling
  thpgw run --autostart=false --listen 127.0.0.1:8090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGateway(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.autostart, "autostart", true, "Start polling as soon as the gateway runs")
	cmd.Flags().StringVar(&opts.reportURL, "report-url", "", "Report endpoint URL (overrides report.http.url)")
	cmd.Flags().StringVar(&opts.listen, "listen", "", "Control API listen address (overrides api.listen)")
	cmd.Flags().StringVar(&opts.outbox, "outbox", "", "Outbox database path (overrides report.outbox.path)")
	cmd.Flags().StringVar(&opts.name, "name", "", "Sensor local name, matched as a substring")
	cmd.Flags().StringVar(&opts.address, "address", "", "Sensor address")
	return cmd
}

func runGateway(cmd *cobra.Command, opts *runOptions) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("autostart") {
		cfg.Poll.Autostart = opts.autostart
	}
	if flags.Changed("report-url") {
		cfg.Report.HTTP.URL = opts.reportURL
	}
	if flags.Changed("listen") {
		cfg.API.Listen = opts.listen
	}
	if flags.Changed("outbox") {
		cfg.Report.Outbox.Path = opts.outbox
	}
	if flags.Changed("name") {
		cfg.Sensor.Name = opts.name
	}
	if flags.Changed("address") {
		cfg.Sensor.Address = opts.address
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	central := goble.NewCentral(logger)
	defer central.Close()

	gw, err := gateway.New(cfg, central, logger)
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return gw.Run(ctx)
}

// commandContext returns cmd's context, or Background when run outside Execute
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
