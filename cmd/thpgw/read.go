package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/thpgw/internal/cache"
	goble "github.com/srg/thpgw/internal/device/go-ble"
	"github.com/srg/thpgw/internal/gateway"
	"github.com/srg/thpgw/internal/hexcodec"
	"github.com/srg/thpgw/internal/link"
	"github.com/srg/thpgw/internal/poller"
	"github.com/srg/thpgw/internal/report"
	"github.com/srg/thpgw/internal/sensor"
)

type readOptions struct {
	kinds   []string
	timeout time.Duration
	json    bool
	hex     bool
}

func newReadCmd() *cobra.Command {
	opts := &readOptions{}
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read the sensor once",
		Long: `Connects to the sensor, samples each requested kind once (trigger write,
then read) and prints the values.

Examples:
  # Read everything
  thpgw read

  # Read temperature only, print the raw payload too
  thpgw read --kind temperature --hex

  # Print the same JSON the gateway reports
  thpgw read --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRead(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.kinds, "kind", "k", nil, "Kinds to read (temperature, humidity, pressure); all by default")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 60*time.Second, "Overall timeout including scan and connect")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the report JSON")
	cmd.Flags().BoolVar(&opts.hex, "hex", false, "Also print the raw payload as hex")
	return cmd
}

func runRead(cmd *cobra.Command, opts *readOptions) error {
	kinds := sensor.Kinds()
	if len(opts.kinds) > 0 {
		kinds = nil
		for _, s := range opts.kinds {
			k, err := sensor.ParseKind(strings.TrimSpace(s))
			if err != nil {
				return err
			}
			kinds = append(kinds, k)
		}
	}
	if opts.json && opts.hex {
		return fmt.Errorf("--json and --hex are mutually exclusive")
	}

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	pollCfg, err := gateway.PollerConfig(cfg)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	central := goble.NewCentral(logger)
	defer central.Close()

	ctx, cancel := context.WithTimeout(commandContext(cmd), opts.timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	l := link.New(gateway.LinkConfig(cfg), central, logger)
	linkCtx, stopLink := context.WithCancel(ctx)
	linkDone := make(chan error, 1)
	go func() { linkDone <- l.Run(linkCtx) }()
	defer func() {
		stopLink()
		<-linkDone
	}()

	if err := l.WaitReady(ctx); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w within %v (last link state: %s)", ErrSensorNotFound, opts.timeout, l.State())
		}
		return err
	}

	c := cache.New(0)
	set := poller.NewSet(pollCfg, l, c, logger, kinds...)
	readings := make([]sensor.Reading, 0, len(kinds))
	for _, k := range kinds {
		r, err := set.PollOnce(ctx, k)
		if err != nil {
			return fmt.Errorf("read %s: %w", k, err)
		}
		readings = append(readings, r)
	}

	out := cmd.OutOrStdout()
	if opts.json {
		data, err := json.Marshal(report.Build(c.Snapshot(time.Now()), time.Now()))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, r := range readings {
		if opts.hex {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Kind.Label(), sensor.FormatValue(r.Value), hexcodec.Encode(r.Raw))
			continue
		}
		fmt.Fprintf(w, "%s\t%s\n", r.Kind.Label(), sensor.FormatValue(r.Value))
	}
	return w.Flush()
}
