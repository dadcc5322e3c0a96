package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/thpgw/internal/device"
	goble "github.com/srg/thpgw/internal/device/go-ble"
	"golang.org/x/term"
)

type scanOptions struct {
	duration time.Duration
	all      bool
	color    string
}

type scanEntry struct {
	adv      device.Advertisement
	lastSeen time.Time
	sensor   bool
}

func newScanCmd() *cobra.Command {
	opts := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for BLE peripherals",
		Long: `Lists the peripherals advertising nearby. The configured sensor is marked
with '*' and highlighted when stdout is a terminal.

Examples:
  # Scan for 10 seconds, show only named peripherals
  thpgw scan

  # Scan for 30 seconds and show every advertisement
  thpgw scan --duration 30s --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd, opts)
		},
	}

	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 10*time.Second, "Scan duration")
	cmd.Flags().BoolVarP(&opts.all, "all", "a", false, "Include peripherals without a local name")
	cmd.Flags().StringVar(&opts.color, "color", "auto", "Colour output (auto, always, never)")
	return cmd
}

func runScan(cmd *cobra.Command, opts *scanOptions) error {
	if opts.duration <= 0 {
		return fmt.Errorf("invalid duration %v: must be positive", opts.duration)
	}
	if opts.color != "auto" && opts.color != "always" && opts.color != "never" {
		return fmt.Errorf("invalid color mode '%s': must be one of [auto always never]", opts.color)
	}

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	central := goble.NewCentral(logger)
	defer central.Close()

	ctx, cancel := context.WithTimeout(commandContext(cmd), opts.duration)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var mu sync.Mutex
	seen := make(map[string]*scanEntry)
	err = central.Scan(ctx, true, func(adv device.Advertisement) {
		if !opts.all && adv.LocalName() == "" {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		seen[adv.Addr()] = &scanEntry{
			adv:      adv,
			lastSeen: time.Now(),
			sensor: device.MatchesName(adv, cfg.Sensor.Name) ||
				(cfg.Sensor.Address != "" && device.MatchesAddress(adv, cfg.Sensor.Address)),
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("scan failed: %w", err)
	}

	mu.Lock()
	entries := make([]*scanEntry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	mu.Unlock()

	out := cmd.OutOrStdout()
	return writeScanTable(out, entries, useColor(opts.color, out))
}

// useColor decides whether escape sequences are written to out
func useColor(mode string, out io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func writeScanTable(out io.Writer, entries []*scanEntry, colored bool) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(out, "No devices discovered")
		return err
	}

	// sensor first, then strongest signal
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].sensor != entries[j].sensor {
			return entries[i].sensor
		}
		if entries[i].adv.RSSI() != entries[j].adv.RSSI() {
			return entries[i].adv.RSSI() > entries[j].adv.RSSI()
		}
		return entries[i].adv.Addr() < entries[j].adv.Addr()
	})

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, " \tNAME\tADDRESS\tRSSI\tCONNECTABLE\tSERVICES\tLAST SEEN")
	for _, e := range entries {
		mark := " "
		if e.sensor {
			mark = "*"
		}
		name := e.adv.LocalName()
		if name == "" {
			name = "(unnamed)"
		}
		if len(name) > 24 {
			name = name[:21] + "..."
		}
		services := strings.Join(e.adv.Services(), ",")
		if len(services) > 40 {
			services = services[:37] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d dBm\t%t\t%s\t%s ago\n",
			mark, name, e.adv.Addr(), e.adv.RSSI(), e.adv.Connectable(), services,
			time.Since(e.lastSeen).Truncate(time.Second))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	// colour whole lines after alignment so escape codes do not skew the columns
	header := color.New(color.Bold)
	match := color.New(color.FgGreen, color.Bold)
	for _, c := range []*color.Color{header, match} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	for i, line := range lines {
		var err error
		switch {
		case i == 0:
			_, err = header.Fprintln(out, line)
		case strings.HasPrefix(line, "*"):
			_, err = match.Fprintln(out, line)
		default:
			_, err = fmt.Fprintln(out, line)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
