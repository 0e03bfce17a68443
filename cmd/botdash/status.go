package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/newthinker/botdash/internal/botapi"
	"github.com/newthinker/botdash/internal/core"
	"github.com/newthinker/botdash/internal/view"
	"github.com/spf13/cobra"
)

var statusTimeout time.Duration

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the bot status, current price and recent signals",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 10*time.Second, "overall request timeout")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := loadEnv(); err != nil {
		return err
	}
	cfg, _, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	renderer, err := newRenderer(cfg)
	if err != nil {
		return err
	}
	client := newClient(cfg, renderer)

	ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
	defer cancel()

	return printStatus(ctx, cmd.OutOrStdout(), client, renderer.Formatter())
}

// printStatus writes a plain-text report. Price and signal failures are
// reported inline; a status failure is returned.
func printStatus(ctx context.Context, out io.Writer, client *botapi.Client, f *view.Formatter) error {
	st, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("fetching status: %w", err)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	state := "Stopped"
	if st.Running {
		state = "Running"
	}
	fmt.Fprintf(w, "Backend:\t%s\n", client.BaseURL())
	fmt.Fprintf(w, "Status:\t%s\n", state)
	if st.LastCheck != nil {
		fmt.Fprintf(w, "Last check:\t%s\n", f.Time(*st.LastCheck))
	} else {
		fmt.Fprintf(w, "Last check:\t-\n")
	}
	fmt.Fprintf(w, "Errors:\t%d\n", st.ErrorCount)
	if st.LastSignal != nil {
		fmt.Fprintf(w, "Last signal:\t%s - %s\n", st.LastSignal.Type, f.Money(st.LastSignal.Entry))
	} else {
		fmt.Fprintf(w, "Last signal:\tNone\n")
	}

	if p, err := client.CurrentPrice(ctx); err != nil {
		fmt.Fprintf(w, "Price:\tunavailable (%v)\n", err)
	} else {
		fmt.Fprintf(w, "Price:\t%s (%s)\n", f.Money(p.Price), f.Change(p.Change24h))
		fmt.Fprintf(w, "EMA 13 / 55:\t%s / %s\n", f.Fixed(p.EMA13), f.Fixed(p.EMA55))
		fmt.Fprintf(w, "ATR:\t%s\n", f.Number(p.ATR))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	signals, err := client.Signals(ctx)
	if err != nil {
		fmt.Fprintf(out, "\nSignals unavailable: %v\n", err)
		return nil
	}
	fmt.Fprintln(out)
	return printSignals(out, signals, f)
}

func printSignals(out io.Writer, signals []core.Signal, f *view.Formatter) error {
	if len(signals) == 0 {
		fmt.Fprintln(out, "No signals available")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTYPE\tENTRY\tSTOP LOSS\tTAKE PROFIT\tATR")
	for _, s := range signals {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			f.Time(s.Timestamp), s.Type, f.Money(s.Entry), f.Money(s.StopLoss), f.Money(s.TakeProfit), f.Number(s.ATR))
	}
	return w.Flush()
}
