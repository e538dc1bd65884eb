package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pti/dm/internal/health"
	"pti/dm/internal/resolver"
)

var (
	whenSlots resolver.TimeSlots
	whenNow   string
)

var whenCmd = &cobra.Command{
	Use:   "when",
	Short: "Resolve time slot values to a timestamp",
	Long: `Runs the time resolver on the given slot values, in the ontology time zone.

Example:
  ptidm when --rel 0:20
  ptidm when --abs 7:30 --ampm pm --date tomorrow`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ont, err := loadOntology(cfg)
		if err != nil {
			return err
		}
		now := time.Now().In(ont.Location())
		if whenNow != "" {
			now, err = time.ParseInLocation("2006-01-02 15:04", whenNow, ont.Location())
			if err != nil {
				return fmt.Errorf("bad --now: %w", err)
			}
		}
		t, kind := resolver.Interpret(now, whenSlots)
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", t.Format("Mon 2006-01-02 15:04 MST"), kind)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the directions and weather providers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()
		st := health.CheckAll(ctx, cfg)
		fmt.Fprint(cmd.OutOrStdout(), st.String())
		if !st.OK {
			return fmt.Errorf("health check failed")
		}
		return nil
	},
}

func init() {
	f := whenCmd.Flags()
	f.StringVar(&whenSlots.Abs, "abs", "", "absolute clock time, e.g. 7:30")
	f.StringVar(&whenSlots.AMPM, "ampm", "", "morning, am, pm, evening or night")
	f.StringVar(&whenSlots.Rel, "rel", "", "relative time H:MM, or now")
	f.StringVar(&whenSlots.DateRel, "date", "", "today, tomorrow or day_after_tomorrow")
	f.StringVar(&whenSlots.LTA, "lta", "", "slot talked about last, e.g. departure_time_rel")
	f.StringVar(&whenNow, "now", "", `reference time "YYYY-MM-DD HH:MM"`)
}
