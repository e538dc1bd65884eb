package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pti/dm/internal/dialogueact"
	"pti/dm/internal/manager"
)

var replaySessions bool

var replayCmd = &cobra.Command{
	Use:   "replay [script]",
	Short: "Run a scripted dialogue and print the system acts",
	Long: `Reads one confusion network per line from the script (or stdin) and
feeds each to a fresh dialogue after the greeting. Blank lines are empty user
turns; lines starting with # are skipped.

Example script line:
  0.9 inform(from_stop="Central Park"); 0.7 inform(to_stop="Wall Street")`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := io.Reader(os.Stdin)
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		dir := ""
		if replaySessions {
			dir = cfg.Session.Dir
		}
		c, err := build(cfg, logger, dir, true)
		if err != nil {
			return err
		}
		defer c.Close()

		d, err := c.factory.Open()
		if err != nil {
			return err
		}
		defer d.Close()
		return replay(cmd.Context(), d, in, cmd.OutOrStdout())
	},
}

func init() {
	replayCmd.Flags().BoolVar(&replaySessions, "sessions", false, "log provider responses under session.dir")
}

func replay(ctx context.Context, d *manager.Dialogue, in io.Reader, out io.Writer) error {
	da, err := d.Turn(ctx, nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "system: %s\n", da)

	sc := bufio.NewScanner(in)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(text, "#") {
			continue
		}
		cn, errs := dialogueact.ParseConfusionNetwork(text)
		for _, e := range errs {
			fmt.Fprintf(out, "line %d: %v\n", line, e)
		}
		fmt.Fprintf(out, "user:   %s\n", cn)
		da, err := d.Turn(ctx, cn)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "system: %s\n", da)
		if da.HasDAT("bye") {
			break
		}
	}
	return sc.Err()
}
