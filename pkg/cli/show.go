package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/momentseek/pkg/model"
	"github.com/m-mizutani/momentseek/pkg/usecase/history"
	"github.com/urfave/cli/v3"
)

func showCommand() *cli.Command {
	var (
		cfg      config
		duration float64
	)

	flags := []cli.Flag{
		&cli.FloatFlag{
			Name:        "duration",
			Usage:       "Video duration in seconds for the timeline",
			Destination: &duration,
		},
	}
	flags = append(flags, ownerFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, engineFlagList(&cfg)...)
	flags = append(flags, logFlags(&cfg)...)

	return &cli.Command{
		Name:      "show",
		Usage:     "Show a past query with its best moment and timeline",
		ArgsUsage: "<history-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx, c.Root().ErrWriter)
			w := c.Root().Writer

			id := model.HistoryID(c.Args().First())
			if id == "" {
				return goerr.New("history ID is required")
			}

			owner, err := cfg.ownerID()
			if err != nil {
				return err
			}

			e, err := cfg.newEngine(ctx, c)
			if err != nil {
				return err
			}
			defer e.Close()

			entry, err := e.ledger.Get(ctx, owner, id)
			if err != nil {
				return goerr.Wrap(err, "failed to show history entry")
			}

			printEntry(w, entry)
			if best, ok := history.BestOf(entry); ok {
				fmt.Fprintf(w, "Best:     %s\n", formatSegment(best))
			}
			fmt.Fprintln(w)
			printResults(w, entry.Results, e.cfg.TopN)
			fmt.Fprintln(w)
			printTimeline(w, e.timelineUseCase().Timeline(entry.Results, duration))
			return nil
		},
	}
}
