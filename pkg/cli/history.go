package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/momentseek/pkg/model"
	"github.com/urfave/cli/v3"
)

func historyCommand() *cli.Command {
	var (
		cfg      config
		sort     string
		order    string
		page     int64
		pageSize int64
		search   string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "sort",
			Usage:       "Sort field (createdAt, queryText)",
			Value:       string(model.SortByCreatedAt),
			Destination: &sort,
		},
		&cli.StringFlag{
			Name:        "order",
			Usage:       "Sort direction (asc, desc)",
			Value:       string(model.SortDesc),
			Destination: &order,
		},
		&cli.IntFlag{
			Name:        "page",
			Usage:       "Page number, starting at 1",
			Value:       1,
			Destination: &page,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Entries per page (default: page_size of the engine config)",
			Destination: &pageSize,
		},
		&cli.StringFlag{
			Name:        "search",
			Aliases:     []string{"s"},
			Usage:       "Only entries whose query or video contains this text",
			Destination: &search,
		},
	}
	flags = append(flags, ownerFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, engineFlagList(&cfg)...)
	flags = append(flags, logFlags(&cfg)...)

	return &cli.Command{
		Name:  "history",
		Usage: "List past queries",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx, c.Root().ErrWriter)
			w := c.Root().Writer

			owner, err := cfg.ownerID()
			if err != nil {
				return err
			}

			e, err := cfg.newEngine(ctx, c)
			if err != nil {
				return err
			}
			defer e.Close()

			result, err := e.ledger.Query(ctx, owner, model.HistoryQuery{
				SortField:     model.SortField(sort),
				SortDirection: model.SortDirection(order),
				Page:          int(page),
				PageSize:      int(pageSize),
				SearchText:    search,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to query history")
			}

			if result.TotalCount == 0 {
				fmt.Fprintln(w, "No history entries.")
				return nil
			}

			for _, entry := range result.Entries {
				best := "no match"
				if seg, ok := entry.Best(); ok {
					best = formatSegment(seg)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					entry.ID,
					entry.CreatedAt.Local().Format("2006-01-02 15:04"),
					entry.VideoLabel,
					strings.ReplaceAll(entry.QueryText, "\t", " "),
					best)
			}
			fmt.Fprintf(w, "page %d/%d (%d entries)\n", result.Page, result.TotalPages, result.TotalCount)
			return nil
		},
	}
}
