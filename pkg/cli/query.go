package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/momentseek/pkg/usecase/query"
	"github.com/urfave/cli/v3"
)

func queryCommand() *cli.Command {
	var (
		cfg      config
		video    string
		question string
		aux      string
		duration float64
		asJSON   bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "video",
			Aliases:     []string{"v"},
			Usage:       "Video file path or gs://bucket/object",
			Destination: &video,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "query",
			Aliases:     []string{"q"},
			Usage:       "Question about the video",
			Destination: &question,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "aux",
			Usage:       "Label of a supporting document recorded with the query",
			Destination: &aux,
		},
		&cli.FloatFlag{
			Name:        "duration",
			Usage:       "Video duration in seconds, if known",
			Destination: &duration,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Print the outcome as JSON",
			Destination: &asJSON,
		},
	}
	flags = append(flags, ownerFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, predictorFlags(&cfg)...)
	flags = append(flags, storageFlags(&cfg)...)
	flags = append(flags, engineFlagList(&cfg)...)
	flags = append(flags, logFlags(&cfg)...)

	return &cli.Command{
		Name:  "query",
		Usage: "Ask a question about a video and find the matching moments",
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

			uc, err := cfg.newQueryUseCase(ctx, e, nil)
			if err != nil {
				return err
			}

			v, err := cfg.newVideo(ctx, video, duration)
			if err != nil {
				return err
			}

			req := query.Request{Owner: owner, Video: v, Query: question}
			if label := strings.TrimSpace(aux); label != "" {
				req.AuxDocumentLabel = &label
			}

			sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(c.Root().ErrWriter))
			sp.Suffix = " Finding moments in " + v.Label
			if !asJSON {
				sp.Start()
			}
			out, err := uc.Run(ctx, req)
			sp.Stop()
			if err != nil {
				return goerr.Wrap(err, "failed to run query")
			}

			if asJSON {
				return printOutcomeJSON(c, out)
			}

			printResults(w, out.Results(), e.cfg.TopN)
			fmt.Fprintln(w)
			printTimeline(w, out.Timeline)
			fmt.Fprintln(w)
			if out.PersistErr != nil {
				printError(w, "Warning", out.PersistErr)
			} else {
				fmt.Fprintf(w, "Saved to history: %s\n", out.Entry.ID)
			}
			return nil
		},
	}
}

func printOutcomeJSON(c *cli.Command, out *query.Outcome) error {
	doc := map[string]any{
		"entry":    out.Entry,
		"timeline": out.Timeline,
		"no_match": out.NoMatch,
		"top":      out.Top(0),
	}
	if out.PersistErr != nil {
		doc["persist_error"] = out.PersistErr.Error()
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to marshal outcome")
	}
	fmt.Fprintf(c.Root().Writer, "%s\n", string(data))
	return nil
}
