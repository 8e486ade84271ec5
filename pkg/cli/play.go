package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/momentseek/pkg/model"
	"github.com/m-mizutani/momentseek/pkg/playback"
	"github.com/urfave/cli/v3"
)

const tickInterval = 250 * time.Millisecond

func playCommand() *cli.Command {
	var (
		cfg      config
		rank     int64
		start    float64
		end      float64
		duration float64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "rank",
			Usage:       "Rank of the segment to play first (1 = best match)",
			Value:       1,
			Destination: &rank,
		},
		&cli.FloatFlag{
			Name:        "start",
			Usage:       "Start of an ad hoc clip in seconds, without a history entry",
			Destination: &start,
		},
		&cli.FloatFlag{
			Name:        "end",
			Usage:       "End of an ad hoc clip in seconds",
			Destination: &end,
		},
		&cli.FloatFlag{
			Name:        "duration",
			Usage:       "Video duration in seconds",
			Destination: &duration,
		},
	}
	flags = append(flags, ownerFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, engineFlagList(&cfg)...)
	flags = append(flags, logFlags(&cfg)...)

	return &cli.Command{
		Name:      "play",
		Usage:     "Play a matched moment on a simulated media clock",
		ArgsUsage: "[history-id]",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx, c.Root().ErrWriter)

			ec, err := loadEngineConfig(cfg.engine.configPath, c, cfg.engine)
			if err != nil {
				return err
			}

			var segments model.ResultSet
			if id := c.Args().First(); id != "" {
				segments, err = loadSegments(ctx, &cfg, c, model.HistoryID(id))
				if err != nil {
					return err
				}
			} else if c.IsSet("start") || c.IsSet("end") {
				segments = model.ResultSet{{StartTime: start, EndTime: end, Confidence: 1}}
			} else {
				return goerr.New("either a history ID or --start/--end is required")
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "play> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "quit",
				Stdout:          c.Root().Writer,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to start console")
			}
			defer rl.Close()

			con := newConsole(segments, duration, ec.SkipSeconds, rl.Stdout())
			if len(segments) > 0 {
				if _, err := con.Exec(fmt.Sprintf("clip %d", rank)); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(rl.Stdout(), "No matching moment in this entry; playing in free mode.")
			}
			return con.Run(ctx, rl)
		},
	}
}

func loadSegments(ctx context.Context, cfg *config, c *cli.Command, id model.HistoryID) (model.ResultSet, error) {
	owner, err := cfg.ownerID()
	if err != nil {
		return nil, err
	}
	e, err := cfg.newEngine(ctx, c)
	if err != nil {
		return nil, err
	}
	defer e.Close()

	entry, err := e.ledger.Get(ctx, owner, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load history entry")
	}
	return entry.Results, nil
}

// mediaClock is a simulated player. The controller drives it through the
// playback.Player interface and the console advances it on every tick.
type mediaClock struct {
	position float64
	playing  bool
}

func (m *mediaClock) Seek(t float64) { m.position = t }
func (m *mediaClock) Play()          { m.playing = true }
func (m *mediaClock) Pause()         { m.playing = false }

// console runs player commands against a playback controller. All access
// to the controller is serialized by mu since ticks arrive from another
// goroutine.
type console struct {
	mu       sync.Mutex
	ctrl     *playback.Controller
	clock    *mediaClock
	segments model.ResultSet
	out      io.Writer
}

func newConsole(segments model.ResultSet, duration, skip float64, out io.Writer) *console {
	clock := &mediaClock{}
	return &console{
		ctrl:     playback.New(duration, playback.WithPlayer(clock), playback.WithSkipDelta(skip)),
		clock:    clock,
		segments: segments,
		out:      out,
	}
}

// Run reads commands until quit or EOF while the media clock ticks
func (c *console) Run(ctx context.Context, rl *readline.Instance) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Advance(tickInterval.Seconds())
			}
		}
	}()

	fmt.Fprintln(c.out, "Type 'help' for commands.")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return goerr.Wrap(err, "failed to read command")
		}

		quit, err := c.Exec(line)
		if err != nil {
			fmt.Fprintf(c.out, "Error: %s\n", err.Error())
		}
		if quit {
			return nil
		}
	}
}

// Advance moves the simulated clock forward by dt seconds while playing
func (c *console) Advance(dt float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.clock.playing {
		return
	}

	c.clock.position += dt
	if d := c.ctrl.Duration(); d > 0 && c.clock.position >= d {
		c.ctrl.Tick(d)
		c.ctrl.Pause()
		fmt.Fprintln(c.out, "End of video.")
		return
	}

	c.ctrl.Tick(c.clock.position)
	if !c.ctrl.IsPlaying() {
		c.clock.position = c.ctrl.CurrentTime()
		fmt.Fprintf(c.out, "Clip finished at %s.\n", formatTimestamp(c.ctrl.CurrentTime()))
	}
}

// Exec runs one console command and reports whether to quit
func (c *console) Exec(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "quit", "exit", "q":
		return true, nil

	case "help", "?":
		fmt.Fprintln(c.out, "play | pause | toggle | seek <sec> | ff [sec] | rw [sec] | clip [rank] | free | list | status | quit")

	case "play":
		c.ctrl.Play()
		c.printStatus()

	case "pause":
		c.ctrl.Pause()
		c.printStatus()

	case "toggle", "space":
		c.ctrl.Toggle()
		c.printStatus()

	case "seek":
		if len(args) == 0 {
			return false, goerr.New("seek needs a time in seconds")
		}
		t, err := floatArg(args, 0, 0)
		if err != nil {
			return false, err
		}
		c.ctrl.Seek(t)
		c.printStatus()

	case "ff", "forward":
		d, err := floatArg(args, 0, 0)
		if err != nil {
			return false, err
		}
		c.ctrl.SkipForward(d)
		c.printStatus()

	case "rw", "rewind", "back":
		d, err := floatArg(args, 0, 0)
		if err != nil {
			return false, err
		}
		c.ctrl.SkipBackward(d)
		c.printStatus()

	case "clip":
		rank, err := floatArg(args, 0, 1)
		if err != nil {
			return false, err
		}
		idx := int(rank) - 1
		if idx < 0 || idx >= len(c.segments) {
			return false, goerr.New("no segment with that rank", goerr.V("rank", int(rank)), goerr.V("segments", len(c.segments)))
		}
		if err := c.ctrl.EnterClip(c.segments[idx]); err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "Clip #%d: %s\n", idx+1, formatSegment(c.segments[idx]))
		c.printStatus()

	case "free":
		c.ctrl.ExitClip()
		c.printStatus()

	case "list":
		printResults(c.out, c.segments, len(c.segments))

	case "status":
		c.printStatus()

	default:
		return false, goerr.New("unknown command", goerr.V("command", cmd))
	}

	return false, nil
}

func (c *console) printStatus() {
	st := c.ctrl.State()
	state := "paused"
	if st.IsPlaying {
		state = "playing"
	}

	bounds := "free"
	if st.UpperBound != nil {
		bounds = fmt.Sprintf("clip %s - %s", formatTimestamp(st.LowerBound), formatTimestamp(*st.UpperBound))
	}
	fmt.Fprintf(c.out, "[%s] %s at %s\n", bounds, state, formatTimestamp(st.CurrentTime))
}

func floatArg(args []string, i int, def float64) (float64, error) {
	if len(args) <= i {
		return def, nil
	}
	v, err := strconv.ParseFloat(args[i], 64)
	if err != nil {
		return 0, goerr.Wrap(err, "invalid number", goerr.V("value", args[i]))
	}
	return v, nil
}
