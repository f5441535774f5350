package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"forumpoll/internal/app"
	"forumpoll/internal/config"
	"forumpoll/internal/poll"
	"forumpoll/internal/runtime/sdnotify"

	"github.com/urfave/cli"
)

var pollFlags = []cli.Flag{
	cli.Int64Flag{Name: "pollid", Usage: "poll id"},
	cli.Int64Flag{Name: "pid", Usage: "id of the post carrying the poll"},
}

var errNoPoll = errors.New("no poll found")

type parseOutput struct {
	Title    string        `json:"title"`
	Options  []string      `json:"options"`
	Settings poll.Settings `json:"settings"`
	EndAt    int64         `json:"end_at,omitempty"`
}

func serve(c *cli.Context) error {
	a, err := app.NewApp(c.GlobalString("config"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		return err
	}
	sdnotify.Ready(a.Logger())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	reason := app.StopUnknown
	select {
	case sig := <-sigs:
		reason = app.StopSIGINT
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-a.Done():
		reason = app.StopFatalError
	}
	sdnotify.Stopping(a.Logger())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}

func parse(c *cli.Context) error {
	text, err := readInput(c)
	if err != nil {
		return err
	}
	cfgm, err := loadConfig(c, false)
	if err != nil {
		return err
	}
	parsed, ok := poll.NewParser(config.NewPollSource(cfgm)).Parse(text)
	if !ok {
		return errNoPoll
	}
	if len(parsed.Options) == 0 {
		return poll.ErrNoOptions
	}
	end, _ := parsed.Settings.End()
	return writeJSON(c.App.Writer, parseOutput{
		Title:    parsed.Settings.Title(),
		Options:  parsed.Options,
		Settings: parsed.Settings,
		EndAt:    end,
	})
}

func strip(c *cli.Context) error {
	text, err := readInput(c)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, poll.RemoveMarkup(text))
	return err
}

func closePoll(c *cli.Context) error {
	return withApp(c, func(ctx context.Context, a *app.App) error {
		if pid := c.Int64("pid"); pid > 0 {
			return a.Hooks().ClosePollByPost(ctx, pid)
		}
		if id := c.Int64("pollid"); id > 0 {
			return a.Hooks().ClosePoll(ctx, id)
		}
		return errors.New("one of --pollid or --pid is required")
	})
}

func show(c *cli.Context) error {
	return withApp(c, func(ctx context.Context, a *app.App) error {
		st := a.Store()
		if c.Bool("scheduled") {
			ids, err := st.ScheduledPolls(ctx)
			if err != nil {
				return err
			}
			return writeJSON(c.App.Writer, ids)
		}
		id := c.Int64("pollid")
		if pid := c.Int64("pid"); pid > 0 {
			var err error
			if id, err = st.PollIDByPost(ctx, pid); err != nil {
				return err
			}
		}
		if id <= 0 {
			return errors.New("one of --pollid, --pid or --scheduled is required")
		}
		p, err := st.GetPoll(ctx, id)
		if err != nil {
			return err
		}
		return writeJSON(c.App.Writer, p)
	})
}

// withApp wires the app without starting it, runs fn and shuts down. The
// audit trail of fn is flushed by Stop.
func withApp(c *cli.Context, fn func(ctx context.Context, a *app.App) error) error {
	cfgm, err := loadConfig(c, true)
	if err != nil {
		return err
	}
	a, err := app.New(cfgm)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	runErr := fn(ctx, a)
	if err := a.Stop(ctx, app.StopCommand); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// loadConfig loads the --config file. When the file does not exist and
// required is false, built-in defaults are used.
func loadConfig(c *cli.Context, required bool) (*config.ConfigManager, error) {
	path := c.GlobalString("config")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !required {
		return config.NewStatic(&config.Config{}), nil
	}
	cfgm := config.NewConfigManager(path)
	if _, err := cfgm.Load(); err != nil {
		return nil, err
	}
	return cfgm, nil
}

func readInput(c *cli.Context) (string, error) {
	name := c.Args().First()
	var r io.Reader = os.Stdin
	if name != "" && name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
