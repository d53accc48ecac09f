package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Dyastin-0/gochat/client"
	"github.com/Dyastin-0/gochat/logger"
	"github.com/Dyastin-0/gochat/picker"
	"github.com/Dyastin-0/gochat/progress"
	"github.com/Dyastin-0/gochat/styles"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/chzyer/readline"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
)

func chatAction(ctx context.Context, cmd *cli.Command, network string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	path, err := logger.LogPath("client")
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Options{Path: path, Level: cfg.Log.Level})
	if err != nil {
		return err
	}

	name := cmd.String("user")
	if !cmd.IsSet("user") {
		err := huh.NewInput().
			Title("Enter your username:").
			Value(&name).
			Run()
		if err != nil {
			return err
		}
	}
	name = strings.TrimSpace(name)

	opts := client.Options{
		ReplyTimeout: replyTimeout(cmd),
		IdleTimeout:  cfg.IdleTimeout,
		Logger:       log.WithStr("transport", network),
	}

	var c *client.Client
	addr := cmd.String("addr")

	switch network {
	case "udp":
		opts.ChunkSize = cfg.UDPChunkSize
		c, err = client.DialUDP(ctx, addr, opts)
	default:
		opts.ChunkSize = cfg.ChunkSize
		c, err = client.DialTCP(ctx, addr, opts)
	}
	if err != nil {
		return err
	}
	defer c.Close()

	var ok bool
	err = spinner.New().Title("registering...").ActionWithErr(
		func(ctx context.Context) error {
			ok, err = c.Register(ctx, name)
			return err
		},
	).Run()
	if err != nil {
		return err
	}

	if ok {
		fmt.Println(styles.SUCCESS.Render(fmt.Sprintf("username '%s' registered", name)))
	} else {
		fmt.Println(styles.INFO.Render(fmt.Sprintf("username refused, continuing as %s", c.Username())))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          styles.PROMPT.Render(c.Username()+">") + " ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	r := newREPL(c, rl.Stdout(), progress.New())
	r.help()

	return r.run(ctx, rl.Readline)
}

// repl turns input lines into client requests.
type repl struct {
	client   *client.Client
	out      io.Writer
	progress *progress.Progress

	// pick chooses a file when "file" is given no path.
	pick func() (string, error)
}

func newREPL(c *client.Client, out io.Writer, p *progress.Progress) *repl {
	return &repl{
		client:   c,
		out:      out,
		progress: p,
		pick: func() (string, error) {
			return picker.New(".").Run()
		},
	}
}

func (r *repl) help() {
	fmt.Fprintln(r.out, styles.INFO.Render("commands:"))
	fmt.Fprintln(r.out, styles.INFO.Render("  file <path>  send a file"))
	fmt.Fprintln(r.out, styles.INFO.Render("  file         choose a file to send"))
	fmt.Fprintln(r.out, styles.INFO.Render("  quit         exit"))
	fmt.Fprintln(r.out, styles.INFO.Render("  anything else is sent as a message"))
}

func (r *repl) run(ctx context.Context, readLine func() (string, error)) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := readLine()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return nil
		}

		quit, err := r.exec(ctx, line)
		if err != nil {
			fmt.Fprintln(r.out, styles.ERROR.Render(err.Error()))
		}
		if quit {
			return err
		}
	}
}

// exec runs one line. quit is true on "quit" or when the connection is gone.
func (r *repl) exec(ctx context.Context, line string) (quit bool, err error) {
	input := strings.TrimSpace(line)

	switch {
	case input == "":
		return false, nil

	case input == "quit":
		return true, nil

	case input == "help":
		r.help()
		return false, nil

	case input == "file":
		var path string
		path, err = r.pick()
		if errors.Is(err, picker.ErrCanceled) {
			return false, nil
		}
		if err == nil {
			err = r.sendFile(ctx, path)
		}

	case strings.HasPrefix(input, "file "):
		err = r.sendFile(ctx, strings.TrimSpace(strings.TrimPrefix(input, "file ")))

	default:
		var echo string
		echo, err = r.client.SendMessage(ctx, line)
		if err == nil {
			fmt.Fprintln(r.out, styles.Server(echo))
		}
	}

	return errors.Is(err, client.ErrConnectionLost), err
}

func (r *repl) sendFile(ctx context.Context, path string) error {
	var tracker *progress.Tracker

	sent, err := r.client.SendFile(ctx, path, func(name string, size int64) io.Writer {
		tracker = r.progress.Track(size, name)
		return tracker
	})
	if tracker != nil {
		tracker.Finish()
		r.progress.Reset()
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(r.out, styles.SUCCESS.Render(fmt.Sprintf("file sent (%s) ✓", humanize.Bytes(uint64(sent)))))
	return nil
}
