// Command drawbot joins a room as a headless participant, draws one shape
// and stays connected so other participants can watch it.
package main

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/manpreetbhatti/inkboard/internal/client"
	"github.com/manpreetbhatti/inkboard/internal/logging"
	"github.com/manpreetbhatti/inkboard/internal/shape"
)

type options struct {
	server string
	room   string
	name   string
	color  string
	tool   string
	x, y   float64
	size   float64
	steps  int
	linger time.Duration
	debug  bool
}

func main() {
	var opts options
	fs := pflag.NewFlagSet("drawbot", pflag.ExitOnError)
	fs.StringVar(&opts.server, "server", "ws://localhost:8080/ws", "relay websocket URL")
	fs.StringVar(&opts.room, "room", "default", "room to join")
	fs.StringVar(&opts.name, "name", "drawbot", "name shown next to the cursor")
	fs.StringVar(&opts.color, "color", client.DefaultColor, "stroke color")
	fs.StringVar(&opts.tool, "tool", string(client.ToolPencil), "pencil, rectangle or ellipse")
	fs.Float64Var(&opts.x, "x", 100, "start x")
	fs.Float64Var(&opts.y, "y", 100, "start y")
	fs.Float64Var(&opts.size, "size", 120, "shape extent")
	fs.IntVar(&opts.steps, "steps", 24, "pointer moves per gesture")
	fs.DurationVar(&opts.linger, "linger", 30*time.Second, "stay connected this long after drawing")
	fs.BoolVar(&opts.debug, "debug", false, "debug logging")
	fs.Parse(os.Args[1:])

	level := "info"
	if opts.debug {
		level = "debug"
	}
	logger, err := logging.New(level, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, logger); err != nil {
		logger.Error("drawbot failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, logger *zap.Logger) error {
	target, err := url.Parse(opts.server)
	if err != nil {
		return fmt.Errorf("server url: %w", err)
	}
	q := target.Query()
	q.Set("room", opts.room)
	target.RawQuery = q.Encode()

	topts := client.DefaultTransportOptions()
	topts.Logger = logger.Named("transport")
	tr, err := client.Dial(ctx, target.String(), topts)
	if err != nil {
		return err
	}
	defer tr.Close()

	c := client.New(tr,
		client.WithName(opts.name),
		client.WithColor(opts.color),
		client.WithTool(client.Tool(opts.tool)),
		client.WithLogger(logger),
	)

	runErr := make(chan error, 1)
	go func() { runErr <- tr.Run(ctx, c) }()

	// let the first remote snapshot arrive so the drawing lands on top of it
	select {
	case <-time.After(500 * time.Millisecond):
	case err := <-runErr:
		return err
	}

	draw(c, opts)
	logger.Info("shape drawn",
		zap.String("room", opts.room),
		zap.Int("shapes", len(c.Shapes())),
		zap.Int("members", c.Members()))

	select {
	case <-ctx.Done():
	case <-time.After(opts.linger):
	case err := <-runErr:
		return err
	}
	return nil
}

// draw performs one gesture: a circle traced point by point for the pencil,
// a diagonal drag for rectangle and ellipse.
func draw(c *client.Client, opts options) {
	start := shape.Point{X: opts.x, Y: opts.y}
	steps := max(opts.steps, 1)

	c.PointerDown(start, "")
	for i := 1; i <= steps; i++ {
		f := float64(i) / float64(steps)
		var p shape.Point
		if c.Tool() == client.ToolPencil {
			a := 2 * math.Pi * f
			r := opts.size / 2
			p = shape.Point{X: start.X + r - r*math.Cos(a), Y: start.Y + r*math.Sin(a)}
		} else {
			p = shape.Point{X: start.X + opts.size*f, Y: start.Y + opts.size*f}
		}
		c.PointerMove(p)
		time.Sleep(client.DefaultCursorInterval)
	}
	c.PointerUp()
}
