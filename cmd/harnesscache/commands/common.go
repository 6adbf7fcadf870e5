package commands

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/harnesscache/internal/assets"
	"git.home.luguber.info/inful/harnesscache/internal/config"
	"git.home.luguber.info/inful/harnesscache/internal/fetch"
	"git.home.luguber.info/inful/harnesscache/internal/foundation/errors"
	"git.home.luguber.info/inful/harnesscache/internal/logfields"
	"git.home.luguber.info/inful/harnesscache/internal/metrics"
	"git.home.luguber.info/inful/harnesscache/internal/state"
)

// Global carries state shared by all subcommands. It is populated in
// CLI.AfterApply once flags are parsed.
type Global struct {
	Ctx      context.Context
	Out      io.Writer
	Config   *config.Config
	Recorder metrics.Recorder

	metricsServer *http.Server
}

// CLI definition & global flags.
type CLI struct {
	Config    string           `short:"c" help:"Configuration file path" env:"HARNESS_CONFIG" type:"path"`
	Verbose   bool             `short:"v" help:"Enable verbose logging"`
	Version   kong.VersionFlag `name:"version" help:"Show version and exit"`
	CacheRoot string           `name:"cache-root" help:"Override cache.root" type:"path"`
	Artifacts string           `name:"artifacts" help:"Override state.artifacts_dir" type:"path"`

	Fetch  FetchCmd  `cmd:"" help:"Fetch an asset by its published hash and print the cached path"`
	Expand ExpandCmd `cmd:"" help:"Expand a tar archive into the cache and print the directory"`
	Hash   HashCmd   `cmd:"" help:"Print the SHA-256 of a file"`
	Cache  CacheCmd  `cmd:"" help:"Inspect the asset cache"`
	State  StateCmd  `cmd:"" help:"Read and modify the run state document"`
}

// AfterApply runs after flag parsing: load configuration, set up logging and
// the optional metrics endpoint.
func (c *CLI) AfterApply(g *Global) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if c.CacheRoot != "" {
		cfg.Cache.Root = c.CacheRoot
	}
	if c.Artifacts != "" {
		cfg.State.ArtifactsDir = c.Artifacts
	}
	g.Config = cfg

	level := cfg.Logging.Level.SlogLevel()
	if c.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Logging.Format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))

	g.Recorder = metrics.NoopRecorder{}
	if cfg.Metrics.Listen != "" {
		g.startMetrics(cfg.Metrics.Listen)
	}
	return nil
}

func (g *Global) startMetrics(addr string) {
	reg := prometheus.NewRegistry()
	g.Recorder = metrics.NewPrometheusRecorder(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(reg))
	g.metricsServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := g.metricsServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", slog.String("addr", addr), logfields.Error(err))
		}
	}()
	slog.Info("Serving metrics", slog.String("addr", addr))
}

// Close stops the metrics endpoint, if one was started.
func (g *Global) Close() {
	if g.metricsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.metricsServer.Shutdown(ctx); err != nil {
		slog.Warn("Failed to stop metrics server", logfields.Error(err))
	}
}

// Cache builds the asset cache from configuration.
func (g *Global) Cache() *assets.Cache {
	return assets.New(g.Config.Cache.Root,
		assets.WithFetcher(fetch.NewHTTPFetcher(g.Config.Cache.HTTPTimeout)),
		assets.WithTarCommand(g.Config.Cache.TarCommand),
		assets.WithRecorder(g.Recorder))
}

// OpenStore loads the run state written by an earlier "state init".
func (g *Global) OpenStore() (*state.Store, error) {
	return state.Open(g.Config.StatePath(), state.WithRecorder(g.Recorder))
}

func (g *Global) println(a ...any) {
	_, _ = fmt.Fprintln(g.Out, a...)
}

// Execute parses args, runs the selected command and returns the process
// exit code.
func Execute(ctx context.Context, args []string, out io.Writer, version string) int {
	cli := &CLI{}
	g := &Global{Ctx: ctx, Out: out}
	parser, err := kong.New(cli,
		kong.Name("harnesscache"),
		kong.Description("Content-addressed asset cache and run state for test harnesses."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
		kong.Writers(out, os.Stderr),
		kong.Bind(g),
	)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "harnesscache: %v\n", err)
		return 10
	}
	defer g.Close()

	kctx, err := parser.Parse(args)
	if err == nil {
		err = kctx.Run(g)
	}
	if err == nil {
		return 0
	}

	if !errors.IsClassified(err) {
		var parseErr *kong.ParseError
		if stderrors.As(err, &parseErr) {
			_, _ = fmt.Fprintf(os.Stderr, "harnesscache: %v\n", err)
			return 2
		}
	}
	return errors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).Report(err)
}
