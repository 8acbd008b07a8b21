package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"daily-news-bot/config"
	"daily-news-bot/httpapi"
	"daily-news-bot/logging"
	"daily-news-bot/preference"
	"daily-news-bot/scheduler"
	"daily-news-bot/state"
)

const shutdownTimeout = 30 * time.Second

func main() {
	app := cli.App{
		Name:  "newsbot",
		Usage: "daily news curation bot that learns from channel reactions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file",
				Value:   config.GetConfigPath(),
			},
			&cli.StringFlag{
				Name:  "env",
				Usage: "path to a .env file; missing is fine",
				Value: ".env",
			},
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:  "curate",
			Usage: "collect, rank and publish today's articles once",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "dry-run",
					Usage: "log the slate without posting or saving state",
				},
			},
			Action: runCurate,
		},
		{
			Name:   "learn",
			Usage:  "harvest reactions and update preferences once",
			Action: runLearn,
		},
		{
			Name:   "run",
			Usage:  "run both cycles on schedule and serve the ops endpoints",
			Action: runDaemon,
		},
		{
			Name:  "stats",
			Usage: "print the learned preferences and last run times",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "top",
					Usage: "number of sources and tags to show",
					Value: 10,
				},
			},
			Action: runStats,
		},
	}
	app.RunAndExitOnError()
}

func setup(cctx *cli.Context) (*config.Config, zerolog.Logger, error) {
	if err := config.LoadEnvFile(cctx.String("env")); err != nil {
		return nil, zerolog.Nop(), err
	}
	path := cctx.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config %s: %w", path, err)
	}
	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger.Debug().Str("path", path).Str("channel", cfg.Channel.Kind).Msg("config loaded")
	return cfg, logger, nil
}

func withApp(cctx *cli.Context, opts appOptions, fn func(ctx context.Context, a *App) error) error {
	cfg, logger, err := setup(cctx)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close store")
		}
	}()
	return fn(ctx, a)
}

func runCurate(cctx *cli.Context) error {
	return withApp(cctx, appOptions{dryRun: cctx.Bool("dry-run")}, func(ctx context.Context, a *App) error {
		return a.Curate(ctx)
	})
}

func runLearn(cctx *cli.Context) error {
	return withApp(cctx, appOptions{}, func(ctx context.Context, a *App) error {
		return a.Learn(ctx)
	})
}

func runDaemon(cctx *cli.Context) error {
	return withApp(cctx, appOptions{}, func(ctx context.Context, a *App) error {
		logger := a.logger

		sched, err := scheduler.NewScheduler(a.cfg.Timezone, logger)
		if err != nil {
			return err
		}
		jobs := []struct {
			name string
			when string
			run  func(context.Context) error
		}{
			{"learn", a.cfg.Schedule.Learn, a.Learn},
			{"curate", a.cfg.Schedule.Curate, a.Curate},
		}
		for _, job := range jobs {
			job := job
			if err := sched.Schedule(job.name, job.when, func() {
				if err := job.run(ctx); err != nil {
					logger.Error().Err(err).Str("job", job.name).Msg("scheduled cycle failed")
				}
			}); err != nil {
				return err
			}
			next, _ := sched.Next(job.name)
			logger.Info().Str("job", job.name).Str("when", job.when).Time("next", next).Msg("cycle scheduled")
		}
		sched.Start()

		srv := httpapi.New(ctx, a, a.state, logger)
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start(a.cfg.HTTPAddr)
		}()

		select {
		case <-ctx.Done():
			logger.Info().Msg("received shutdown signal")
		case err = <-errCh:
			if err != nil {
				logger.Error().Err(err).Msg("ops http server stopped")
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			logger.Warn().Err(serr).Msg("ops http server shutdown")
		}
		select {
		case <-sched.Stop().Done():
		case <-shutdownCtx.Done():
			logger.Warn().Msg("running cycle did not finish before shutdown timeout")
		}
		logger.Info().Msg("bot stopped")
		return err
	})
}

func runStats(cctx *cli.Context) error {
	top := cctx.Int("top")
	if top < 1 {
		return errors.New("--top must be at least 1")
	}
	cfg, logger, err := setup(cctx)
	if err != nil {
		return err
	}
	ctx := cctx.Context
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	repo := state.NewRepository(store)
	seen, err := repo.LoadSeen(ctx)
	if err != nil {
		return err
	}
	data, err := repo.LoadLearning(ctx)
	if err != nil {
		return err
	}
	cur, err := repo.LoadCursor(ctx)
	if err != nil {
		return err
	}
	printStats(os.Stdout, seen, data, cur, top, cfg.Location())
	return nil
}

func printStats(w io.Writer, seen state.SeenSet, data state.LearningData, cur state.Cursor, top int, loc *time.Location) {
	at := func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.In(loc).Format("2006-01-02 15:04 MST")
	}

	fmt.Fprintf(w, "Last curation: %s (%d articles)\n", at(cur.LastCurationAt), cur.LastSlateSize)
	fmt.Fprintf(w, "Last learning: %s\n", at(cur.LastLearningAt))
	fmt.Fprintf(w, "Published articles: %d\n", seen.Len())
	fmt.Fprintf(w, "Tracked messages: %d\n", len(data.Applied))
	fmt.Fprintf(w, "Liked articles: %d\n", len(data.Preferences.LikedURLs))

	section := func(title string, weights []preference.Weight) {
		fmt.Fprintf(w, "\n%s:\n", title)
		if len(weights) == 0 {
			fmt.Fprintln(w, "  (none yet)")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for i, wt := range weights {
			fmt.Fprintf(tw, "  %d.\t%s\t%+.2f\n", i+1, wt.Name, wt.Weight)
		}
		tw.Flush()
	}
	section("Top sources", data.Preferences.TopSources(top))
	section("Top tags", data.Preferences.TopTags(top))
}
