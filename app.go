package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"daily-news-bot/article"
	"daily-news-bot/bot"
	"daily-news-bot/config"
	"daily-news-bot/digest"
	"daily-news-bot/feeds"
	"daily-news-bot/filter"
	"daily-news-bot/harvest"
	"daily-news-bot/hn"
	"daily-news-bot/httpclient"
	"daily-news-bot/langdetect"
	"daily-news-bot/learning"
	"daily-news-bot/normalize"
	"daily-news-bot/preference"
	"daily-news-bot/ranker"
	"daily-news-bot/scraper"
	"daily-news-bot/slackbot"
	"daily-news-bot/state"
	"daily-news-bot/storage"
	"daily-news-bot/telegram"
)

// channel is a publishing destination that can also list its history.
type channel interface {
	digest.Publisher
	harvest.History
}

// App holds all application dependencies. Curate and Learn never overlap.
type App struct {
	cfg     *config.Config
	logger  zerolog.Logger
	store   storage.Store
	state   *state.Repository
	curator *digest.Curator
	learner *learning.Learner

	mu sync.Mutex
}

type appOptions struct {
	dryRun bool
}

func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (storage.Store, error) {
	store, err := storage.Open(ctx, storage.Options{
		Backend:     cfg.Storage.Backend,
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresDSN: cfg.Storage.PostgresDSN,
		RedisAddr:   cfg.Storage.RedisAddr,
		RedisPrefix: cfg.Storage.RedisPrefix,
		GitHub: storage.GitHubOptions{
			Token:      cfg.Storage.GitHub.Token,
			Repository: cfg.Storage.GitHub.Repository,
			Branch:     cfg.Storage.GitHub.Branch,
			Dir:        cfg.Storage.GitHub.Dir,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger.Info().Str("backend", cfg.Storage.Backend).Msg("store opened")
	return store, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts appOptions) (*App, error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	app := &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
		state:  state.NewRepository(store),
	}

	ch, err := newChannel(cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	curator, err := newCurator(cfg, app.state, ch, logger, opts)
	if err != nil {
		store.Close()
		return nil, err
	}
	app.curator = curator
	app.learner = newLearner(cfg, app.state, ch, logger)
	return app, nil
}

func newChannel(cfg *config.Config, store storage.Store, logger zerolog.Logger) (channel, error) {
	pacer := bot.NewPacer(cfg.Channel.PostDelay, cfg.Channel.ReactDelay)
	switch cfg.Channel.Kind {
	case "telegram":
		c, err := telegram.New(cfg.Channel.Telegram.Token, cfg.Channel.Telegram.Chat, store,
			telegram.WithPacer(pacer),
			telegram.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("connect telegram: %w", err)
		}
		return c, nil
	default:
		opts := []slackbot.Option{slackbot.WithPacer(pacer), slackbot.WithLogger(logger)}
		if cfg.Channel.Slack.APIURL != "" {
			opts = append(opts, slackbot.WithAPIURL(cfg.Channel.Slack.APIURL))
		}
		return slackbot.New(cfg.Channel.Slack.Token, cfg.Channel.Slack.Channel, opts...), nil
	}
}

func newCurator(cfg *config.Config, st *state.Repository, pub digest.Publisher, logger zerolog.Logger, opts appOptions) (*digest.Curator, error) {
	fetchers, err := newFetchers(cfg, logger)
	if err != nil {
		return nil, err
	}
	src := cfg.Sources
	collector := feeds.NewCollector(fetchers,
		feeds.WithConcurrency(src.Concurrency),
		feeds.WithExcerpter(scraper.NewScraper(src.FetchTimeout), src.BackfillLimit),
		feeds.WithCollectorLogger(logger),
	)

	classifier, err := langdetect.New(cfg.Language.Primary, cfg.Language.Secondary)
	if err != nil {
		return nil, fmt.Errorf("language detector: %w", err)
	}

	cur := cfg.Curation
	normalizer := normalize.New(normalize.Options{
		RecencyWindow: cur.RecencyWindow,
		TagRules:      cur.TagRules,
		FallbackTag:   cur.FallbackTag,
		Classifier:    classifier,
	})
	f := filter.New(filter.Policy{
		TrustedSource:  cur.TrustedSource,
		ExcludePhrases: cur.ExcludePhrases,
		ExcludeDomains: cur.ExcludeDomains,
		IncludePhrases: cur.IncludePhrases,
		MinTitleLength: cur.MinTitleLength,
	})
	scorer := ranker.NewScorer(
		ranker.WithTrustedSource(cur.TrustedSource, cur.TrustedSourceBonus),
		ranker.WithFactors(cur.SourceFactor, cur.TagFactor),
		ranker.WithPriorityKeywords(cur.KeywordBonus, cur.PriorityKeywords...),
	)

	formatter := bot.Formatter{
		Markup:   bot.Plain,
		Mention:  cfg.Channel.Mention,
		Location: cfg.Location(),
	}
	if cfg.Channel.Kind == "telegram" {
		formatter.Markup = bot.HTML
	}

	return digest.NewCurator(collector, normalizer, f, scorer, st, pub,
		digest.WithBackfiller(collector),
		digest.WithSlateSize(cur.SlateSize),
		digest.WithRecencyWindow(cur.RecencyWindow),
		digest.WithSeedReactions(cfg.Channel.SeedReactions...),
		digest.WithFormatter(formatter),
		digest.WithDryRun(opts.dryRun),
		digest.WithLogger(logger),
	), nil
}

func newFetchers(cfg *config.Config, logger zerolog.Logger) ([]feeds.Fetcher, error) {
	src := cfg.Sources
	hc := httpclient.New(src.FetchTimeout, httpclient.WithLogger(logger))

	var fetchers []feeds.Fetcher
	for _, fc := range src.Feeds {
		lang, err := article.ParseLanguage(fc.Language)
		if err != nil {
			return nil, fmt.Errorf("feed %s: %w", fc.Name, err)
		}
		fetchers = append(fetchers, feeds.NewRSS(fc.Name, fc.URLs,
			feeds.WithLanguage(lang),
			feeds.WithTags(fc.Tags...),
			feeds.WithHTTPClient(hc),
			feeds.WithLogger(logger),
		))
	}
	for _, sc := range src.Searches {
		lang, err := article.ParseLanguage(sc.Language)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", sc.Name, err)
		}
		fetchers = append(fetchers, feeds.NewSearch(sc.Name, sc.Endpoint, sc.Query, sc.Tags,
			feeds.WithLanguage(lang),
			feeds.WithHTTPClient(hc),
			feeds.WithLogger(logger),
		))
	}
	if src.HackerNews.Enabled {
		hnc := src.HackerNews
		lang, err := article.ParseLanguage(hnc.Language)
		if err != nil {
			return nil, fmt.Errorf("hacker news: %w", err)
		}
		list, err := hn.ParseList(hnc.List)
		if err != nil {
			return nil, err
		}
		fetchers = append(fetchers, hn.NewFetcher(hn.NewClient(hn.WithHTTPClient(hc)), hn.FetcherOptions{
			List:     list,
			Limit:    hnc.Limit,
			Language: lang,
			Tags:     hnc.Tags,
			Logger:   logger,
		}))
	}
	return fetchers, nil
}

func newLearner(cfg *config.Config, st *state.Repository, history harvest.History, logger zerolog.Logger) *learning.Learner {
	opts := []learning.Option{
		learning.WithLookback(cfg.Learning.Lookback),
		learning.WithDecayRate(cfg.Learning.DecayRate),
		learning.WithLogger(logger),
	}
	if pos, neg := cfg.Learning.Positive, cfg.Learning.Negative; len(pos) > 0 || len(neg) > 0 {
		if len(pos) == 0 {
			pos = preference.DefaultPositive
		}
		if len(neg) == 0 {
			neg = preference.DefaultNegative
		}
		opts = append(opts, learning.WithPolicy(preference.NewReactionPolicy(pos, neg)))
	}
	return learning.NewLearner(harvest.New(history, logger), st, opts...)
}

// Curate runs one curation cycle.
func (a *App) Curate(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.curator.Run(ctx)
	if err != nil {
		return fmt.Errorf("curation cycle %s: %w", res.RunID, err)
	}
	return nil
}

// Learn runs one learning cycle.
func (a *App) Learn(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.learner.Run(ctx)
	if err != nil {
		return fmt.Errorf("learning cycle %s: %w", res.RunID, err)
	}
	return nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.store.Close()
}
