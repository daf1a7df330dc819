package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"depthview/internal/book"
	"depthview/internal/config"
	"depthview/internal/fixfeed"
	"depthview/internal/hub"
	"depthview/internal/logger"
	"depthview/internal/metrics"
	"depthview/internal/notify"
	"depthview/internal/pipeline"
	"depthview/internal/servers"
	"depthview/internal/sink"
	"depthview/internal/wsclient"
)

type feed interface {
	Run(ctx context.Context) error
}

func main() {
	envLoaded := config.LoadEnv()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid config:", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Level(cfg.LogLevel))
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	log.Info("depthview starting",
		logger.NewField("env_file", envLoaded),
		logger.NewField("transport", cfg.Feed.Transport),
		logger.NewField("instrument", cfg.Feed.Instrument),
	)

	root, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	store := book.NewStore()

	h := hub.New(m, log.WithFields(logger.NewField("component", "hub")))
	renderers := []pipeline.Renderer{h}

	if cfg.Redis.URL != "" {
		rp, err := sink.NewRedisPublisher(root, cfg.Redis.URL, cfg.Redis.Password, cfg.Feed.Instrument, cfg.Redis.TTL, log)
		if err != nil {
			log.Error(err)
			os.Exit(1)
		}
		defer rp.Close()
		renderers = append(renderers, rp)
	}

	pipe := pipeline.New(store, pipeline.Config{
		LadderDepth:     cfg.Ladder.Depth,
		MergeDuplicates: cfg.Depth.MergeDuplicates,
	}, m, log.WithFields(logger.NewField("component", "pipeline")), renderers...)

	var src feed
	feedLog := log.WithFields(logger.NewField("component", "feed"))
	switch cfg.Feed.Transport {
	case config.TransportFIX:
		src = fixfeed.New(fixfeed.Config{
			SettingsPath: cfg.FIX.Config,
			Symbol:       cfg.FIX.Symbol,
			Username:     cfg.FIX.Username,
			Password:     cfg.FIX.Password,
		}, store, m, feedLog)
	default:
		src = wsclient.New(wsclient.Config{
			URL:              cfg.Feed.URL,
			HandshakeTimeout: cfg.Feed.HandshakeTimeout,
			BackoffInitial:   cfg.Feed.BackoffInitial,
			BackoffMax:       cfg.Feed.BackoffMax,
		}, store, m, feedLog)
	}

	router := servers.NewRouter(servers.Deps{
		Status:  store,
		Views:   pipe,
		WS:      h.ServeWS,
		Metrics: m.Handler(),
		Log:     log,
	})

	// Shutdown runs in stages: the feed stops writing, then the pipeline and
	// its renderers, then HTTP.
	feedCtx, cancelFeed := context.WithCancel(context.Background())
	pipeCtx, cancelPipe := context.WithCancel(context.Background())
	httpCtx, cancelHTTP := context.WithCancel(context.Background())

	var feedWG, pipeWG, httpWG sync.WaitGroup
	fatal := make(chan error, 1)
	report := func(err error) {
		select {
		case fatal <- err:
		default:
		}
	}

	pipeWG.Add(2)
	go func() {
		defer pipeWG.Done()
		h.Run(pipeCtx)
	}()
	go func() {
		defer pipeWG.Done()
		_ = pipe.Run(pipeCtx)
	}()

	if cfg.Telegram.Enabled() {
		tg, err := notify.NewTelegram(cfg.Telegram)
		if err != nil {
			log.Error(err)
		} else {
			pipeWG.Add(1)
			go func() {
				defer pipeWG.Done()
				_ = notify.NewStatusWatcher(store, tg, cfg.Feed.Instrument, log).Run(pipeCtx)
			}()
		}
	}

	httpWG.Add(1)
	go func() {
		defer httpWG.Done()
		if err := servers.Serve(httpCtx, cfg.HTTP.Addr, router, log); err != nil {
			report(err)
		}
	}()

	feedWG.Add(1)
	go func() {
		defer feedWG.Done()
		if err := src.Run(feedCtx); err != nil && feedCtx.Err() == nil {
			report(err)
		}
	}()

	exitCode := 0
	select {
	case <-root.Done():
		log.Info("shutdown signal received")
	case err := <-fatal:
		log.Error(err)
		exitCode = 1
	}

	cancelFeed()
	feedWG.Wait()
	cancelPipe()
	pipeWG.Wait()
	cancelHTTP()
	httpWG.Wait()

	log.Info("depthview stopped")
	if exitCode != 0 {
		_ = log.Sync()
		os.Exit(exitCode)
	}
}
