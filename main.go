package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"auto_wordpress_article_publisher/bot"
	"auto_wordpress_article_publisher/config"
	"auto_wordpress_article_publisher/generator"
	"auto_wordpress_article_publisher/history"
	"auto_wordpress_article_publisher/imagesearch"
	"auto_wordpress_article_publisher/instance"
	"auto_wordpress_article_publisher/logging"
	"auto_wordpress_article_publisher/pipeline"
	"auto_wordpress_article_publisher/publisher"
	"auto_wordpress_article_publisher/schedule"
	"auto_wordpress_article_publisher/server"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

const upstreamTimeout = 90 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is what every command gets after config and logging are set up.
type app struct {
	cfg      config.Config
	logger   *log.Logger
	closeLog io.Closer
}

func (a *app) Close() {
	if err := a.closeLog.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "close log file:", err)
	}
}

type loader func() (*app, error)

func newRootCmd() *cobra.Command {
	var configPath, envFile string

	root := &cobra.Command{
		Use:           "wpbot",
		Short:         "Telegram bot that writes articles and schedules them on WordPress",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (default $WPBOT_CONFIG)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to a .env file")

	load := func() (*app, error) {
		cfg, warnings, err := config.Load(config.Options{
			Path:    configPath,
			EnvFile: envFile,
			Secrets: config.Keyring{},
		})
		if err != nil {
			return nil, err
		}
		logger, closer, err := logging.New(logging.Config{Level: cfg.Log.Level, File: cfg.Log.File, Stderr: os.Stderr})
		if err != nil {
			return nil, err
		}
		for _, w := range warnings {
			logger.Warn(w)
		}
		return &app{cfg: cfg, logger: logger, closeLog: closer}, nil
	}

	root.AddCommand(newServeCmd(load))
	root.AddCommand(newSlotCmd(load))
	root.AddCommand(newPublishCmd(load))
	root.AddCommand(newHistoryCmd(load))
	root.AddCommand(newSecretCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newServeCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(cmd.Context(), a)
		},
	}
}

func serve(parent context.Context, a *app) error {
	cfg, logger := a.cfg, a.logger
	if err := cfg.Validate(config.PartTelegram, config.PartLLM, config.PartWordPress, config.PartUnsplash); err != nil {
		return err
	}

	lock, err := instance.Acquire(cfg.LockFile)
	if err != nil {
		if errors.Is(err, instance.ErrAlreadyRunning) {
			return fmt.Errorf("%w (lock %s); send /kill to it or stop it first", err, cfg.LockFile)
		}
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("failed to release lock", "path", lock.Path(), "err", err)
		}
	}()
	logger.Info("instance lock acquired", "path", lock.Path(), "pid", os.Getpid())

	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var ledger *history.Store
	if cfg.HistoryEnabled() {
		ledger, err = history.Open(ctx, cfg.History.DSN)
		if err != nil {
			return err
		}
		defer ledger.Close()
	}

	seq, err := buildSequencer(cfg, logger, ledger)
	if err != nil {
		return err
	}
	tg, err := bot.NewTelegram(cfg.Telegram.Token, logger)
	if err != nil {
		return err
	}
	b, err := bot.New(seq, tg, bot.Options{
		AllowedChats: cfg.Telegram.AllowedChats,
		Stop:         cancel,
		Logger:       logger.WithPrefix("bot"),
		Location:     cfg.Schedule.Location(),
	})
	if err != nil {
		return err
	}

	if cfg.StatusAddr != "" {
		var l server.Ledger
		if ledger != nil {
			l = ledger
		}
		srv, err := server.New(b, l, logger.WithPrefix("http"))
		if err != nil {
			return err
		}
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.StatusAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server stopped", "err", err)
			}
		}()
	}

	logger.Info("bot is running", "timezone", cfg.Schedule.Timezone, "slot", cfg.Schedule.Slot(), "status", cfg.WordPress.Status)
	if err := b.Serve(ctx, tg.Updates(ctx)); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shut down")
	return nil
}

func buildSequencer(cfg config.Config, logger *log.Logger, ledger *history.Store) (*pipeline.Sequencer, error) {
	httpClient := &http.Client{Timeout: upstreamTimeout}

	llm, err := buildLLM(cfg.LLM, httpClient)
	if err != nil {
		return nil, err
	}
	agent, err := generator.NewAgent(llm, generator.WithBrand(generator.Brand{Token: cfg.Brand.Token, URL: cfg.Brand.URL}))
	if err != nil {
		return nil, err
	}
	unsplash, err := imagesearch.NewUnsplash(cfg.Unsplash.AccessKey, cfg.Unsplash.BaseURL, httpClient, logger.WithPrefix("unsplash"))
	if err != nil {
		return nil, err
	}
	finder, err := imagesearch.NewFinder(agent, unsplash, logger.WithPrefix("images"))
	if err != nil {
		return nil, err
	}
	wp, err := buildWordPress(cfg, httpClient, logger)
	if err != nil {
		return nil, err
	}
	resolver, err := buildResolver(cfg, wp, logger, nil)
	if err != nil {
		return nil, err
	}
	pub, err := publisher.New(wp, logger.WithPrefix("publisher"))
	if err != nil {
		return nil, err
	}

	deps := pipeline.Deps{
		Generator: agent,
		Images:    finder,
		Slots:     resolver,
		Publisher: pub,
		Location:  cfg.Schedule.Location(),
		Logger:    logger.WithPrefix("pipeline"),
	}
	if ledger != nil {
		deps.Recorder = ledger
	}
	return pipeline.New(deps)
}

func buildWordPress(cfg config.Config, httpClient *http.Client, logger *log.Logger) (*publisher.Client, error) {
	return publisher.NewClient(publisher.Config{
		SiteURL:    cfg.WordPress.SiteURL,
		Token:      cfg.WordPress.Token,
		Username:   cfg.WordPress.Username,
		Status:     cfg.WordPress.Status,
		Categories: cfg.WordPress.Categories,
		PageSize:   cfg.WordPress.PageSize,
	}, httpClient, logger.WithPrefix("wordpress"))
}

func buildResolver(cfg config.Config, lister schedule.ReservationLister, logger *log.Logger, now func() time.Time) (*schedule.Resolver, error) {
	return schedule.NewResolver(lister, schedule.Options{
		Location: cfg.Schedule.Location(),
		Slot:     cfg.Schedule.Slot(),
		Strict:   cfg.Schedule.StrictDates,
		Now:      now,
	}, logger.WithPrefix("schedule"))
}

func buildLLM(cfg config.LLMConfig, httpClient *http.Client) (generator.LLMClient, error) {
	settings := &generator.LLMSettings{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
	}
	switch cfg.Provider {
	case "openai", "":
		return generator.NewOpenAILLMFromConfig(settings, httpClient)
	case "deepseek":
		// DeepSeek speaks the OpenAI API; base_url is required.
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
		}
		return generator.NewOpenAILLMFromConfig(settings, httpClient)
	case "mock":
		return generator.MockLLM{}, nil
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.Provider)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wpbot %s (commit=%s, built=%s)\n", Version, CommitSHA, BuildDate)
		},
	}
}
