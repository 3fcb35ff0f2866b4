package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rental-tracker/api"
	"rental-tracker/config"
	"rental-tracker/db"
	"rental-tracker/fetcher"
	"rental-tracker/notify"
	"rental-tracker/parser"
	"rental-tracker/pipeline"
	"rental-tracker/scheduler"
)

const defaultStore = "listings.db"

func main() {
	// Parse command line arguments
	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	dbLocation := flag.String("db", "", "Store location: SQLite file, .json file, postgres:// or mongodb:// URL (default: config store, DATABASE_URL, then "+defaultStore+")")
	notifyEnabled := flag.Bool("notify", false, "Send notifications for new listings")
	interval := flag.Duration("interval", 0, "Run repeatedly on this interval instead of once (overrides config)")
	serveAddr := flag.String("serve", "", "Serve the dashboard API on this address instead of crawling")
	flag.Parse()

	if err := run(*configPath, *dbLocation, *notifyEnabled, *interval, *serveAddr); err != nil {
		log.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, dbLocation string, notifyEnabled bool, interval time.Duration, serveAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if interval > 0 {
		cfg.Interval = interval
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	location := storeLocation(dbLocation, cfg)
	store, err := db.Open(ctx, location)
	if err != nil {
		return fmt.Errorf("failed to open store %s: %w", location, err)
	}
	defer store.Close()
	log.Printf("Using store %s\n", location)

	if serveAddr != "" {
		return runServer(ctx, cfg, store, serveAddr)
	}

	var notifier pipeline.Notifier
	if notifyEnabled {
		channels, err := notify.OpenChannels(ctx, cfg.Notifications, cfg.RequestTimeout)
		if err != nil {
			return err
		}
		if len(channels) == 0 {
			log.Println("Warning: notifications enabled but no channels configured")
		}
		dispatcher := notify.NewDispatcher(notify.DefaultQueueSize, channels...)
		defer dispatcher.Close()
		notifier = dispatcher
	}

	p := parser.NewParser()
	crawler := fetcher.NewCrawler(fetcher.NewCollyFetcher(cfg.RequestTimeout, cfg.UserAgent), p, cfg.MaxPages)
	runner := pipeline.NewRunner(store, crawler, p, notifier)

	job := func(ctx context.Context) error {
		// Reloaded every run so brokers and filters added to the store are picked up.
		queries, err := pipeline.LoadQueries(ctx, cfg, store)
		if err != nil {
			return err
		}
		summary, err := runner.Run(ctx, queries)
		printSummary(summary)
		return err
	}

	if cfg.Interval <= 0 {
		return job(ctx)
	}

	log.Printf("Running every %s, press Ctrl+C to stop\n", cfg.Interval)
	s := scheduler.NewScheduler(ctx, cfg.Interval, job)
	s.Start()
	s.Wait()
	return nil
}

// storeLocation picks the -db flag, then the config file, then the environment.
func storeLocation(flagValue string, cfg *config.Config) string {
	if flagValue != "" {
		return flagValue
	}
	if cfg.Store != "" {
		return cfg.Store
	}
	if dsn := db.DSNFromEnv(); dsn != "" {
		return dsn
	}
	return defaultStore
}

func runServer(ctx context.Context, cfg *config.Config, store db.Store, addr string) error {
	rules, err := pipeline.GlobalRules(ctx, cfg, store)
	if err != nil {
		return err
	}
	brokers, err := pipeline.Brokers(ctx, cfg, store)
	if err != nil {
		return err
	}
	if cfg.Server.AuthUser == "" {
		log.Println("Warning: AUTH_USER is not set, the API is unauthenticated")
	}

	server := api.NewServer(store, brokers, rules, cfg.Server.AuthUser, cfg.Server.AuthPass)
	if err := server.ListenAndServe(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

func printSummary(summary *pipeline.Summary) {
	if summary == nil || len(summary.Brokers) == 0 {
		return
	}

	fmt.Printf("Run %s\n", summary.RunID)
	fmt.Println("==================")
	for _, b := range summary.Brokers {
		status := "ok"
		if b.Err != nil {
			status = "failed: " + b.Err.Error()
		}
		fmt.Printf("%s: %d pages, %d listings, %d new, %d updated, %d filtered, %d skipped (%s)\n",
			b.Broker, b.Pages, b.Fragments, b.Inserted, b.Appended, b.Rejected, b.Skipped, status)
	}
	fmt.Printf("---\nFound %d new listings\n", summary.Inserted())
}
