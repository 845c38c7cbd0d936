package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lotwatch/lotwatch/internal/carmax"
	"github.com/lotwatch/lotwatch/internal/config"
	"github.com/lotwatch/lotwatch/internal/listing"
	"github.com/lotwatch/lotwatch/internal/logger"
	"github.com/lotwatch/lotwatch/internal/notify"
	"github.com/lotwatch/lotwatch/internal/store"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run one scrape pass and email newly found listings",
	Long: `Scrape the dealer inventory once for listings matching the search
criteria, store them, and email a digest of the ones not seen before.

Flags override the configured search defaults.`,
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
	addSearchFlags(scrapeCmd)
}

// addSearchFlags registers the criteria flags shared by scrape and watch.
func addSearchFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("make", "", "car make (e.g. BMW, Toyota)")
	flags.String("model", "", "car model (e.g. M2, Camry)")
	flags.Int("year-start", 0, "starting year for the search")
	flags.Int("year-end", 0, "ending year for the search")
	flags.Int("max-miles", 0, "maximum mileage (0 = no limit)")
	flags.Int("max-price", 0, "maximum price in dollars (0 = no limit)")
	flags.String("transmission", "", "transmission preference: manual, automatic or any")
}

// searchCriteria merges config defaults with any flags set on cmd.
func searchCriteria(cmd *cobra.Command, cfg config.Config) (listing.Criteria, error) {
	search := cfg.Search
	flags := cmd.Flags()

	if flags.Changed("make") {
		search.Make, _ = flags.GetString("make")
	}
	if flags.Changed("model") {
		search.Model, _ = flags.GetString("model")
	}
	if flags.Changed("year-start") {
		search.YearStart, _ = flags.GetInt("year-start")
	}
	if flags.Changed("year-end") {
		search.YearEnd, _ = flags.GetInt("year-end")
	}
	if flags.Changed("max-miles") {
		search.MaxMileage, _ = flags.GetInt("max-miles")
	}
	if flags.Changed("max-price") {
		search.MaxPrice, _ = flags.GetInt("max-price")
	}
	if flags.Changed("transmission") {
		search.Transmission, _ = flags.GetString("transmission")
	}

	return search.Criteria()
}

func runScrape(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	crit, err := searchCriteria(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return runOnce(ctx, cfg, crit)
}

// runOnce performs one full run: acquire, store, notify, prune. Expected
// failures along the way are logged and the run continues with whatever
// bookkeeping still works; only cancellation and store-open failures
// surface as errors.
func runOnce(ctx context.Context, cfg config.Config, crit listing.Criteria) error {
	start := time.Now()
	logger.Info("starting run", "criteria", crit.String())

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	notifier := notify.New(cfg.SMTP.SMTPConfig())
	if notifier.Enabled() {
		if err := notifier.Verify(); err != nil {
			logger.Warn("smtp verification failed, notifications may not work", "error", err)
		}
	}

	scraper := carmax.New(crit, carmax.Config{})
	found, err := scraper.Listings(ctx)
	if err != nil {
		return err
	}

	var fresh []listing.Listing
	for _, l := range found {
		isNew, err := st.Upsert(ctx, l)
		if err != nil {
			logger.Error("failed to store listing", "url", l.URL, "error", err)
			continue
		}
		if isNew {
			fresh = append(fresh, l)
		}
	}
	logger.Info("listings stored", "found", len(found), "new", len(fresh))

	if len(fresh) > 0 {
		notifyNew(ctx, st, notifier, fresh)
	} else {
		logger.Info("no new listings")
	}

	if purged, err := st.PurgeOlderThan(ctx, 30); err != nil {
		logger.Warn("failed to purge stale listings", "error", err)
	} else if purged > 0 {
		logger.Info("purged stale listings", "count", purged)
	}

	if stats, err := st.Stats(ctx); err != nil {
		logger.Warn("failed to read store stats", "error", err)
	} else {
		logger.Info("store stats",
			"total", stats.Total, "unnotified", stats.Unnotified, "by_source", stats.BySource)
	}

	logger.Info("run complete", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// notifyNew sends the digest and marks the covered rows notified. A failed
// send leaves the rows unnotified so the next run picks them up again.
func notifyNew(ctx context.Context, st *store.Store, notifier *notify.Notifier, fresh []listing.Listing) {
	if err := notifier.Send(fresh); err != nil {
		logger.Error("failed to send digest", "error", err)
		return
	}

	urls := make(map[string]bool, len(fresh))
	for _, l := range fresh {
		urls[l.URL] = true
	}

	unnotified, err := st.Unnotified(ctx)
	if err != nil {
		logger.Error("failed to list unnotified rows", "error", err)
		return
	}
	var ids []int64
	for _, l := range unnotified {
		if urls[l.URL] {
			ids = append(ids, l.ID)
		}
	}
	if err := st.MarkNotified(ctx, ids); err != nil {
		logger.Error("failed to mark listings notified", "error", err)
		return
	}
	logger.Info("marked notified", "count", len(ids))
}
