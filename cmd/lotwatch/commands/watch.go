package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lotwatch/lotwatch/internal/config"
	"github.com/lotwatch/lotwatch/internal/logger"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Scrape on a schedule until interrupted",
	Long: `Run scrape passes on a cron schedule. Each pass stores what it finds
and emails a digest of new listings, exactly like a single scrape run.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	addSearchFlags(watchCmd)
	watchCmd.Flags().String("schedule", "0 */6 * * *", "cron schedule for scrape runs")
	watchCmd.Flags().Bool("immediate", true, "run once immediately before waiting for the schedule")
}

func runWatch(cmd *cobra.Command, args []string) error {
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

	schedule, _ := cmd.Flags().GetString("schedule")
	immediate, _ := cmd.Flags().GetBool("immediate")

	if immediate {
		if err := runOnce(ctx, cfg, crit); err != nil {
			logger.Error("run failed", "error", err)
		}
	}

	c := newScheduler()
	_, err = c.AddFunc(schedule, func() {
		if err := runOnce(ctx, cfg, crit); err != nil {
			logger.Error("scheduled run failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	logger.Info("watching", "schedule", schedule, "criteria", crit.String())
	c.Start()
	<-ctx.Done()

	logger.Info("shutting down")
	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}

// newScheduler returns a cron scheduler whose jobs never overlap: a pass
// that outlives its schedule interval causes the next trigger to be
// skipped, keeping runs strictly sequential over the shared database.
func newScheduler() *cron.Cron {
	return cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{})))
}

// cronLogger routes cron's own messages through the process logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	logger.Debug(msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	logger.Error(msg, append([]any{"error", err}, kv...)...)
}
