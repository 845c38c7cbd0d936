// Package commands implements the CLI commands for lotwatch.
package commands

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lotwatch/lotwatch/internal/config"
	"github.com/lotwatch/lotwatch/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "lotwatch",
	Short: "Watch a car dealer's inventory and get notified about new listings",
	Long: `Lotwatch periodically scrapes CarMax for vehicle listings matching your
search criteria, tracks which listings it has already seen, and emails a
digest of the newly discovered ones.

Examples:
  # One scrape run with the configured defaults
  lotwatch scrape

  # Look for an automatic 2020-2022 Toyota GR Supra under $50k
  lotwatch scrape --make Toyota --model Supra --year-start 2020 \
      --year-end 2022 --max-price 50000 --transmission automatic

  # Keep scraping on a schedule
  lotwatch watch --schedule "0 */6 * * *"

  # Inspect what has been found so far
  lotwatch listings
  lotwatch export --format jsonl`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init(logger.Options{
			Debug: viper.GetBool("debug"),
			Quiet: viper.GetBool("quiet"),
			JSON:  viper.GetBool("log-json"),
		})
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default $HOME/.lotwatch.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "only log errors")
	rootCmd.PersistentFlags().Bool("log-json", false, "log as JSON")
	rootCmd.PersistentFlags().String("database", "", "path to the listings database")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("log-json", rootCmd.PersistentFlags().Lookup("log-json"))
	_ = viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("database"))
}

func initConfig() {
	// SMTP credentials commonly live in a .env next to the binary
	_ = godotenv.Load()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".lotwatch")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("LOTWATCH")
	viper.AutomaticEnv()

	_ = viper.BindEnv("smtp.server", "SMTP_SERVER")
	_ = viper.BindEnv("smtp.port", "SMTP_PORT")
	_ = viper.BindEnv("smtp.user", "EMAIL_USER")
	_ = viper.BindEnv("smtp.password", "EMAIL_PASSWORD")
	_ = viper.BindEnv("smtp.recipient", "NOTIFICATION_EMAIL")

	config.SetDefaults(viper.GetViper())

	// Read config file (ignore error if not found)
	_ = viper.ReadInConfig()
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		logger.Error("fatal", "error", err)
	}
	return err
}
