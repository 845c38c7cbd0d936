package commands

import (
	"context"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lotwatch/lotwatch/internal/config"
	"github.com/lotwatch/lotwatch/internal/store"
)

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "Show the stored listings",
	RunE:  runListings,
}

func init() {
	rootCmd.AddCommand(listingsCmd)
	listingsCmd.Flags().String("source", "", "only show listings from this source")
}

func runListings(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	source, _ := cmd.Flags().GetString("source")
	listings, err := st.All(context.Background(), source)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Title", "Price", "Mileage", "Location", "Status", "First seen", "Notified"})
	for _, l := range listings {
		price, mileage := "-", "-"
		if l.Price != nil {
			price = "$" + humanize.Comma(int64(*l.Price))
		}
		if l.Mileage != nil {
			mileage = humanize.Comma(int64(*l.Mileage))
		}
		notified := ""
		if l.Notified {
			notified = "yes"
		}
		t.AppendRow(table.Row{
			l.Title, price, mileage, l.Location, l.Status,
			l.FirstSeen.Format("2006-01-02"), notified,
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
	return nil
}
