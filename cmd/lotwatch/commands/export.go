package commands

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lotwatch/lotwatch/internal/config"
	"github.com/lotwatch/lotwatch/internal/output"
	"github.com/lotwatch/lotwatch/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored listings as JSON, JSONL or YAML",
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	exportCmd.Flags().String("format", "json", "output format: json, jsonl, yaml")
	exportCmd.Flags().String("source", "", "only export listings from this source")
}

func runExport(cmd *cobra.Command, args []string) error {
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

	out := os.Stdout
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	format, _ := cmd.Flags().GetString("format")
	writer, err := output.NewWriter(out, output.Format(format))
	if err != nil {
		return err
	}
	for _, l := range listings {
		if err := writer.Write(l); err != nil {
			return err
		}
	}
	return writer.Flush()
}
