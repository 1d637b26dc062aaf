package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/placepin/importer/internal/model"
	"github.com/placepin/importer/internal/pipeline"
	"github.com/placepin/importer/internal/templates"
)

var (
	importTemplate string
	importTextFile string
	importConfirm  bool
	importDebug    bool
)

var importCmd = &cobra.Command{
	Use:   "import [url]",
	Short: "Run the address import pipeline on a URL, text file, or template",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initImporter(ctx, cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		// Surface reviewing/terminal stages through a channel; the pipeline
		// itself runs asynchronously.
		done := make(chan pipeline.Snapshot, 1)
		e.Coordinator.AddObserver(func(snap pipeline.Snapshot) {
			switch snap.Stage.Kind {
			case model.StageReviewing, model.StageFailed:
				select {
				case done <- snap:
				default:
				}
			case model.StageGeocoding:
				fmt.Fprintf(cmd.OutOrStdout(), "geocoding %d/%d\r", snap.Stage.Done, snap.Stage.Total)
			}
		})

		source := "stdin"
		switch {
		case importTemplate != "":
			source = importTemplate
			records, err := templates.Load(importTemplate)
			if err != nil {
				return err
			}
			e.Coordinator.StartFromGeneratedRecords(records, false)
		case importTextFile != "":
			source = importTextFile
			data, err := os.ReadFile(importTextFile)
			if err != nil {
				return eris.Wrapf(err, "read %s", importTextFile)
			}
			e.Coordinator.Start(string(data))
		case len(args) == 1:
			source = args[0]
			e.Coordinator.Start(args[0])
		default:
			return eris.New("provide a URL argument, --file, or --template")
		}

		var snap pipeline.Snapshot
		select {
		case <-ctx.Done():
			e.Coordinator.Cancel()
			return ctx.Err()
		case snap = <-done:
		}

		if snap.Stage.Kind == model.StageFailed {
			return eris.Errorf("import failed: %s", snap.Stage.Message)
		}

		printCandidates(cmd, snap)

		if !importConfirm {
			return nil
		}

		var ids []string
		for _, c := range snap.Candidates {
			if c.Status == model.StatusResolved {
				ids = append(ids, c.ID)
			}
		}
		if err := e.Coordinator.Confirm(ctx, ids); err != nil {
			return err
		}
		if err := e.Store.RecordImportRun(ctx, source, len(snap.Candidates), len(ids)); err != nil {
			zap.L().Warn("failed to record import run", zap.Error(err))
		}
		zap.L().Info("confirmed candidates", zap.Int("count", len(ids)))
		return nil
	},
}

func printCandidates(cmd *cobra.Command, snap pipeline.Snapshot) {
	out := cmd.OutOrStdout()
	if len(snap.Candidates) == 0 {
		fmt.Fprintln(out, "no addresses found")
		return
	}

	for i, c := range snap.Candidates {
		coord := "unresolved"
		if c.Coordinate != nil {
			coord = fmt.Sprintf("%.6f, %.6f", c.Coordinate.Latitude, c.Coordinate.Longitude)
		}
		name := c.DisplayName
		if name == "" {
			name = strings.SplitN(c.NormalizedText, "\n", 2)[0]
		}
		fmt.Fprintf(out, "%2d. [%s] %s (%s)\n", i+1, c.Status, name, coord)
		for _, line := range strings.Split(c.NormalizedText, "\n") {
			fmt.Fprintf(out, "      %s\n", line)
		}
		if importDebug {
			for _, line := range snap.Debug.Lines(c.ID) {
				fmt.Fprintf(out, "      # %s\n", line)
			}
		}
	}
	fmt.Fprintf(out, "%d candidate(s); fallback compute used: %v\n",
		len(snap.Candidates), snap.UsedFallbackCompute)
}

func init() {
	importCmd.Flags().StringVar(&importTemplate, "template", "", "YAML template file of place records")
	importCmd.Flags().StringVar(&importTextFile, "file", "", "plain text file to extract addresses from")
	importCmd.Flags().BoolVar(&importConfirm, "confirm", false, "persist all resolved candidates without interactive review")
	importCmd.Flags().BoolVar(&importDebug, "debug-log", false, "print per-candidate geocoding diagnostics")
	rootCmd.AddCommand(importCmd)
}
