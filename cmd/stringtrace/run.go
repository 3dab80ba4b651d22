package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harplab/stringtrace/detect"
	"github.com/harplab/stringtrace/transcode"
)

func newRunCommand(configFlag *string) *cobra.Command {
	var modeFlag string
	var outputFlag string
	var fastFlag bool

	cmd := &cobra.Command{
		Use:   "run <video>",
		Short: "Run string detection on a local video file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFlag)
			if err != nil {
				return err
			}

			mode, err := detect.ParseMode(modeFlag)
			if err != nil {
				return err
			}

			detectCfg := detect.Config{
				Mode:              mode,
				Threshold:         cfg.Detect.Threshold,
				String12Threshold: cfg.Detect.String12Threshold,
				ConfidenceFloor:   cfg.Detect.ConfidenceFloor,
			}
			classifier := detect.NewServingClassifier(cfg.Classifier.Endpoint, cfg.Classifier.Model)
			decoder := transcode.NewDecoder(&transcode.DecoderConfig{
				TargetSampleRate: detect.SampleRate,
				FFmpegPath:       cfg.FFmpeg.Binary,
				Timeout:          cfg.FFmpegTimeout(),
			})
			overlay := transcode.NewOverlay(cfg.FFmpeg.Binary, cfg.FFmpegTimeout())

			pipeline := detect.NewPipeline(detectCfg, classifier, decoder, overlay)
			result, err := pipeline.Run(cmd.Context(), args[0], outputFlag, fastFlag)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderResultTable(result.Records))
			fmt.Fprintf(cmd.OutOrStdout(), "\nCSV: %s\n", result.CSVPath)
			if result.JSONPath != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "JSON: %s\n", result.JSONPath)
			}
			if result.VideoPath != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Video: %s\n", result.VideoPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&modeFlag, "mode", "m", string(detect.ModeHybrid), "Arbitration mode (default or hybrid)")
	cmd.Flags().StringVarP(&outputFlag, "output", "o", "out", "Output directory")
	cmd.Flags().BoolVar(&fastFlag, "fast", false, "Emit structured JSON instead of a labeled video")

	return cmd
}

func renderResultTable(records []detect.DetectionRecord) string {
	headers := []string{"Time (s)", "Strings", "Top-1", "Prob", "Source"}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			fmt.Sprintf("%.2f", rec.Time),
			formatStrings(rec.Active),
			strconv.Itoa(rec.Top1),
			fmt.Sprintf("%.3f", rec.Top1Prob),
			string(rec.Source),
		})
	}
	return renderTable(headers, rows, []columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignLeft})
}

func formatStrings(active []int) string {
	if len(active) == 0 {
		return "-"
	}
	parts := make([]string, len(active))
	for i, s := range active {
		parts[i] = strconv.Itoa(s)
	}
	return strings.Join(parts, ",")
}
