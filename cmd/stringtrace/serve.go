package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harplab/stringtrace/detect"
	"github.com/harplab/stringtrace/job"
	"github.com/harplab/stringtrace/server"
)

func newServeCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the detection API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFlag)
			if err != nil {
				return err
			}

			store, err := job.Open(cfg.StorePath())
			if err != nil {
				return err
			}
			defer store.Close()

			classifier := detect.NewServingClassifier(cfg.Classifier.Endpoint, cfg.Classifier.Model)
			hand := job.NewCommandHandDetector(cfg.Hand.Command)
			runner := job.NewRunner(cfg, store, classifier, hand)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return server.New(cfg, store, runner).ListenAndServe(ctx)
		},
	}
}
