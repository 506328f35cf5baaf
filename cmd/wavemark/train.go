package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/setanarut/wavemark"
	"github.com/setanarut/wavemark/store"
	"github.com/setanarut/wavemark/utils"
)

var trainFlags struct {
	Images string
	Limit  int
	Epochs int
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the embedder and extractor end to end",
	Long:  `Trains on the grayscale covers in the train image directory with random watermarks and random attacks, then stores the parameters under the output directory (and Redis when enabled).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if trainFlags.Images != "" {
			cfg.Paths.TrainImages = trainFlags.Images
		}
		if trainFlags.Epochs > 0 {
			cfg.Train.Epochs = trainFlags.Epochs
		}
		trainOpt, err := cfg.TrainOptions()
		if err != nil {
			return err
		}

		p, rng, err := newPipeline(cfg.Train.Seed)
		if err != nil {
			return err
		}
		opt := p.Model().Options()
		covers, _, err := utils.ReadGrayDir(cfg.Paths.TrainImages, opt.Height, opt.Width, trainFlags.Limit)
		if err != nil {
			return err
		}
		utils.Logger.Info("loaded training images",
			zap.String("dir", cfg.Paths.TrainImages),
			zap.Int("count", len(covers)))

		trainer, err := wavemark.NewTrainer(p, trainOpt, rng, utils.Logger)
		if err != nil {
			return err
		}
		start := time.Now()
		history, err := trainer.Fit(ctx, covers)
		if err != nil {
			return err
		}
		utils.Logger.Info("training finished",
			zap.Int("steps", trainer.Steps()),
			zap.Duration("elapsed", time.Since(start)))

		ss, closeFn, err := stores(ctx)
		if err != nil {
			return err
		}
		defer closeFn()
		for _, s := range ss {
			if err := store.SaveModel(ctx, s, p.Model()); err != nil {
				return err
			}
		}
		key := store.Key(p.Model().Architecture())
		fmt.Printf("%s parameters saved as %s\n", successColor("done:"), key)
		if len(history) > 0 {
			last := history[len(history)-1]
			fmt.Printf("final loss %.5f (image mse %.6f, watermark %.5f)\n", last.Total, last.Image, last.Watermark)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().StringVarP(&trainFlags.Images, "images", "i", "", "Directory of training covers (overrides paths.train_images)")
	trainCmd.Flags().IntVarP(&trainFlags.Limit, "limit", "n", 0, "Use at most this many images (0 = all)")
	trainCmd.Flags().IntVarP(&trainFlags.Epochs, "epochs", "e", 0, "Number of epochs (overrides train.epochs)")
}
