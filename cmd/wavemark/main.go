package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/setanarut/wavemark"
	"github.com/setanarut/wavemark/config"
	"github.com/setanarut/wavemark/store"
	"github.com/setanarut/wavemark/utils"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "wavemark",
	Short:         "Train and evaluate a wavelet-domain image watermarker",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath == "" {
			cfg = config.New()
		} else {
			c, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = c
		}
		return utils.InitLogger(cfg.Log.Mode)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		utils.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file (default ./config.yaml when present)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorColor("error:"), err)
		stop()
		os.Exit(1)
	}
}

// newPipeline builds a freshly initialised model and attacker from cfg.
func newPipeline(seed uint64) (*wavemark.Pipeline, *rand.Rand, error) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	opt := cfg.Options()
	model, err := wavemark.NewModel(opt, rng)
	if err != nil {
		return nil, nil, err
	}
	attacker, err := wavemark.NewAttacker(opt, rng)
	if err != nil {
		return nil, nil, err
	}
	p, err := wavemark.NewPipeline(model, attacker)
	if err != nil {
		return nil, nil, err
	}
	p.SetWorkers(cfg.Train.Workers)
	return p, rng, nil
}

// stores returns the configured parameter stores, Redis first when enabled.
func stores(ctx context.Context) ([]store.Store, func(), error) {
	fs, err := store.NewFileStore(cfg.Paths.Output)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Redis.Enabled {
		return []store.Store{fs}, func() {}, nil
	}
	rs := store.NewRedisStore(&cfg.Redis)
	if err := rs.Ping(ctx); err != nil {
		utils.Logger.Warn("redis unavailable, using files only", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		_ = rs.Close()
		return []store.Store{fs}, func() {}, nil
	}
	return []store.Store{rs, fs}, func() { _ = rs.Close() }, nil
}

// loadModel fills m from the first store holding parameters for its
// architecture.
func loadModel(ctx context.Context, m *wavemark.Model) error {
	ss, closeFn, err := stores(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	for _, s := range ss {
		err = store.LoadModel(ctx, s, m)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	return fmt.Errorf("no trained parameters for architecture %s: %w", m.Architecture().Fingerprint(), err)
}
