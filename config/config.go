package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/setanarut/wavemark"
)

type Config struct {
	Image     ImageConfig     `mapstructure:"image"`
	Watermark WatermarkConfig `mapstructure:"watermark"`
	Model     ModelConfig     `mapstructure:"model"`
	Attack    AttackConfig    `mapstructure:"attack"`
	Train     TrainConfig     `mapstructure:"train"`
	Paths     PathsConfig     `mapstructure:"paths"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
}

type ImageConfig struct {
	Height int `mapstructure:"height"`
	Width  int `mapstructure:"width"`
}

type WatermarkConfig struct {
	Bits int `mapstructure:"bits"`
	Grid int `mapstructure:"grid"`
}

type ModelConfig struct {
	HiddenUnits int    `mapstructure:"hidden_units"`
	Wavelet     string `mapstructure:"wavelet"`
}

type AttackConfig struct {
	MaxID         int     `mapstructure:"max_id"`
	SharedDraws   bool    `mapstructure:"shared_draws"`
	NoiseStdMin   float64 `mapstructure:"noise_std_min"`
	NoiseStdMax   float64 `mapstructure:"noise_std_max"`
	JPEGQuality   int     `mapstructure:"jpeg_quality"`
	CropMin       float64 `mapstructure:"crop_min"`
	CropMax       float64 `mapstructure:"crop_max"`
	ScaleMin      float64 `mapstructure:"scale_min"`
	ScaleMax      float64 `mapstructure:"scale_max"`
	SaltPepperMin float64 `mapstructure:"salt_pepper_min"`
	SaltPepperMax float64 `mapstructure:"salt_pepper_max"`
	DropoutMin    float64 `mapstructure:"dropout_min"`
	DropoutMax    float64 `mapstructure:"dropout_max"`
}

type TrainConfig struct {
	Epochs              int     `mapstructure:"epochs"`
	BatchSize           int     `mapstructure:"batch_size"`
	LearningRate        float64 `mapstructure:"learning_rate"`
	ImageLossWeight     float64 `mapstructure:"image_loss_weight"`
	WatermarkLossWeight float64 `mapstructure:"watermark_loss_weight"`
	WatermarkLoss       string  `mapstructure:"watermark_loss"`
	AttackMinID         int     `mapstructure:"attack_min_id"`
	AttackMaxID         int     `mapstructure:"attack_max_id"`
	Seed                uint64  `mapstructure:"seed"`
	LogEvery            int     `mapstructure:"log_every"`
	Workers             int     `mapstructure:"workers"`
}

type PathsConfig struct {
	TrainImages string `mapstructure:"train_images"`
	TestImages  string `mapstructure:"test_images"`
	Output      string `mapstructure:"output"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	Mode string `mapstructure:"mode"`
}

// Load reads a YAML configuration file on top of the defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("WAVEMARK")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// New loads config.yaml from the working directory, or the defaults when it
// cannot be read.
func New() *Config {
	cfg, err := Load("config.yaml")
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults only hold plain values, decoding them cannot fail.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	opt := wavemark.DefaultOptions()
	atk := opt.Attack
	train := wavemark.DefaultTrainOptions()

	v.SetDefault("image.height", opt.Height)
	v.SetDefault("image.width", opt.Width)

	v.SetDefault("watermark.bits", opt.WatermarkBits)
	v.SetDefault("watermark.grid", opt.GridSize)

	v.SetDefault("model.hidden_units", opt.HiddenUnits)
	v.SetDefault("model.wavelet", opt.Wavelet)

	v.SetDefault("attack.max_id", int(opt.MaxAttackID))
	v.SetDefault("attack.shared_draws", opt.SharedDraws)
	v.SetDefault("attack.noise_std_min", atk.NoiseStdMin)
	v.SetDefault("attack.noise_std_max", atk.NoiseStdMax)
	v.SetDefault("attack.jpeg_quality", atk.JPEGQuality)
	v.SetDefault("attack.crop_min", atk.CropMin)
	v.SetDefault("attack.crop_max", atk.CropMax)
	v.SetDefault("attack.scale_min", atk.ScaleMin)
	v.SetDefault("attack.scale_max", atk.ScaleMax)
	v.SetDefault("attack.salt_pepper_min", atk.SaltPepperMin)
	v.SetDefault("attack.salt_pepper_max", atk.SaltPepperMax)
	v.SetDefault("attack.dropout_min", atk.DropoutMin)
	v.SetDefault("attack.dropout_max", atk.DropoutMax)

	v.SetDefault("train.epochs", train.Epochs)
	v.SetDefault("train.batch_size", train.BatchSize)
	v.SetDefault("train.learning_rate", train.LearningRate)
	v.SetDefault("train.image_loss_weight", train.ImageLossWeight)
	v.SetDefault("train.watermark_loss_weight", train.WatermarkLossWeight)
	v.SetDefault("train.watermark_loss", train.WatermarkLoss.String())
	v.SetDefault("train.attack_min_id", int(train.AttackMinID))
	v.SetDefault("train.attack_max_id", int(train.AttackMaxID))
	v.SetDefault("train.seed", 0)
	v.SetDefault("train.log_every", train.LogEvery)
	v.SetDefault("train.workers", 0)

	v.SetDefault("paths.train_images", "train_images/")
	v.SetDefault("paths.test_images", "test_images/")
	v.SetDefault("paths.output", "config_1_baseline/")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 0)

	v.SetDefault("log.mode", "debug")
}

// Options maps the configuration onto pipeline options.
func (c *Config) Options() wavemark.Options {
	return wavemark.Options{
		Height:        c.Image.Height,
		Width:         c.Image.Width,
		WatermarkBits: c.Watermark.Bits,
		GridSize:      c.Watermark.Grid,
		HiddenUnits:   c.Model.HiddenUnits,
		Wavelet:       c.Model.Wavelet,
		MaxAttackID:   wavemark.AttackKind(c.Attack.MaxID),
		SharedDraws:   c.Attack.SharedDraws,
		Attack: wavemark.AttackOptions{
			NoiseStdMin:   c.Attack.NoiseStdMin,
			NoiseStdMax:   c.Attack.NoiseStdMax,
			JPEGQuality:   c.Attack.JPEGQuality,
			CropMin:       c.Attack.CropMin,
			CropMax:       c.Attack.CropMax,
			ScaleMin:      c.Attack.ScaleMin,
			ScaleMax:      c.Attack.ScaleMax,
			SaltPepperMin: c.Attack.SaltPepperMin,
			SaltPepperMax: c.Attack.SaltPepperMax,
			DropoutMin:    c.Attack.DropoutMin,
			DropoutMax:    c.Attack.DropoutMax,
		},
	}
}

// TrainOptions maps the train section onto trainer options.
func (c *Config) TrainOptions() (wavemark.TrainOptions, error) {
	loss, err := wavemark.ParseLossKind(c.Train.WatermarkLoss)
	if err != nil {
		return wavemark.TrainOptions{}, err
	}
	return wavemark.TrainOptions{
		Epochs:              c.Train.Epochs,
		BatchSize:           c.Train.BatchSize,
		LearningRate:        c.Train.LearningRate,
		ImageLossWeight:     c.Train.ImageLossWeight,
		WatermarkLossWeight: c.Train.WatermarkLossWeight,
		WatermarkLoss:       loss,
		AttackMinID:         wavemark.AttackKind(c.Train.AttackMinID),
		AttackMaxID:         wavemark.AttackKind(c.Train.AttackMaxID),
		LogEvery:            c.Train.LogEvery,
	}, nil
}
