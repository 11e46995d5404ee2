package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	DB      DBConfig      `mapstructure:"db"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	Models  ModelsConfig  `mapstructure:"models"`
	Credits CreditsConfig `mapstructure:"credits"`
	AppHost string        `mapstructure:"host"`
}

type DBConfig struct {
	Source string `mapstructure:"source"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type ModelsConfig struct {
	// Path is the directory holding the serialized model artifacts,
	// one <type>_model.json per model type.
	Path string `mapstructure:"path"`
	// Default is the model type used when a request names none.
	Default string `mapstructure:"default"`
	// Pricing maps a model type to its cost in credits.
	Pricing map[string]int64 `mapstructure:"pricing"`
}

type CreditsConfig struct {
	StartingAmount int64 `mapstructure:"starting_amount"`
}

type UnknownModelError struct {
	ModelType string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model type: %s", e.ModelType)
}

// PriceOf resolves the credit cost of a model type against the static
// pricing table loaded at startup.
func (c *Config) PriceOf(modelType string) (int64, error) {
	price, ok := c.Models.Pricing[modelType]
	if !ok {
		return 0, &UnknownModelError{ModelType: modelType}
	}
	return price, nil
}

func Load() (*Config, error) {
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/configs")
	viper.SetConfigName("settings")
	viper.SetConfigType("yml")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Models.Default == "" {
		cfg.Models.Default = "lr"
	}

	return &cfg, nil
}
