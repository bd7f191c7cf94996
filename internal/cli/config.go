package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jlehrer1/big-csv/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	envPrefix      = "BIGCSV"
)

// Config keys. Nested keys map to BIGCSV_UPLOAD_BUCKET and so on.
const (
	cfgKeyInSep       = "insep"
	cfgKeyOutSep      = "outsep"
	cfgKeyChunkSize   = "chunksize"
	cfgKeyWorkers     = "workers"
	cfgKeyMaxOpen     = "max_open"
	cfgKeyKeepChunks  = "keep_chunks"
	cfgKeyDataDir     = "data_dir"
	cfgKeyMetricsFile = "metrics_file"

	cfgKeyBucket            = "upload.bucket"
	cfgKeyEndpoint          = "upload.endpoint"
	cfgKeyCredentials       = "upload.credentials"
	cfgKeyUploadConcurrency = "upload.concurrency"
	cfgKeyUploadRate        = "upload.rate"
)

// loadConfig reads config.yaml from configDir using Viper, layered over
// BIGCSV_* environment variables and built-in defaults. A missing
// config.yaml is not an error.
func loadConfig(configDir string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(cfgKeyInSep, types.DefaultSep)
	v.SetDefault(cfgKeyOutSep, types.DefaultSep)
	v.SetDefault(cfgKeyChunkSize, types.DefaultChunkSize)
	v.SetDefault(cfgKeyWorkers, types.DefaultWorkers)
	v.SetDefault(cfgKeyMaxOpen, types.DefaultMaxOpen)
	v.SetDefault(cfgKeyUploadConcurrency, 4)

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, &types.ConfigError{Field: "config.yaml", Reason: err.Error()}
	}
	return v, nil
}

// bindFlags binds command flags to config keys so that an explicitly set
// flag wins over env and file values.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) error {
	for flag, key := range keys {
		f := fs.Lookup(flag)
		if f == nil {
			return fmt.Errorf("unknown flag %q", flag)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}
