package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jlehrer1/big-csv/internal/paths"
	"github.com/jlehrer1/big-csv/internal/sqlite"
	"github.com/jlehrer1/big-csv/pkg/types"
)

// configFile holds the structure written to config.yaml.
type configFile struct {
	InSep     string       `yaml:"insep"`
	OutSep    string       `yaml:"outsep"`
	ChunkSize int          `yaml:"chunksize"`
	Workers   int          `yaml:"workers"`
	DataDir   string       `yaml:"data_dir,omitempty"`
	Upload    uploadConfig `yaml:"upload,omitempty"`
}

type uploadConfig struct {
	Bucket      string `yaml:"bucket,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty"`
	Credentials string `yaml:"credentials,omitempty"`
	Concurrency int    `yaml:"concurrency,omitempty"`
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize bigcsv configuration and run ledger",
		Long:  "Create the configuration and data directories, write a default config.yaml\nif none exists and create the run ledger.",
		Args:  cobra.NoArgs,
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	dataDir, err := resolveDataDir()
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return &types.IOError{Op: "mkdir", Path: configDir, Err: err}
	}
	configPath := filepath.Join(configDir, paths.ConfigFile)
	written, err := writeConfigIfMissing(configPath, dataDir)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	// Attach creates the schema; nothing else to do.
	ledger, err := openLedger()
	if err != nil {
		return err
	}
	if err := ledger.Detach(); err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}

	if flags.jsonMode {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"config":         configPath,
			"config_written": written,
			"ledger":         filepath.Join(dataDir, sqlite.DBFile),
		})
	}
	if written {
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "bigcsv initialized (data: %s)\n", dataDir)
	return nil
}

// writeConfigIfMissing creates config.yaml with default values if the file
// does not exist and reports whether it wrote one.
func writeConfigIfMissing(path, dataDir string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	cfg := configFile{
		InSep:     types.DefaultSep,
		OutSep:    types.DefaultSep,
		ChunkSize: types.DefaultChunkSize,
		Workers:   types.DefaultWorkers,
		DataDir:   dataDir,
		Upload:    uploadConfig{Concurrency: 4},
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, &types.IOError{Op: "write", Path: path, Err: err}
	}
	return true, nil
}
