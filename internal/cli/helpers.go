package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jlehrer1/big-csv/internal/paths"
	"github.com/jlehrer1/big-csv/internal/sqlite"
	"github.com/jlehrer1/big-csv/internal/upload"
	"github.com/jlehrer1/big-csv/pkg/types"
)

// resolveDataDir returns the data directory from flag, config, env or the
// platform default.
func resolveDataDir() (string, error) {
	return paths.ResolveDataDir(flags.dataDir, conf.GetString(cfgKeyDataDir))
}

// openLedger attaches the run ledger in the data directory. The caller must
// Detach it.
func openLedger() (*sqlite.Backend, error) {
	dataDir, err := resolveDataDir()
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	ledger := sqlite.NewBackend()
	if err := ledger.Attach(dataDir); err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return ledger, nil
}

// uploadFlags are shared by the commands that talk to object storage.
type uploadFlags struct {
	bucket      string
	endpoint    string
	credentials string
	anonymous   bool
}

// creds builds explicit upload credentials. A path that is not a file
// is rejected by upload.NewClient.
func (f uploadFlags) creds() upload.Credentials {
	if f.anonymous {
		return upload.Credentials{Anonymous: true}
	}
	return upload.Credentials{File: conf.GetString(cfgKeyCredentials)}
}

func (f uploadFlags) options() upload.Options {
	return upload.Options{
		Bucket:      conf.GetString(cfgKeyBucket),
		Endpoint:    conf.GetString(cfgKeyEndpoint),
		Credentials: f.creds(),
		Logger:      logger,
	}
}

// uploadFlagKeys binds upload flags to their config keys.
var uploadFlagKeys = map[string]string{
	"bucket":      cfgKeyBucket,
	"endpoint":    cfgKeyEndpoint,
	"credentials": cfgKeyCredentials,
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// fileExists reports whether path names an existing regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// requireFlag returns a ConfigError when a mandatory value is empty.
func requireFlag(name, value string) error {
	if value == "" {
		return &types.ConfigError{Field: name, Reason: "must not be empty"}
	}
	return nil
}
