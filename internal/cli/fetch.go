package cli

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jlehrer1/big-csv/internal/fetch"
	"github.com/jlehrer1/big-csv/pkg/types"
)

func newFetchCmd() *cobra.Command {
	var manifest string
	var timeout int
	cmd := &cobra.Command{
		Use:   "fetch [url dest]",
		Short: "Download source files over HTTP",
		Long: "Download one URL to dest, or every entry of a YAML manifest:\n\n" +
			"  - url: https://example.org/counts.csv.gz\n" +
			"    dest: data/counts.csv.gz",
		RunE: func(cmd *cobra.Command, args []string) error {
			var targets []fetch.Target
			switch {
			case manifest != "" && len(args) > 0:
				return usagef("pass either a manifest or url and dest, not both")
			case manifest != "":
				var err error
				if targets, err = readManifest(manifest); err != nil {
					return err
				}
			case len(args) == 2:
				targets = []fetch.Target{{URL: args[0], Dest: args[1]}}
			default:
				return usagef("fetch needs url and dest arguments or --manifest")
			}

			client := &http.Client{}
			if timeout > 0 {
				client.Timeout = time.Duration(timeout) * time.Second
			}
			if err := fetch.DownloadAll(cmd.Context(), client, targets, logger); err != nil {
				return err
			}
			if !flags.quiet && !flags.jsonMode {
				fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %d files\n", len(targets))
			}
			if flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), targets)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&manifest, "manifest", "", "YAML list of url/dest pairs")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "per-request timeout in seconds (0 for none)")
	return cmd
}

func readManifest(path string) ([]fetch.Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &types.IOError{Op: "read", Path: path, Err: err}
	}
	var targets []fetch.Target
	if err := yaml.Unmarshal(data, &targets); err != nil {
		return nil, &types.ConfigError{Field: "manifest", Reason: err.Error()}
	}
	return targets, nil
}
