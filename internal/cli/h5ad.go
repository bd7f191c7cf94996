package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jlehrer1/big-csv/internal/h5ad"
	"github.com/jlehrer1/big-csv/internal/tabular"
	"github.com/jlehrer1/big-csv/pkg/types"
)

type h5adFlags struct {
	source string
	output string
	opts   h5ad.Options
}

func newH5adCmd() *cobra.Command {
	var f h5adFlags
	cmd := &cobra.Command{
		Use:   "h5ad",
		Short: "Convert a numeric delimited matrix to h5ad",
		Long: "Read --file in row chunks and write its values as an HDF5 matrix to --outfile.\n" +
			"Row and column names found with --index-col and --header are written to\n" +
			"<outfile>" + h5ad.ObsSuffix + " and <outfile>" + h5ad.VarSuffix + ".",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runH5ad(cmd, f)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.source, "file", "", "source file")
	fs.StringVar(&f.output, "outfile", "", "output .h5ad file")
	fs.String("sep", types.DefaultSep, "field separator")
	fs.Int("chunksize", types.DefaultChunkSize, "rows read at a time")
	fs.BoolVar(&f.opts.Sparsify, "sparsify", false, "store X in CSR form")
	fs.BoolVar(&f.opts.Header, "header", false, "first row holds column names")
	fs.BoolVar(&f.opts.IndexCol, "index-col", false, "first column holds row names")
	return cmd
}

func runH5ad(cmd *cobra.Command, f h5adFlags) error {
	if err := bindFlags(conf, cmd.Flags(), map[string]string{
		"sep":       cfgKeyInSep,
		"chunksize": cfgKeyChunkSize,
	}); err != nil {
		return err
	}
	sep, err := types.SepRune(conf.GetString(cfgKeyInSep))
	if err != nil {
		return &types.ConfigError{Field: "sep", Reason: err.Error()}
	}
	if err := requireFlag("outfile", f.output); err != nil {
		return err
	}
	if !fileExists(f.source) {
		return &types.ConfigError{Field: "file", Reason: "file does not exist: " + f.source}
	}

	src, err := tabular.OpenChunks(f.source, sep, conf.GetInt(cfgKeyChunkSize))
	if err != nil {
		return err
	}
	defer src.Close()

	f.opts.Logger = logger
	sum, err := h5ad.Convert(cmd.Context(), src, f.output, f.opts)
	if err != nil {
		return err
	}

	if flags.jsonMode {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"output":    f.output,
			"rows":      sum.Rows,
			"cols":      sum.Cols,
			"nnz":       sum.NNZ,
			"sparse":    sum.Sparse,
			"var_names": sum.VarNames,
			"obs_names": sum.ObsNames,
		})
	}
	if !flags.quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d x %d matrix (%d non-zero) to %s\n", sum.Rows, sum.Cols, sum.NNZ, f.output)
	}
	return nil
}
