package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/jlehrer1/big-csv/internal/metrics"
	"github.com/jlehrer1/big-csv/internal/transpose"
	"github.com/jlehrer1/big-csv/internal/upload"
	"github.com/jlehrer1/big-csv/pkg/types"
)

type transposeFlags struct {
	source        string
	output        string
	chunkDir      string
	cleanChunkDir bool
	noLedger      bool

	upload            bool
	remoteKey         string
	remoteChunkPrefix string
	uploadFlags
}

func newTransposeCmd() *cobra.Command {
	var f transposeFlags
	cmd := &cobra.Command{
		Use:   "transpose",
		Short: "Transpose a delimited file in row chunks",
		Long: "Transpose --file into --outfile without loading the whole file into memory.\n" +
			"The source is split into chunks of --chunksize rows; each chunk is transposed\n" +
			"to its own file and the chunk transposes are joined column-wise.",
		Example: "  bigcsv transpose --file counts.csv --outfile counts_T.csv --chunksize 1000\n" +
			"  bigcsv transpose --file counts.tsv.gz --outfile counts_T.csv --insep '\\t' --workers 4",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranspose(cmd, f)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.source, "file", "", "source file (.gz and .zst are decompressed)")
	fs.StringVar(&f.output, "outfile", "", "output file")
	fs.String("insep", types.DefaultSep, `input separator ("\t" for tab)`)
	fs.String("outsep", types.DefaultSep, "output separator")
	fs.Int("chunksize", types.DefaultChunkSize, "rows per chunk")
	fs.StringVar(&f.chunkDir, "chunk-dir", "", "directory for chunk transposes (default chunks_<output stem>)")
	fs.Bool("keep-chunks", false, "keep chunk transposes after the run")
	fs.BoolVar(&f.cleanChunkDir, "clean-chunk-dir", false, "remove chunk files a previous run left in the chunk directory")
	fs.Int("workers", types.DefaultWorkers, "chunks transposed in parallel")
	fs.Int("max-open", types.DefaultMaxOpen, "chunk files read at once while joining")
	fs.String("metrics-file", "", "write Prometheus metrics to this textfile")
	fs.BoolVar(&f.noLedger, "no-ledger", false, "do not record the run in the ledger")

	fs.BoolVar(&f.upload, "upload", false, "upload the output to object storage")
	fs.StringVar(&f.remoteKey, "remote-key", "", "object key for the output (default output file name)")
	fs.StringVar(&f.remoteChunkPrefix, "remote-chunk-prefix", "", "also upload each chunk transpose under this prefix")
	fs.Int("upload-concurrency", upload.DefaultConcurrency, "parallel uploads")
	fs.Float64("upload-rate", 0, "uploads started per second (0 for unlimited)")
	addUploadFlags(cmd, &f.uploadFlags)

	return cmd
}

func addUploadFlags(cmd *cobra.Command, f *uploadFlags) {
	fs := cmd.Flags()
	fs.StringVar(&f.bucket, "bucket", "", "destination bucket")
	fs.StringVar(&f.endpoint, "endpoint", "", "storage API endpoint override")
	fs.StringVar(&f.credentials, "credentials", "", "service account key file")
	fs.BoolVar(&f.anonymous, "anonymous", false, "connect without credentials")
	cmd.MarkFlagsMutuallyExclusive("credentials", "anonymous")
}

func runTranspose(cmd *cobra.Command, f transposeFlags) error {
	keys := map[string]string{
		"insep":              cfgKeyInSep,
		"outsep":             cfgKeyOutSep,
		"chunksize":          cfgKeyChunkSize,
		"keep-chunks":        cfgKeyKeepChunks,
		"workers":            cfgKeyWorkers,
		"max-open":           cfgKeyMaxOpen,
		"metrics-file":       cfgKeyMetricsFile,
		"upload-concurrency": cfgKeyUploadConcurrency,
		"upload-rate":        cfgKeyUploadRate,
	}
	for k, v := range uploadFlagKeys {
		keys[k] = v
	}
	if err := bindFlags(conf, cmd.Flags(), keys); err != nil {
		return err
	}

	cfg := types.Config{
		Source:        f.source,
		Output:        f.output,
		InSep:         conf.GetString(cfgKeyInSep),
		OutSep:        conf.GetString(cfgKeyOutSep),
		ChunkSize:     conf.GetInt(cfgKeyChunkSize),
		ChunkDir:      f.chunkDir,
		KeepChunks:    conf.GetBool(cfgKeyKeepChunks),
		CleanChunkDir: f.cleanChunkDir,
		Quiet:         flags.quiet,
		Workers:       conf.GetInt(cfgKeyWorkers),
		MaxOpen:       conf.GetInt(cfgKeyMaxOpen),
	}

	m := metrics.New()
	opts := []transpose.Option{transpose.WithLogger(logger), transpose.WithMetrics(m)}

	if !f.noLedger {
		ledger, err := openLedger()
		if err != nil {
			// A broken ledger must not block the transpose.
			logger.Warn("run ledger unavailable", "error", err)
		} else {
			defer ledger.Detach()
			opts = append(opts, transpose.WithLedger(ledger))
		}
	}

	if f.upload {
		client, err := upload.NewClient(cmd.Context(), f.options())
		if err != nil {
			return err
		}
		defer client.Close()

		targets := upload.Targets{OutputKey: f.remoteKey, ChunkPrefix: f.remoteChunkPrefix}
		if targets.OutputKey == "" {
			targets.OutputKey = filepath.Base(f.output)
		}
		var limiter *rate.Limiter
		if r := conf.GetFloat64(cfgKeyUploadRate); r > 0 {
			limiter = rate.NewLimiter(rate.Limit(r), 1)
		}
		opts = append(opts,
			transpose.WithUploader(client, targets),
			transpose.WithUploadLimits(conf.GetInt(cfgKeyUploadConcurrency), limiter),
		)
	}

	start := time.Now()
	res, err := transpose.Run(cmd.Context(), cfg, opts...)

	if path := conf.GetString(cfgKeyMetricsFile); path != "" {
		if werr := m.WriteTextfile(path); werr != nil {
			logger.Warn("cannot write metrics", "path", path, "error", werr)
		}
	}
	if err != nil {
		if res != nil && res.Run != nil {
			return fmt.Errorf("run %s: %w", res.Run.RunID, err)
		}
		return err
	}

	if res.UploadErr != nil {
		logger.Warn("some uploads failed", "uploaded", res.Uploaded, "error", res.UploadErr)
	}
	return printTransposeResult(cmd, res, time.Since(start))
}

func printTransposeResult(cmd *cobra.Command, res *transpose.Result, elapsed time.Duration) error {
	out := cmd.OutOrStdout()
	if flags.jsonMode {
		return printJSON(out, struct {
			RunID    string     `json:"run_id"`
			Output   string     `json:"output"`
			Plan     types.Plan `json:"plan"`
			Chunks   []string   `json:"chunks,omitempty"`
			Uploaded int        `json:"uploaded"`
			Seconds  float64    `json:"seconds"`
		}{res.Run.RunID, res.Output, res.Plan, res.Chunks, res.Uploaded, elapsed.Seconds()})
	}
	if flags.quiet {
		return nil
	}
	fmt.Fprintf(out, "Transposed %d rows in %d chunks into %s (%s)\n",
		res.Plan.TotalRows, res.Plan.NumChunks, res.Output, elapsed.Round(time.Millisecond))
	if res.Uploaded > 0 {
		fmt.Fprintf(out, "Uploaded %d objects\n", res.Uploaded)
	}
	fmt.Fprintf(out, "Run ID: %s\n", res.Run.RunID)
	return nil
}
