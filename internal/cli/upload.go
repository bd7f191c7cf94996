package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jlehrer1/big-csv/internal/upload"
)

type uploadCmdFlags struct {
	file     string
	chunkDir string
	key      string
	prefix   string
	uploadFlags
}

func newUploadCmd() *cobra.Command {
	var f uploadCmdFlags
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a file or a chunk directory to object storage",
		Example: "  bigcsv upload --file counts_T.csv --bucket my-bucket --credentials key.json\n" +
			"  bigcsv upload --chunk-dir chunks_counts_T --prefix runs/1 --bucket my-bucket --anonymous",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, f)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.file, "file", "", "local file to upload")
	fs.StringVar(&f.chunkDir, "chunk-dir", "", "upload every file in this directory")
	fs.StringVar(&f.key, "key", "", "object key for --file (default file name)")
	fs.StringVar(&f.prefix, "prefix", "", "key prefix for --chunk-dir")
	addUploadFlags(cmd, &f.uploadFlags)
	cmd.MarkFlagsOneRequired("file", "chunk-dir")
	cmd.MarkFlagsMutuallyExclusive("file", "chunk-dir")
	return cmd
}

func runUpload(cmd *cobra.Command, f uploadCmdFlags) error {
	if err := bindFlags(conf, cmd.Flags(), uploadFlagKeys); err != nil {
		return err
	}
	client, err := upload.NewClient(cmd.Context(), f.options())
	if err != nil {
		return err
	}
	defer client.Close()

	var n int
	if f.file != "" {
		key := f.key
		if key == "" {
			key = filepath.Base(f.file)
		}
		if err := client.UploadFile(cmd.Context(), f.file, key); err != nil {
			return err
		}
		n = 1
	} else {
		n, err = client.UploadDir(cmd.Context(), f.chunkDir, f.prefix)
		if err != nil {
			return fmt.Errorf("upload %s: %w", f.chunkDir, err)
		}
	}

	if flags.jsonMode {
		return printJSON(cmd.OutOrStdout(), map[string]any{"bucket": client.Bucket(), "uploaded": n})
	}
	if !flags.quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d objects to gs://%s\n", n, client.Bucket())
	}
	return nil
}
