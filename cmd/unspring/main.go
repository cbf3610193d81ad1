// unspring restores FASTQ read files from spring-variant archives.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/springlab/unspring/internal/codec"
	"github.com/springlab/unspring/internal/params"
	"github.com/springlab/unspring/internal/pipeline"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "unspring",
		Short:         "Decompressor for spring-variant genomic read archives",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newDecompressCmd())
	return root
}

type decompressOptions struct {
	tempDir    string
	out1       string
	out2       string
	numThreads int
	start      uint64
	end        uint64
	gzipOut    bool
	gzipLevel  int
	deep       bool
	gpuID      int
	archiver   string
	deepScript string
	verbose    bool
}

func newDecompressCmd() *cobra.Command {
	var opts decompressOptions

	cmd := &cobra.Command{
		Use:   "decompress",
		Short: "Restore FASTQ read files from an archive temp directory",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDecompress(&opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.tempDir, "temp-dir", "", "archive temp directory")
	f.StringVar(&opts.out1, "out-1", "", "output file for mate-1 reads")
	f.StringVar(&opts.out2, "out-2", "", "output file for mate-2 reads (paired-end archives)")
	f.IntVar(&opts.numThreads, "num-threads", 0, "worker threads (default: NumCPU)")
	f.Uint64Var(&opts.start, "start", 0, "first record to emit")
	f.Uint64Var(&opts.end, "end", 0, "one past the last record to emit (default: all)")
	f.BoolVar(&opts.gzipOut, "gzip", false, "gzip the output files")
	f.IntVar(&opts.gzipLevel, "gzip-level", gzip.DefaultCompression, "gzip compression level")
	f.BoolVar(&opts.deep, "deep", false, "reference shards use the neural codec")
	f.IntVar(&opts.gpuID, "gpu-id", 0, "GPU for the neural codec")
	f.StringVar(&opts.archiver, "archiver", "", "external archiver binary for block artifacts (default: in-process)")
	f.StringVar(&opts.deepScript, "deep-script", "", "neural decompressor script (required with --deep)")
	f.BoolVar(&opts.verbose, "verbose", false, "enable debug logging")

	cobra.CheckErr(cmd.MarkFlagRequired("temp-dir"))
	cobra.CheckErr(cmd.MarkFlagRequired("out-1"))

	return cmd
}

func runDecompress(opts *decompressOptions) error {
	if opts.verbose {
		log.SetLevel(log.DebugLevel)
	}

	cp, err := params.Load(opts.tempDir)
	if err != nil {
		return err
	}
	if cp.PairedEnd && opts.out2 == "" {
		return errors.New("paired-end archive: --out-2 is required")
	}

	codecs := pipeline.DefaultCodecs()
	if opts.archiver != "" {
		codecs.Gen = codec.Subprocess{Bin: opts.archiver}
	}
	if opts.deep {
		if opts.deepScript == "" {
			return errors.New("--deep requires --deep-script")
		}
		codecs.Deep = codec.SubprocessDeep{Script: opts.deepScript}
	}

	cfg := pipeline.Config{
		TempDir:    opts.tempDir,
		Out1:       opts.out1,
		Out2:       opts.out2,
		NumThreads: opts.numThreads,
		Start:      opts.start,
		End:        opts.end,
		Gzip:       opts.gzipOut,
		GzipLevel:  opts.gzipLevel,
		Deep:       opts.deep,
		GPUID:      opts.gpuID,
	}
	if err := pipeline.Decompress(cp, cfg, codecs); err != nil {
		return fmt.Errorf("decompress: %w", err)
	}
	return nil
}
