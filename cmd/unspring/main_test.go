package main

import (
	"strings"
	"testing"

	"github.com/springlab/unspring/internal/params"
)

func TestDecompressCmdFlags(t *testing.T) {
	t.Parallel()

	cmd := newDecompressCmd()
	for _, name := range []string{
		"temp-dir", "out-1", "out-2", "num-threads", "start", "end",
		"gzip", "gzip-level", "deep", "gpu-id",
	} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("missing flag --%s", name)
		}
	}
}

func TestRunDecompressMissingParams(t *testing.T) {
	t.Parallel()

	err := runDecompress(&decompressOptions{
		tempDir: t.TempDir(), // no parameter block inside
		out1:    "out.fastq",
	})
	if err == nil {
		t.Fatal("expected error for missing parameter block")
	}
}

func TestRunDecompressPairedNeedsOut2(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cp := params.Params{NumReads: 2, NumReadsPerBlock: 1, NumThrEncode: 1, PairedEnd: true}
	if err := cp.Save(dir); err != nil {
		t.Fatalf("save params: %v", err)
	}

	err := runDecompress(&decompressOptions{tempDir: dir, out1: "out_1.fastq"})
	if err == nil || !strings.Contains(err.Error(), "out-2") {
		t.Fatalf("expected out-2 error, got %v", err)
	}
}

func TestRunDecompressDeepNeedsScript(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cp := params.Params{NumReads: 1, NumReadsPerBlock: 1, NumThrEncode: 1}
	if err := cp.Save(dir); err != nil {
		t.Fatalf("save params: %v", err)
	}

	err := runDecompress(&decompressOptions{tempDir: dir, out1: "o.fastq", deep: true})
	if err == nil || !strings.Contains(err.Error(), "deep-script") {
		t.Fatalf("expected deep-script error, got %v", err)
	}
}
