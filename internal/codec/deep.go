package codec

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// DeepCodec materializes a reference shard from its neural-compressed
// payload. dest is the path the decoded shard must appear at.
type DeepCodec interface {
	Decode(combined, dest string, gpuID int) error
}

// SubprocessDeep invokes the external neural decompressor script.
type SubprocessDeep struct {
	Python    string // interpreter, default "python3"
	Script    string // decompressor script path
	BatchSize int    // default 512
}

// Decode runs the decompressor on the combined payload. The script writes
// the decoded shard next to its input; dest is accepted for interface
// symmetry and validated by the caller.
func (d SubprocessDeep) Decode(combined, _ string, gpuID int) error {
	python := d.Python
	if python == "" {
		python = "python3"
	}
	batch := d.BatchSize
	if batch == 0 {
		batch = 512
	}
	args := []string{
		"-u", d.Script,
		"--input_dir", combined,
		"--batch_size", strconv.Itoa(batch),
		"--gpu_id", strconv.Itoa(gpuID),
		"--hidden_dim", "256",
		"--ffn_dim", "4096",
		"--seq_len", "8",
		"--learning_rate", "1e-3",
		"--vocab_dim", "64",
	}
	cmd := exec.Command(python, args...) //nolint:gosec // interpreter and script are operator-configured
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("deep decode %s: %w: %s", combined, err, strings.TrimSpace(string(out)))
	}
	return nil
}
