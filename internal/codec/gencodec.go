// Package codec defines the external codec interfaces of the archive format
// and the bundled implementations: in-process zstd codecs and subprocess
// adapters for external binaries.
package codec

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// GenCodec materializes a compressed artifact file into a destination
// directory. Implementations decide the decoded file name; callers locate
// the result by expected name.
type GenCodec interface {
	Decode(archive, destDir string) error
}

// Zstd is the in-process GenCodec. Archives are single zstd frames; the
// decoded file is named after the archive with its extension stripped.
type Zstd struct{}

// Decode decompresses archive into destDir.
func (Zstd) Decode(archive, destDir string) error {
	compressed, err := os.ReadFile(archive) //nolint:gosec // archive paths come from the store
	if err != nil {
		return fmt.Errorf("opening artifact %s: %w", archive, err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return fmt.Errorf("decompressing artifact %s: %w", archive, err)
	}

	base := filepath.Base(archive)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if err := os.WriteFile(filepath.Join(destDir, name), raw, 0o600); err != nil {
		return fmt.Errorf("writing artifact %s: %w", name, err)
	}
	return nil
}

// Encode compresses data into a single-frame archive file. The compressor
// side uses this; tests use it to build fixtures.
func (Zstd) Encode(archive string, data []byte) error {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("creating zstd encoder: %w", err)
	}
	defer enc.Close() //nolint:errcheck // encoder close during cleanup

	if err := os.WriteFile(archive, enc.EncodeAll(data, nil), 0o600); err != nil {
		return fmt.Errorf("writing archive %s: %w", archive, err)
	}
	return nil
}

// Subprocess adapts an external archiver binary. The invocation mirrors
// "zpaq x <archive> -to <dir>"; the binary is expected to extract into a
// fresh sub-directory of destDir.
type Subprocess struct {
	Bin string // archiver binary, e.g. "zpaq"
}

// Decode extracts archive under destDir via the external binary.
func (s Subprocess) Decode(archive, destDir string) error {
	bin := s.Bin
	if bin == "" {
		bin = "zpaq"
	}
	cmd := exec.Command(bin, "x", archive, "-to", destDir) //nolint:gosec // binary is operator-configured
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s x %s: %w: %s", bin, archive, err, strings.TrimSpace(string(out)))
	}
	return nil
}
