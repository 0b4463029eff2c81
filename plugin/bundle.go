package plugin

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"
)

// Digest returns the hex BLAKE2b-256 digest of data, the format of
// "digest.<file>" manifest entries.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestFile computes the digest of the file at path.
func DigestFile(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from a validated descriptor
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck // read-only

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// readBundles reads every bundle file of d into lc and checks the manifest
// digests. Every digest entry must name a bundle file.
func readBundles(ctx context.Context, d Descriptor, lc *LoadContext) error {
	seen := make(map[string]bool, len(d.Paths))
	for _, path := range d.ResolvedPaths() {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := readFileContext(ctx, path)
		if err != nil {
			return err
		}

		base := filepath.Base(path)
		if want, ok := d.Digest(base); ok {
			got := Digest(data)
			if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
				return fmt.Errorf("digest mismatch for %s: manifest %s, file %s", base, want, got)
			}
		}
		if err := lc.addBundle(base, data); err != nil {
			return err
		}
		seen[base] = true
	}

	for _, name := range d.digests() {
		if !seen[name] {
			return fmt.Errorf("manifest digest for %s does not match any bundle path", name)
		}
	}
	return nil
}

// readFileContext reads path in chunks, stopping when ctx is done.
func readFileContext(ctx context.Context, path string) ([]byte, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from a validated descriptor
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat bundle: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("bundle path %s is a directory", path)
	}

	buf := make([]byte, 0, info.Size())
	chunk := make([]byte, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := f.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read bundle %s: %w", path, err)
		}
	}
}
