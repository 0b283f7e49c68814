package postpublish

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/yuya-takeyama/cargo-safe-publish/internal/checksum"
)

const (
	origManifest = "Cargo.toml.orig"
	vcsInfo      = ".cargo_vcs_info.json"
	manifestName = "Cargo.toml"
	// LockFile is added by cargo for packages with binaries even when the
	// repository does not track it.
	LockFile = "Cargo.lock"

	maxEntrySize = 32 << 20
)

// Published is the content of a downloaded archive keyed by the path the
// file has in the package directory.
type Published struct {
	Files  map[string][]byte
	SHA256 string
}

// Paths returns the archive paths in lexical order.
func (p *Published) Paths() []string {
	out := make([]string, 0, len(p.Files))
	for f := range p.Files {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Extract unpacks a gzip-compressed tar archive whose entries all live under
// prefix/. Files cargo generates while packaging are dropped and the
// original manifest is restored under its own name, so the result can be
// compared with the working tree directly.
func Extract(data []byte, prefix string) (*Published, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	defer zr.Close()

	pub := &Published{Files: map[string][]byte{}, SHA256: checksum.Sum(data)}
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read archive: %w", err)
		}

		rel, err := entryPath(hdr.Name, prefix)
		if err != nil {
			return nil, err
		}
		if !hdr.FileInfo().Mode().IsRegular() {
			continue
		}

		dir, base := path.Split(rel)
		if base == vcsInfo || base == manifestName {
			continue
		}
		if base == origManifest {
			rel = dir + manifestName
		}

		if hdr.Size > maxEntrySize {
			return nil, fmt.Errorf("archive entry %s is %d bytes, larger than %d", hdr.Name, hdr.Size, maxEntrySize)
		}
		content, err := io.ReadAll(io.LimitReader(tr, maxEntrySize))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", hdr.Name, err)
		}
		if _, dup := pub.Files[rel]; dup {
			return nil, fmt.Errorf("archive contains %s twice", rel)
		}
		pub.Files[rel] = content
	}
	return pub, nil
}

// entryPath strips prefix/ from name and rejects anything that would land
// outside the package directory.
func entryPath(name, prefix string) (string, error) {
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return "", fmt.Errorf("archive entry %q escapes the package directory", name)
		}
	}
	rel, ok := strings.CutPrefix(name, prefix+"/")
	if !ok || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("archive entry %q is outside %s/", name, prefix)
	}
	rel = strings.TrimSuffix(rel, "/")
	if rel == "" {
		return ".", nil
	}
	return path.Clean(rel), nil
}
