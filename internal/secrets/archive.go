package secrets

import (
	"archive/tar"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
)

// stagedFile is one secret resolved to its content-addressed basename.
type stagedFile struct {
	secret   Secret
	basename string
	content  []byte
}

// writeArchive packs staged files into one tar.gz inside the staging
// directory. Timestamps are normalized to the epoch and ownership to root
// so identical content always produces an identical archive.
func writeArchive(stagingDir string, staged []stagedFile) (string, error) {
	archivePath := filepath.Join(stagingDir, "secrets.tar.gz")
	f, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()

	zw := gzip.NewWriter(f)
	tw := tar.NewWriter(zw)
	epoch := time.Unix(0, 0)

	for _, sf := range staged {
		hdr := &tar.Header{
			Name:    sf.basename,
			Mode:    0o600,
			Size:    int64(len(sf.content)),
			ModTime: epoch,
			Uname:   "root",
			Gname:   "root",
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return "", fmt.Errorf("write archive header %q: %w", sf.basename, err)
		}
		if _, err := tw.Write(sf.content); err != nil {
			return "", fmt.Errorf("write archive entry %q: %w", sf.basename, err)
		}
	}

	if err := tw.Close(); err != nil {
		return "", fmt.Errorf("close archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("close archive: %w", err)
	}
	return archivePath, nil
}
