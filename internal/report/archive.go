package report

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Archive bundles artifact files into a gzipped tarball under dir. Entries
// are stored flat under a top-level directory named after the archive so an
// extraction never scatters files. Returns the archive path.
func Archive(dir, name string, files []ArtifactFile) (string, error) {
	if len(files) == 0 {
		return "", fmt.Errorf("no artifacts to archive")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create deliverables dir: %w", err)
	}

	path := filepath.Join(dir, name+".tar.gz")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	for _, file := range files {
		if err := addFile(tw, file, name); err != nil {
			tw.Close()
			gz.Close()
			os.Remove(path)
			return "", err
		}
	}

	if err := tw.Close(); err != nil {
		return "", fmt.Errorf("finalize tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("finalize gzip: %w", err)
	}
	return path, f.Close()
}

func addFile(tw *tar.Writer, file ArtifactFile, prefix string) error {
	info, err := os.Stat(file.Path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", file.Path, err)
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("tar header %s: %w", file.Path, err)
	}
	hdr.Name = filepath.ToSlash(filepath.Join(prefix, file.Kind, filepath.Base(file.Path)))

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header %s: %w", hdr.Name, err)
	}
	src, err := os.Open(file.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", file.Path, err)
	}
	defer src.Close()
	if _, err := io.Copy(tw, src); err != nil {
		return fmt.Errorf("copy %s: %w", file.Path, err)
	}
	return nil
}
