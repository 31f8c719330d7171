package files

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
	"go.uber.org/multierr"
)

// ZipFiles writes the given files into a new archive at target, each under
// its base name.
func ZipFiles(target string, paths []string) (err error) {
	zipFile, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		err = multierr.Append(err, zipFile.Close())
		if err != nil {
			os.Remove(target)
		}
	}()

	archive := zip.NewWriter(zipFile)
	defer func() {
		err = multierr.Append(err, archive.Close())
	}()

	for _, path := range paths {
		if err := addFile(archive, path); err != nil {
			return err
		}
	}
	return nil
}

func addFile(archive *zip.Writer, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = filepath.ToSlash(filepath.Base(path))
	header.Method = zip.Deflate

	writer, err := archive.CreateHeader(header)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(writer, file)
	return err
}
