package files

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/BioHazard786/warpcode/internal/transfer"
)

var ErrNoFiles = errors.New("no files specified")

// FileInfo holds information about a file to be sent
type FileInfo struct {
	// Path is the absolute path to the file
	Path string

	// Name is the filename (without directory)
	Name string

	// Size is the file size in bytes. Zero is allowed.
	Size int64

	// Type is the MIME type guessed from the extension
	Type string
}

// ValidateFiles checks that every path is a readable regular file. All
// problems are reported together.
func ValidateFiles(paths []string) ([]FileInfo, error) {
	if len(paths) == 0 {
		return nil, ErrNoFiles
	}

	var (
		infos []FileInfo
		errs  error
	)
	for _, path := range paths {
		info, err := validateSingleFile(path)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		infos = append(infos, info)
	}
	if errs != nil {
		return nil, errs
	}
	return infos, nil
}

func validateSingleFile(path string) (FileInfo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: failed to get absolute path: %w", path, err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, fmt.Errorf("%s: file does not exist", path)
		}
		return FileInfo{}, fmt.Errorf("%s: failed to stat file: %w", path, err)
	}
	if stat.IsDir() {
		return FileInfo{}, fmt.Errorf("%s: is a directory", path)
	}
	if !stat.Mode().IsRegular() {
		return FileInfo{}, fmt.Errorf("%s: not a regular file", path)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: cannot open file (check permissions): %w", path, err)
	}
	file.Close()

	mimeType := mime.TypeByExtension(filepath.Ext(absPath))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return FileInfo{
		Path: absPath,
		Name: filepath.Base(absPath),
		Size: stat.Size(),
		Type: mimeType,
	}, nil
}

// TotalSize returns the total size of all files
func TotalSize(infos []FileInfo) int64 {
	var total int64
	for _, f := range infos {
		total += f.Size
	}
	return total
}

// OpenSources opens every file for sending. The returned func closes them.
func OpenSources(infos []FileInfo) ([]transfer.Source, func() error, error) {
	opened := make([]*os.File, 0, len(infos))
	closeAll := func() error {
		var errs error
		for _, f := range opened {
			errs = multierr.Append(errs, f.Close())
		}
		return errs
	}

	sources := make([]transfer.Source, 0, len(infos))
	for _, info := range infos {
		f, err := os.Open(info.Path)
		if err != nil {
			return nil, nil, multierr.Append(fmt.Errorf("open %s: %w", info.Name, err), closeAll())
		}
		opened = append(opened, f)
		sources = append(sources, transfer.Source{Name: info.Name, Reader: f})
	}
	return sources, closeAll, nil
}
