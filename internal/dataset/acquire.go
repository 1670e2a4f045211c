package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// ErrDownload wraps every failure to fetch a remote dataset.
var ErrDownload = errors.New("dataset download failed")

// Source maps a logical dataset to its remote identifier and local file.
type Source struct {
	Name string `json:"name" yaml:"name"`
	ID   string `json:"id" yaml:"id"`
	File string `json:"file" yaml:"file"`
}

// Fetcher downloads the remote file identified by id into w.
type Fetcher interface {
	Fetch(ctx context.Context, id string, w io.Writer) error
}

// Acquirer keeps local copies of the remote datasets in a directory.
type Acquirer struct {
	dir     string
	fetcher Fetcher
	logger  *slog.Logger
}

// NewAcquirer creates an acquirer storing files under dir.
func NewAcquirer(dir string, fetcher Fetcher) *Acquirer {
	return &Acquirer{
		dir:     dir,
		fetcher: fetcher,
		logger:  slog.With("component", "acquire"),
	}
}

// Path returns the local path of a source.
func (a *Acquirer) Path(s Source) string {
	return filepath.Join(a.dir, s.File)
}

// Ensure downloads every source whose local file does not exist yet and
// returns how many downloads it made. The first failure aborts the load.
func (a *Acquirer) Ensure(ctx context.Context, sources []Source) (int, error) {
	if err := os.MkdirAll(a.dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create data directory: %w", err)
	}

	downloads := 0
	for _, s := range sources {
		path := a.Path(s)
		_, err := os.Stat(path)
		if err == nil {
			a.logger.Debug("dataset present, skipping download", "dataset", s.Name, "path", path)
			continue
		}
		if !errors.Is(err, os.ErrNotExist) {
			return downloads, fmt.Errorf("failed to stat %s: %w", path, err)
		}

		a.logger.Info("downloading dataset", "dataset", s.Name, "id", s.ID)
		if err := a.download(ctx, s, path); err != nil {
			return downloads, fmt.Errorf("%w: %s: %w", ErrDownload, s.Name, err)
		}
		downloads++
	}
	return downloads, nil
}

// download writes into a temp file and renames it, so an interrupted
// transfer never leaves a file that a later existence check would trust.
func (a *Acquirer) download(ctx context.Context, s Source, path string) error {
	tmp, err := os.CreateTemp(a.dir, s.File+".*.part")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := a.fetcher.Fetch(ctx, s.ID, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Fingerprint hashes the local files of the given sources, in order.
func (a *Acquirer) Fingerprint(sources []Source) (string, error) {
	h := sha256.New()
	for _, s := range sources {
		f, err := os.Open(a.Path(s))
		if err != nil {
			return "", err
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", err
		}
		io.WriteString(h, "\x00"+s.Name+"\x00")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
