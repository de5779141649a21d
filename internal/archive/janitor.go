// Package archive moves aged processed outputs out of the local staging
// area. When an object store is configured the files are uploaded to cold
// storage first; either way they are removed locally afterwards.
package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/wb-go/wbf/zlog"
)

// objectStore receives archived files. May be nil: then aged files are
// simply deleted.
type objectStore interface {
	Save(ctx context.Context, subdir, filename string, src io.Reader) (string, error)
}

// Janitor periodically sweeps a directory for files older than maxAge.
type Janitor struct {
	dir    string
	maxAge time.Duration
	store  objectStore
	cron   *cron.Cron
}

// New creates a Janitor sweeping dir on the given cron schedule.
func New(dir string, maxAge time.Duration, schedule string, store objectStore) (*Janitor, error) {
	j := &Janitor{
		dir:    dir,
		maxAge: maxAge,
		store:  store,
		cron:   cron.New(),
	}

	if _, err := j.cron.AddFunc(schedule, func() { j.sweep(context.Background()) }); err != nil {
		return nil, err
	}

	return j, nil
}

// Start begins scheduled sweeps.
func (j *Janitor) Start() {
	j.cron.Start()
	zlog.Logger.Info().
		Str("dir", j.dir).
		Dur("max_age", j.maxAge).
		Msg("archive janitor started")
}

// Stop stops the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// sweep archives and removes every regular file older than maxAge.
func (j *Janitor) sweep(ctx context.Context) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		zlog.Logger.Err(err).Str("dir", j.dir).Msg("failed to read archive dir")
		return
	}

	cutoff := time.Now().Add(-j.maxAge)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(j.dir, entry.Name())

		if j.store != nil {
			if err := j.upload(ctx, path, entry.Name()); err != nil {
				zlog.Logger.Err(err).Str("file", path).Msg("failed to archive file, keeping it")
				continue
			}
		}

		if err := os.Remove(path); err != nil {
			zlog.Logger.Err(err).Str("file", path).Msg("failed to remove archived file")
			continue
		}

		zlog.Logger.Info().Str("file", path).Msg("archived processed output")
	}
}

func (j *Janitor) upload(ctx context.Context, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = j.store.Save(ctx, "archive", name, f)
	return err
}
