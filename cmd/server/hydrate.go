package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tvitch/domain/record"
	"tvitch/infra/store"
	"tvitch/service"
	"tvitch/snapshot"
)

// hydrate rebuilds the books of every checkpoint of a completed replay in
// dir and stores those missing from st as final books. The checkpoint
// name is the job name. It returns the number of books stored.
func hydrate(dir string, st *store.Store, logger *zap.Logger) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+snapshot.Ext))
	if err != nil {
		return 0, errors.Wrap(err, "hydrate: list checkpoints")
	}

	stored := 0
	for _, path := range paths {
		job := strings.TrimSuffix(filepath.Base(path), snapshot.Ext)
		snap, engine, err := snapshot.Load(path)
		if err != nil {
			logger.Warn("hydrate: skipping checkpoint", zap.String("path", path), zap.Error(err))
			continue
		}

		if snap.Outcome != service.Completed.String() {
			logger.Info("hydrate: skipping incomplete replay",
				zap.String("job", job), zap.String("outcome", snap.Outcome))
			continue
		}

		for _, b := range engine.Books() {
			_, err := st.Book(b.Ticker, job)
			if err == nil {
				continue
			}
			if !errors.Is(err, store.ErrNotFound) {
				return stored, err
			}
			if err := st.PutBook(job, record.FromBook(b, snap.LastTimestamp, true)); err != nil {
				return stored, err
			}
			stored++
		}
		logger.Info("hydrate: checkpoint loaded",
			zap.String("job", job),
			zap.String("run_id", snap.RunID),
			zap.Int("orders", engine.Len()))
	}
	return stored, nil
}

func exists(dir string) bool {
	_, err := os.Stat(dir)
	return err == nil
}
