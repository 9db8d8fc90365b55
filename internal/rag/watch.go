package rag

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reingestDelay = 500 * time.Millisecond

// Watch re-ingests path whenever it is written or replaced, until ctx ends.
// The parent directory is watched because editors often save by rename.
func (in *Ingester) Watch(ctx context.Context, path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	target := filepath.Clean(path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", target, err)
	}

	go func() {
		defer w.Close()
		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
					continue
				}
				pending = time.After(reingestDelay)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				in.logger.Warn("knowledge watcher error", zap.Error(err))
			case <-pending:
				pending = nil
				if _, err := in.IngestFile(ctx, target); err != nil {
					in.logger.Warn("knowledge re-ingest failed", zap.String("path", target), zap.Error(err))
				}
			}
		}
	}()
	in.logger.Info("watching knowledge file", zap.String("path", target))
	return nil
}
