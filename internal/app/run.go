package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vk/cellgrid/internal/nodestore"
	"github.com/vk/cellgrid/internal/value"
)

// ErrEvaluationFailed is returned by Run when a cell ends in an error.
var ErrEvaluationFailed = errors.New("evaluation failed")

// Run evaluates the document once and prints every cell to the output.
func (a *App) Run(ctx context.Context) error {
	a.logger.Debug("App.Run method started.")
	defer a.Close()

	if err := a.start(ctx); err != nil {
		return err
	}
	if err := a.scheduler.Settle(ctx); err != nil {
		return fmt.Errorf("waiting for evaluation: %w", err)
	}

	snapshot, err := a.scheduler.Store().Snapshot(ctx)
	if err != nil {
		return err
	}
	failed := a.printSnapshot(snapshot)

	a.logger.Debug("App.Run method finished.", "cells", len(snapshot), "failed", len(failed))
	if len(failed) > 0 {
		return fmt.Errorf("%w: %s", ErrEvaluationFailed, strings.Join(failed, ", "))
	}
	return nil
}

// printSnapshot writes one line per cell, or one per error line, sorted by
// cell id. It returns the ids of the failed cells.
func (a *App) printSnapshot(snapshot map[string]nodestore.Entry) []string {
	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var failed []string
	for _, id := range ids {
		entry := snapshot[id]
		if len(entry.Errors) > 0 {
			failed = append(failed, id)
			lines := make([]int, 0, len(entry.Errors))
			for line := range entry.Errors {
				lines = append(lines, line)
			}
			sort.Ints(lines)
			for _, line := range lines {
				if line == 0 {
					fmt.Fprintf(a.outW, "%s ! %s\n", id, entry.Errors[line])
					continue
				}
				fmt.Fprintf(a.outW, "%s ! line %d: %s\n", id, line, entry.Errors[line])
			}
			continue
		}

		content := "<unprintable>"
		if p, err := value.Pack(entry.Value); err == nil {
			content = p.Content
		}
		suffix := ""
		if entry.Stale {
			suffix = " (stale)"
		}
		fmt.Fprintf(a.outW, "%s = %s%s\n", id, content, suffix)
	}
	return failed
}

// Serve runs the engine as a service until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	a.logger.Debug("App.Serve method started.")
	defer a.Close()

	if err := a.start(ctx); err != nil {
		return err
	}
	errCh := a.startHTTPServer()

	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down.")
		return nil
	case err := <-errCh:
		return err
	}
}
