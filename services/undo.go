package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// undoStep löscht genau einen in diesem Lauf angelegten Datensatz wieder.
type undoStep struct {
	kind string
	id   uint
	run  func(ctx context.Context, id uint) error
}

// undoStack sammelt die Kompensationsschritte eines Study-Imports in Anlagereihenfolge.
type undoStack struct {
	steps []undoStep
}

func (u *undoStack) push(kind string, id uint, run func(ctx context.Context, id uint) error) {
	u.steps = append(u.steps, undoStep{kind: kind, id: id, run: run})
}

func (u *undoStack) len() int { return len(u.steps) }

// unwind führt die Schritte in umgekehrter Reihenfolge aus. Fehlgeschlagene Schritte
// werden protokolliert, die übrigen trotzdem ausgeführt.
func (u *undoStack) unwind(ctx context.Context, logger *zap.Logger) (int, error) {
	var errs []error
	done := 0
	for i := len(u.steps) - 1; i >= 0; i-- {
		step := u.steps[i]
		if err := step.run(ctx, step.id); err != nil {
			logger.Warn("Kompensation fehlgeschlagen",
				zap.String("kind", step.kind), zap.Uint("id", step.id), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s %d: %w", step.kind, step.id, err))
			continue
		}
		done++
	}
	u.steps = nil
	return done, errors.Join(errs...)
}
