package jobs

import (
	"fmt"
	"log/slog"
)

// slogAdapter routes asynq server logs through slog.
type slogAdapter struct {
	logger *slog.Logger
}

func newSlogAdapter(logger *slog.Logger) *slogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &slogAdapter{logger: logger.With(slog.String("component", "asynq"))}
}

func (a *slogAdapter) Debug(args ...interface{}) { a.logger.Debug(fmt.Sprint(args...)) }
func (a *slogAdapter) Info(args ...interface{})  { a.logger.Info(fmt.Sprint(args...)) }
func (a *slogAdapter) Warn(args ...interface{})  { a.logger.Warn(fmt.Sprint(args...)) }
func (a *slogAdapter) Error(args ...interface{}) { a.logger.Error(fmt.Sprint(args...)) }
func (a *slogAdapter) Fatal(args ...interface{}) { a.logger.Error(fmt.Sprint(args...)) }
