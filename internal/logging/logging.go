// Package logging wires the process-wide slog default logger to a zap core.
package logging

import (
	"log/slog"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

// Setup installs the default slog logger for the process. In debug mode a
// human-readable development core is used; otherwise JSON production output.
func Setup(debug bool) error {
	var (
		zl  *zap.Logger
		err error
	)
	if debug {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}

	logger := zapr.NewLogger(zl)
	slog.SetDefault(slog.New(logr.ToSlogHandler(logger)))
	return nil
}
