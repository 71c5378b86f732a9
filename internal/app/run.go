package app

import (
	"context"
	"fmt"

	"github.com/specialistvlad/segmentgridgo/internal/ctxlog"
)

// Run executes the configured command.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.", "command", a.config.Command)

	a.startHealthcheckServer()
	defer a.closeHealthcheckServer()

	var err error
	switch a.config.Command {
	case CommandSearch:
		err = a.runSearch(ctx)
	case CommandRank:
		err = a.runRank(ctx)
	case CommandCompare:
		err = a.runCompare(ctx)
	case CommandHistory:
		err = a.runHistory(ctx)
	case CommandServeTrainer:
		err = a.serveTrainer(ctx)
	default:
		err = fmt.Errorf("%w: unknown command %q", ErrInvalidConfig, a.config.Command)
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", a.config.Command, err)
	}
	a.logger.Debug("App.Run method finished.")
	return nil
}
