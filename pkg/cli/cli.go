package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/m-mizutani/momentseek/pkg/model"
	"github.com/m-mizutani/momentseek/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	if err := newApp().Run(ctx, argv); err != nil {
		logging.Default().Debug("command failed", "error", err)
		return &Error{
			Code:    1,
			Message: errorMessage(err),
		}
	}

	return nil
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "momentseek",
		Usage: "Find the moments in a video that answer a question",
		Commands: []*cli.Command{
			queryCommand(),
			historyCommand(),
			showCommand(),
			playCommand(),
			serveCommand(),
		},
	}
}

// errorMessage puts the user-safe summary of known failures in front of
// the original detail.
func errorMessage(err error) string {
	if !isDomainError(err) {
		return err.Error()
	}
	return fmt.Sprintf("%s\n  detail: %s", model.Summary(err), err.Error())
}

func isDomainError(err error) bool {
	for _, target := range []error{
		model.ErrMalformedResponse,
		model.ErrPredictionFailed,
		model.ErrStorageUnavailable,
		model.ErrInvalidClipBounds,
		model.ErrVideoRequired,
		model.ErrQueryRequired,
		model.ErrHistoryNotFound,
		model.ErrInvalidSortField,
		model.ErrInvalidSortDirection,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
