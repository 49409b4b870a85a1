package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/previewkit/previewd/errors"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
	out     io.Writer
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
		out:     os.Stderr,
	}
}

// Handle provides user-friendly error messages based on error type.
// Works on errors raised locally and on typed errors rebuilt from the
// daemon's API envelope.
func (h *ErrorHandler) Handle(err error) error {
	switch errors.GetCode(err) {
	case errors.ErrCodeSourceNotFound:
		fmt.Fprintf(h.out, "❌ %s\n", errMessage(err))
		fmt.Fprintf(h.out, "Check the path and try again.\n")
		return err

	case errors.ErrCodeSessionNotFound:
		fmt.Fprintf(h.out, "❌ %s\n", errMessage(err))
		fmt.Fprintf(h.out, "Run 'previewd sessions list' to see active sessions.\n")
		return err

	case errors.ErrCodePartialCopy:
		fmt.Fprintf(h.out, "❌ Workspace copy failed partway and was removed\n")
		fmt.Fprintf(h.out, "Check disk space and source permissions, then retry.\n")
		return err

	case errors.ErrCodeWatchAttach:
		fmt.Fprintf(h.out, "❌ Could not attach the file watcher; the session works without live reload\n")
		return err

	case errors.ErrCodeConfigInvalid:
		fmt.Fprintf(h.out, "❌ Invalid configuration in previewd.yml\n")
		return err

	default:
		fmt.Fprintf(h.out, "❌ Error: %v\n", err)

		if h.Verbose {
			if previewErr, ok := err.(*errors.PreviewError); ok {
				fmt.Fprintf(h.out, "\nError details:\n%s\n", previewErr.ToJSON())
			}
		}
		return err
	}
}

// errMessage returns the human part of a typed error, or the full error
// text for plain errors.
func errMessage(err error) string {
	if previewErr, ok := err.(*errors.PreviewError); ok {
		return previewErr.Message
	}
	return err.Error()
}
