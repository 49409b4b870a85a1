package cli

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/previewkit/previewd/errors"
	"github.com/stretchr/testify/require"
)

func handleToBuffer(t *testing.T, verbose bool, err error) string {
	t.Helper()
	var buf bytes.Buffer
	h := NewErrorHandler(verbose)
	h.out = &buf
	require.Equal(t, err, h.Handle(err))
	return buf.String()
}

func TestHandleTypedErrors(t *testing.T) {
	out := handleToBuffer(t, false, errors.SessionNotFound("sess-1700000000000-deadbeef"))
	require.Contains(t, out, "session 'sess-1700000000000-deadbeef' not found")
	require.Contains(t, out, "previewd sessions list")

	out = handleToBuffer(t, false, errors.SourceNotFound("/missing/app"))
	require.Contains(t, out, "source directory not found: /missing/app")
	require.Contains(t, out, "Check the path")

	// The code name itself never leaks into the friendly message.
	require.NotContains(t, out, "SOURCE_NOT_FOUND")
}

func TestHandleDaemonEnvelopeErrors(t *testing.T) {
	// Errors rebuilt from the API envelope carry a code and message but
	// not the local constructor details; they still hit the typed branch.
	wireErr := errors.New(errors.ErrCodeSessionNotFound, "Session not found")
	out := handleToBuffer(t, false, wireErr)
	require.Contains(t, out, "Session not found")
	require.Contains(t, out, "previewd sessions list")
	require.NotContains(t, out, "<nil>")
}

func TestHandlePlainErrorVerbose(t *testing.T) {
	out := handleToBuffer(t, false, fmt.Errorf("connection refused"))
	require.Contains(t, out, "Error: connection refused")

	detailed := errors.New(errors.ErrCodeInternal, "boom").WithDetail("op", "copy")
	out = handleToBuffer(t, true, detailed)
	require.Contains(t, out, "Error details:")
	require.Contains(t, out, `"op": "copy"`)
}
