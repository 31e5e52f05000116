package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ataa/internal/model"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(model.NotFound(model.EntityHousehold, "h9"))
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "h9")
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("done"))
	assert.Equal(t, "done\n", buf.String())

	buf.Reset()
	require.NoError(t, formatter.Success(map[string]int{"updated": 3}))
	assert.Equal(t, "{\n  \"updated\": 3\n}\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Error(errors.New("boom")))
	assert.Equal(t, "Error [ERROR]: boom\n", buf.String())
}

func TestExitError(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapExitError(ExitCommandError, "failed to open database", cause)
	assert.Equal(t, "failed to open database: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "plain", NewExitError(ExitFailure, "plain").Error())
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"exit error", NewExitError(ExitCommandError, "bad"), ExitCommandError},
		{"wrapped exit error", fmt.Errorf("outer: %w", NewExitError(ExitUnavailable, "x")), ExitUnavailable},
		{"plain error", errors.New("x"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestWrapOp(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{model.Errorf(model.ErrCodeNoConnectivity, "offline"), ExitUnavailable},
		{model.Errorf(model.ErrCodeConnectivity, "timeout"), ExitUnavailable},
		{model.Errorf(model.ErrCodeAlreadyInProgress, "busy"), ExitUnavailable},
		{model.Validationf("bad"), ExitFailure},
		{errors.New("other"), ExitFailure},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, wrapOp("op failed", tt.err).Code, tt.err.Error())
	}
}
