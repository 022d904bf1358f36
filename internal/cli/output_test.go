package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain", errors.New("boom"), ExitFailure},
		{"exit error", NewExitError(ExitCommandError, "bad flag"), ExitCommandError},
		{"wrapped", fmt.Errorf("run: %w", WrapExitError(ExitFailure, "lost", errors.New("eof"))), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitError_Message(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapExitError(ExitCommandError, "failed to connect push transport", cause)

	assert.Equal(t, "failed to connect push transport: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "bad flag", NewExitError(ExitCommandError, "bad flag").Error())
}

func TestOutput_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	out := &Output{Format: "json", Writer: buf}

	require.NoError(t, out.Success([]RecentRow{{Conversation: "direct:2", Unread: 1}}))

	var resp struct {
		Status string      `json:"status"`
		Data   []RecentRow `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []RecentRow{{Conversation: "direct:2", Unread: 1}}, resp.Data)
}

func TestOutput_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	out := &Output{Format: "json", Writer: buf}

	require.NoError(t, out.Error("E_CONFIG", "server.url is required", map[string]string{"file": "convsync.yaml"}))

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_CONFIG", resp.Error.Code)
	assert.Equal(t, "server.url is required", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutput_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	out := &Output{Format: "text", Writer: buf}

	require.NoError(t, out.Success("No recent chats."))
	require.NoError(t, out.Error("E_CONFIG", "server.url is required", "details hidden"))

	assert.Equal(t, "No recent chats.\nError [E_CONFIG]: server.url is required\n", buf.String())

	buf.Reset()
	out.Verbose = true
	require.NoError(t, out.Error("E_CONFIG", "server.url is required", "from convsync.yaml"))
	assert.Contains(t, buf.String(), "Details: from convsync.yaml")
}

func TestOutput_Debugf(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		errW    bool
	}{
		{"quiet", false, false},
		{"verbose to writer", true, false},
		{"verbose to err writer", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
			out := &Output{Format: "json", Writer: stdout, Verbose: tt.verbose}
			if tt.errW {
				out.ErrWriter = stderr
			}

			out.Debugf("running %s", "a.yaml")

			switch {
			case !tt.verbose:
				assert.Empty(t, stdout.String())
				assert.Empty(t, stderr.String())
			case tt.errW:
				assert.Empty(t, stdout.String())
				assert.Equal(t, "running a.yaml\n", stderr.String())
			default:
				assert.Equal(t, "running a.yaml\n", stdout.String())
			}
		})
	}
}
