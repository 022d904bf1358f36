package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestScenario(t *testing.T, file string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", file))
	require.NoError(t, err)
	return s
}

func TestRun_AllScenariosPass(t *testing.T) {
	scenarios, err := LoadDir(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_Golden(t *testing.T) {
	files := []string{
		"a_active_push.yaml",
		"b_inactive_push.yaml",
		"c_mark_read_once.yaml",
		"d_mark_read_retry.yaml",
		"e_composer_validation.yaml",
	}
	for _, f := range files {
		s := loadTestScenario(t, f)
		t.Run(s.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	s := loadTestScenario(t, "c_mark_read_once.yaml")

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.State, second.State)
}

func TestRun_FailingAssertionReported(t *testing.T) {
	s := loadTestScenario(t, "a_active_push.yaml")
	two := 2
	s.Assertions = []Assertion{{Type: AssertDayBoundaries, Count: &two}}

	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "day_boundaries")
}

func TestRun_UnmetExpectError(t *testing.T) {
	s := loadTestScenario(t, "a_active_push.yaml")
	s.Steps[1].ExpectError = "NETWORK_FAILURE"

	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected NETWORK_FAILURE")
}

func TestRun_CompleteWithoutPendingTask(t *testing.T) {
	s := loadTestScenario(t, "a_active_push.yaml")
	s.Steps = append([]Step{{Do: StepComplete, Task: "mark_read"}}, s.Steps...)

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no pending mark_read task")
}

func TestRun_DefaultUser(t *testing.T) {
	s := loadTestScenario(t, "b_inactive_push.yaml")
	s.User = UserSpec{}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "1", s.User.ID)
}

func TestRun_SocketMutationsSendCommands(t *testing.T) {
	s := loadTestScenario(t, "h_rest_mutations.yaml")
	s.Mutations = ""
	// Over the socket an unknown id is accepted by the transport; the
	// server simply never broadcasts a change for it.
	zero := 0
	three := 3
	s.Assertions = []Assertion{
		{Type: AssertMessages, IDs: []string{"50"}, Contents: []string{"final"}},
		{Type: AssertTraceCount, Event: EventCall, Op: "edit_message", Count: &zero},
		{Type: AssertTraceCount, Event: EventSend, Count: &three},
		{Type: AssertSent, Payload: map[string]any{"action": "delete", "messageId": 51, "receiverId": 2}},
		{Type: AssertErrors},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}
