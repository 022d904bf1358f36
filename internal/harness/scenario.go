package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/convsync/internal/config"
	"github.com/roach88/convsync/internal/engine"
	"github.com/roach88/convsync/internal/model"
)

// Scenario defines a conversation sync scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// User is the signed-in user. Defaults to id "1", username "me".
	User UserSpec `yaml:"user,omitempty"`

	// DeferUser leaves the user unknown until a bootstrap step resolves it.
	DeferUser bool `yaml:"defer_user,omitempty"`

	// Mutations routes edit and delete: "socket" (default) or "rest".
	Mutations string `yaml:"mutations,omitempty"`

	Server   ServerSpec    `yaml:"server,omitempty"`
	Viewport *ViewportSpec `yaml:"viewport,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// UserSpec names a user.
type UserSpec struct {
	ID       string `yaml:"id"`
	Username string `yaml:"username,omitempty"`
}

// ServerSpec is what the backend holds before the first step.
type ServerSpec struct {
	Recents []RecentSpec `yaml:"recents,omitempty"`

	// Messages is keyed by conversation key ("direct:2", "group:7").
	Messages map[string][]MessageSpec `yaml:"messages,omitempty"`

	// Fail lists, per operation, the 1-based call numbers that fail.
	// Operations: current_user, recent_conversations, messages, mark_read,
	// clear_conversation, edit_message, delete_message, upload_file, send.
	Fail map[string][]int `yaml:"fail,omitempty"`

	// Echo broadcasts every accepted command back as a push event, the way
	// the server confirms a send.
	Echo bool `yaml:"echo,omitempty"`
}

// RecentSpec is one row of the server's recent list.
type RecentSpec struct {
	Conversation string `yaml:"conversation"`
	Name         string `yaml:"name,omitempty"`
	Unread       int    `yaml:"unread,omitempty"`
}

// MessageSpec is one stored message.
type MessageSpec struct {
	ID      string `yaml:"id"`
	Sender  string `yaml:"sender"`
	Content string `yaml:"content,omitempty"`
	At      string `yaml:"at"`
	Read    bool   `yaml:"read,omitempty"`
}

// ViewportSpec lists the message ids on screen. Without a viewport every
// message is visible.
type ViewportSpec struct {
	Visible []string `yaml:"visible"`
}

// Step is one host input.
type Step struct {
	Do string `yaml:"do"`

	Conversation string         `yaml:"conversation,omitempty"`
	Name         string         `yaml:"name,omitempty"`
	Event        map[string]any `yaml:"event,omitempty"`
	Raw          string         `yaml:"raw,omitempty"`
	Interaction  string         `yaml:"interaction,omitempty"`
	Visible      []string       `yaml:"visible,omitempty"`
	Content      string         `yaml:"content,omitempty"`
	Files        []FileSpec     `yaml:"files,omitempty"`
	Message      string         `yaml:"message,omitempty"`
	Task         string         `yaml:"task,omitempty"`
	Duration     string         `yaml:"duration,omitempty"`

	// ExpectError is a failure kind the step must raise, e.g.
	// VALIDATION_FAILURE.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// FileSpec is an attachment with inline content.
type FileSpec struct {
	Name    string `yaml:"name"`
	Content string `yaml:"content"`
}

// Assertion validates the trace or the final engine state.
type Assertion struct {
	Type string `yaml:"type"`

	// Conversation is the conversation key; empty means the active one
	// (messages, day_boundaries) or the global badge (unread).
	Conversation string `yaml:"conversation,omitempty"`

	IDs      []string `yaml:"ids,omitempty"`
	Contents []string `yaml:"contents,omitempty"`

	// Count is the expected number for unread, day_boundaries and
	// trace_count.
	Count *int `yaml:"count,omitempty"`

	// Event and Op select trace events (trace_count).
	Event string `yaml:"event,omitempty"`
	Op    string `yaml:"op,omitempty"`

	State   string         `yaml:"state,omitempty"`
	Payload map[string]any `yaml:"payload,omitempty"`
	Order   []string       `yaml:"order,omitempty"`
	Level   string         `yaml:"level,omitempty"`
	Message string         `yaml:"message,omitempty"`
	Kinds   []string       `yaml:"kinds,omitempty"`
}

// Step names.
const (
	StepBootstrap = "bootstrap"
	StepActivate  = "activate"
	StepPush      = "push"
	StepInteract  = "interact"
	StepSend      = "send"
	StepEdit      = "edit"
	StepDelete    = "delete"
	StepClear     = "clear"
	StepComplete  = "complete"
	StepSettle    = "settle"
	StepAdvance   = "advance"
)

// Assertion type constants.
const (
	AssertMessages      = "messages"
	AssertUnread        = "unread"
	AssertDayBoundaries = "day_boundaries"
	AssertTraceCount    = "trace_count"
	AssertReceipt       = "receipt"
	AssertSent          = "sent"
	AssertRecentOrder   = "recent_order"
	AssertNotice        = "notice"
	AssertErrors        = "errors"
)

// LoadScenario reads and parses a scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	switch s.Mutations {
	case "", config.MutationsSocket, config.MutationsREST:
	default:
		return fmt.Errorf("mutations must be %q or %q", config.MutationsSocket, config.MutationsREST)
	}

	if err := validateServer(&s.Server); err != nil {
		return err
	}
	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i]); err != nil {
			return err
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateServer(s *ServerSpec) error {
	for i, r := range s.Recents {
		if _, err := model.ParseConversationKey(r.Conversation); err != nil {
			return fmt.Errorf("server.recents[%d]: %w", i, err)
		}
	}
	for key, msgs := range s.Messages {
		if _, err := model.ParseConversationKey(key); err != nil {
			return fmt.Errorf("server.messages: %w", err)
		}
		for i, m := range msgs {
			if m.ID == "" || m.Sender == "" {
				return fmt.Errorf("server.messages[%s][%d]: id and sender are required", key, i)
			}
			if _, err := model.ParseTimestamp(m.At); err != nil {
				return fmt.Errorf("server.messages[%s][%d]: %w", key, i, err)
			}
		}
	}
	return nil
}

// validateStep validates a single step based on its kind.
func validateStep(index int, st *Step) error {
	switch st.Do {
	case StepBootstrap, StepClear, StepSettle:
	case StepActivate:
		if _, err := model.ParseConversationKey(st.Conversation); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	case StepPush:
		if (st.Event == nil) == (st.Raw == "") {
			return fmt.Errorf("steps[%d]: push needs exactly one of event or raw", index)
		}
	case StepInteract:
		switch engine.Interaction(st.Interaction) {
		case engine.InteractionScroll, engine.InteractionClick, engine.InteractionSend:
		default:
			return fmt.Errorf("steps[%d]: unknown interaction %q", index, st.Interaction)
		}
	case StepSend:
		for j, f := range st.Files {
			if f.Name == "" {
				return fmt.Errorf("steps[%d].files[%d]: name is required", index, j)
			}
		}
	case StepEdit, StepDelete:
		if st.Message == "" {
			return fmt.Errorf("steps[%d]: message is required for %s", index, st.Do)
		}
	case StepComplete:
		if st.Task == "" {
			return fmt.Errorf("steps[%d]: task is required for complete", index)
		}
	case StepAdvance:
		if _, err := config.ParseDuration(st.Duration); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	case "":
		return fmt.Errorf("steps[%d]: do is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown step %q", index, st.Do)
	}

	if st.ExpectError != "" && !knownKind(st.ExpectError) {
		return fmt.Errorf("steps[%d]: unknown failure kind %q", index, st.ExpectError)
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertMessages:
		if a.IDs == nil {
			return fmt.Errorf("assertions[%d]: ids is required for messages (use [] for none)", index)
		}
		if a.Contents != nil && len(a.Contents) != len(a.IDs) {
			return fmt.Errorf("assertions[%d]: contents must match ids in length", index)
		}
	case AssertUnread, AssertDayBoundaries:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for %s", index, a.Type)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertReceipt:
		switch a.State {
		case engine.ReceiptUnmarked.String(), engine.ReceiptMarking.String(), engine.ReceiptMarked.String():
		default:
			return fmt.Errorf("assertions[%d]: unknown receipt state %q", index, a.State)
		}
	case AssertSent:
		if len(a.Payload) == 0 {
			return fmt.Errorf("assertions[%d]: payload is required for sent", index)
		}
	case AssertRecentOrder:
		if a.Order == nil {
			return fmt.Errorf("assertions[%d]: order is required for recent_order", index)
		}
	case AssertNotice:
		if a.Level == "" {
			return fmt.Errorf("assertions[%d]: level is required for notice", index)
		}
	case AssertErrors:
		for _, k := range a.Kinds {
			if !knownKind(k) {
				return fmt.Errorf("assertions[%d]: unknown failure kind %q", index, k)
			}
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func knownKind(k string) bool {
	switch engine.FailureKind(k) {
	case engine.NetworkFailure, engine.ValidationFailure, engine.StaleStateFailure, engine.ProtocolFailure:
		return true
	}
	return false
}
