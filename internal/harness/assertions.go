package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/convsync/internal/convstore"
	"github.com/roach88/convsync/internal/engine"
	"github.com/roach88/convsync/internal/model"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s %s\n", ev.Seq, ev.Type, ev.Op, ev.Conversation, ev.Detail)
		}
	}

	return buf.String()
}

// AssertionContext gives assertions access to the engine after the run.
type AssertionContext struct {
	Engine *engine.Engine

	// Sent holds the encoded commands the transport accepted, in order.
	Sent []json.RawMessage
}

// EvaluateAssertions runs all assertions and returns failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertMessages:
		return assertMessages(actx, a)
	case AssertUnread:
		return assertUnread(actx, a)
	case AssertDayBoundaries:
		return assertDayBoundaries(actx, a)
	case AssertTraceCount:
		return assertTraceCount(result, a)
	case AssertReceipt:
		return assertReceipt(result, a)
	case AssertSent:
		return assertSent(actx, a)
	case AssertRecentOrder:
		return assertRecentOrder(result, a)
	case AssertNotice:
		return assertNotice(result, a)
	case AssertErrors:
		return assertErrors(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// conversation resolves the assertion's conversation, defaulting to the
// active one.
func conversation(actx *AssertionContext, key string) (model.ConversationRef, error) {
	if key == "" {
		return actx.Engine.Session().Active, nil
	}
	return model.ParseConversationKey(key)
}

func assertMessages(actx *AssertionContext, a Assertion) error {
	ref, err := conversation(actx, a.Conversation)
	if err != nil {
		return err
	}
	msgs := actx.Engine.Messages(ref)

	ids := make([]string, len(msgs))
	contents := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID.String()
		contents[i] = m.Content
	}

	if !slices.Equal(ids, a.IDs) {
		return &AssertionError{
			Type:     AssertMessages,
			Expected: fmt.Sprintf("%s holds %v", ref, a.IDs),
			Actual:   fmt.Sprintf("%v", ids),
		}
	}
	if a.Contents != nil && !slices.Equal(contents, a.Contents) {
		return &AssertionError{
			Type:     AssertMessages,
			Expected: fmt.Sprintf("%s contents %q", ref, a.Contents),
			Actual:   fmt.Sprintf("%q", contents),
		}
	}
	return nil
}

func assertUnread(actx *AssertionContext, a Assertion) error {
	var (
		got  int
		what string
	)
	if a.Conversation == "" {
		got, what = actx.Engine.UnreadTotal(), "unread total"
	} else {
		ref, err := model.ParseConversationKey(a.Conversation)
		if err != nil {
			return err
		}
		got, what = actx.Engine.Unread(ref), "unread "+ref.Key()
	}

	if got != *a.Count {
		return &AssertionError{
			Type:     AssertUnread,
			Expected: fmt.Sprintf("%s = %d", what, *a.Count),
			Actual:   fmt.Sprintf("%d", got),
		}
	}
	return nil
}

func assertDayBoundaries(actx *AssertionContext, a Assertion) error {
	ref, err := conversation(actx, a.Conversation)
	if err != nil {
		return err
	}
	got := convstore.Boundaries(actx.Engine.Days(ref))
	if got != *a.Count {
		return &AssertionError{
			Type:     AssertDayBoundaries,
			Expected: fmt.Sprintf("%d day boundaries in %s", *a.Count, ref),
			Actual:   fmt.Sprintf("%d", got),
		}
	}
	return nil
}

// assertTraceCount checks that the event appears exactly the specified
// number of times.
func assertTraceCount(result *Result, a Assertion) error {
	got := result.Count(a.Event, a.Op)
	if got != *a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s %s", *a.Count, a.Event, a.Op),
			Actual:   fmt.Sprintf("%d occurrences", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertReceipt(result *Result, a Assertion) error {
	if result.State.Receipt != a.State {
		return &AssertionError{
			Type:     AssertReceipt,
			Expected: a.State,
			Actual:   result.State.Receipt,
		}
	}
	return nil
}

// assertSent checks that some accepted command contains payload (subset
// match).
func assertSent(actx *AssertionContext, a Assertion) error {
	want, err := normalize(a.Payload)
	if err != nil {
		return err
	}

	seen := make([]string, len(actx.Sent))
	for i, raw := range actx.Sent {
		seen[i] = string(raw)
		var got any
		if err := json.Unmarshal(raw, &got); err != nil {
			continue
		}
		if matchSubset(got, want) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertSent,
		Expected: fmt.Sprintf("a command containing %v", a.Payload),
		Actual:   fmt.Sprintf("sent %v", seen),
	}
}

func assertRecentOrder(result *Result, a Assertion) error {
	if !slices.Equal(result.State.Recent, a.Order) {
		return &AssertionError{
			Type:     AssertRecentOrder,
			Expected: fmt.Sprintf("%v", a.Order),
			Actual:   fmt.Sprintf("%v", result.State.Recent),
		}
	}
	return nil
}

func assertNotice(result *Result, a Assertion) error {
	for _, ev := range result.Trace {
		if ev.Type == EventNotify && ev.Op == a.Level && strings.Contains(ev.Detail, a.Message) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertNotice,
		Expected: fmt.Sprintf("%s notice containing %q", a.Level, a.Message),
		Actual:   "not found in trace",
		Trace:    result.Trace,
	}
}

func assertErrors(result *Result, a Assertion) error {
	got := []string{}
	for _, ev := range result.Trace {
		if ev.Type == EventError {
			got = append(got, ev.Detail)
		}
	}
	want := a.Kinds
	if want == nil {
		want = []string{}
	}
	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     AssertErrors,
			Expected: fmt.Sprintf("%v", want),
			Actual:   fmt.Sprintf("%v", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// normalize round-trips v through JSON so YAML-decoded values compare equal
// to JSON-decoded ones (ints become float64 and so on).
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode expected payload: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// matchSubset reports whether every field of want is present in got with an
// equal value. Lists must match element by element.
func matchSubset(got, want any) bool {
	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			return false
		}
		for k, wv := range w {
			gv, exists := g[k]
			if !exists || !matchSubset(gv, wv) {
				return false
			}
		}
		return true
	case []any:
		g, ok := got.([]any)
		if !ok || len(g) != len(w) {
			return false
		}
		for i := range w {
			if !matchSubset(g[i], w[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(got, want)
	}
}
