package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/convsync/internal/model"
)

// errInjected is returned by backend calls a scenario marked as failing.
var errInjected = errors.New("injected failure")

// backend plays the server: REST API, push transport and upload endpoint.
//
// Thread-safety: none. Tasks run on the harness goroutine through the manual
// dispatcher, so the backend is only ever called from one goroutine.
type backend struct {
	rec      *recorder
	me       model.User
	recents  []model.RecentEntry
	messages map[model.ConversationRef][]model.Message
	fail     map[string][]int
	calls    map[string]int
	echo     bool
	nextID   int
	now      func() time.Time

	// deliver hands a push payload to the engine.
	deliver func([]byte) bool

	sent []json.RawMessage
}

func newBackend(s *Scenario, rec *recorder, now func() time.Time) (*backend, error) {
	b := &backend{
		rec:      rec,
		me:       model.User{ID: model.ID(s.User.ID), Username: s.User.Username},
		messages: make(map[model.ConversationRef][]model.Message),
		fail:     s.Server.Fail,
		calls:    make(map[string]int),
		echo:     s.Server.Echo,
		nextID:   1000,
		now:      now,
	}

	for _, r := range s.Server.Recents {
		ref, err := model.ParseConversationKey(r.Conversation)
		if err != nil {
			return nil, err
		}
		b.recents = append(b.recents, model.RecentEntry{
			Conversation: model.Conversation{Ref: ref, Name: r.Name},
			UnreadCount:  r.Unread,
		})
	}

	for key, specs := range s.Server.Messages {
		ref, err := model.ParseConversationKey(key)
		if err != nil {
			return nil, err
		}
		for _, m := range specs {
			ts, err := model.ParseTimestamp(m.At)
			if err != nil {
				return nil, err
			}
			b.messages[ref] = append(b.messages[ref], model.Message{
				ID:           model.ID(m.ID),
				Conversation: ref,
				SenderID:     model.ID(m.Sender),
				Content:      m.Content,
				Timestamp:    ts,
				IsRead:       m.Read,
			})
		}
	}
	return b, nil
}

// call records a request and reports whether the scenario made it fail.
func (b *backend) call(op string, ref model.ConversationRef, detail string) error {
	b.calls[op]++
	n := b.calls[op]
	b.rec.add(TraceEvent{Type: EventCall, Op: op, Conversation: ref.Key(), Detail: detail})
	if slices.Contains(b.fail[op], n) {
		return fmt.Errorf("%s call %d: %w", op, n, errInjected)
	}
	return nil
}

func (b *backend) CurrentUser(context.Context) (model.User, error) {
	if err := b.call("current_user", model.ConversationRef{}, ""); err != nil {
		return model.User{}, err
	}
	return b.me, nil
}

func (b *backend) RecentConversations(context.Context) ([]model.RecentEntry, error) {
	if err := b.call("recent_conversations", model.ConversationRef{}, ""); err != nil {
		return nil, err
	}
	return slices.Clone(b.recents), nil
}

func (b *backend) Messages(_ context.Context, ref model.ConversationRef) ([]model.Message, error) {
	if err := b.call("messages", ref, ""); err != nil {
		return nil, err
	}
	return slices.Clone(b.messages[ref]), nil
}

func (b *backend) MarkRead(_ context.Context, ref model.ConversationRef) error {
	if err := b.call("mark_read", ref, ""); err != nil {
		return err
	}
	msgs := b.messages[ref]
	for i := range msgs {
		if !msgs[i].IsFrom(b.me.ID) {
			msgs[i].IsRead = true
		}
	}
	for i := range b.recents {
		if b.recents[i].Ref == ref {
			b.recents[i].UnreadCount = 0
		}
	}
	return nil
}

func (b *backend) ClearConversation(_ context.Context, ref model.ConversationRef) error {
	if err := b.call("clear_conversation", ref, ""); err != nil {
		return err
	}
	delete(b.messages, ref)
	return nil
}

func (b *backend) EditMessage(_ context.Context, id model.ID, content string) error {
	if err := b.call("edit_message", model.ConversationRef{}, id.String()); err != nil {
		return err
	}
	ref, ok := b.locate(id)
	if !ok {
		return fmt.Errorf("edit_message: message %s not found", id)
	}
	b.broadcast(model.PushEvent{Action: model.ActionEdit, MessageID: id, SenderID: b.me.ID, Content: &content}, ref)
	return nil
}

func (b *backend) DeleteMessage(_ context.Context, id model.ID) error {
	if err := b.call("delete_message", model.ConversationRef{}, id.String()); err != nil {
		return err
	}
	ref, ok := b.locate(id)
	if !ok {
		return fmt.Errorf("delete_message: message %s not found", id)
	}
	b.broadcast(model.PushEvent{Action: model.ActionDelete, MessageID: id, SenderID: b.me.ID}, ref)
	return nil
}

// UploadFile implements upload.Uploader.
func (b *backend) UploadFile(_ context.Context, name, _ string, _ []byte) (model.Attachment, error) {
	if err := b.call("upload_file", model.ConversationRef{}, name); err != nil {
		return model.Attachment{}, err
	}
	return model.Attachment{URL: "/uploads/" + name}, nil
}

// Send implements engine.Sender.
func (b *backend) Send(_ context.Context, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	var (
		op  string
		ref model.ConversationRef
	)
	switch cmd := payload.(type) {
	case model.SendCommand:
		op, ref = model.ActionCreate.String(), commandRef(cmd.ReceiverID, cmd.GroupID)
	case model.MutationCommand:
		op, ref = cmd.Action.String(), commandRef(cmd.ReceiverID, cmd.GroupID)
	default:
		return fmt.Errorf("unexpected command %T", payload)
	}

	b.calls["send"]++
	n := b.calls["send"]
	b.rec.add(TraceEvent{Type: EventSend, Op: op, Conversation: ref.Key(), Detail: string(data)})
	if slices.Contains(b.fail["send"], n) {
		return fmt.Errorf("send call %d: %w", n, errInjected)
	}
	b.sent = append(b.sent, data)

	switch cmd := payload.(type) {
	case model.SendCommand:
		b.nextID++
		b.broadcast(model.PushEvent{
			Action:   model.ActionCreate,
			ID:       model.ID(fmt.Sprint(b.nextID)),
			SenderID: b.me.ID,
			Username: b.me.Username,
			Content:  cmd.Content,
			Files:    cmd.Files,
		}, ref)
	case model.MutationCommand:
		b.broadcast(model.PushEvent{
			Action:    cmd.Action,
			MessageID: cmd.MessageID,
			SenderID:  b.me.ID,
			Content:   cmd.Content,
		}, ref)
	}
	return nil
}

// broadcast applies ev to the stored conversation ref and, with echo on,
// pushes it to the engine.
func (b *backend) broadcast(ev model.PushEvent, ref model.ConversationRef) {
	if ref.IsGroup() {
		ev.GroupID = ref.ID
	} else {
		ev.ReceiverID = ref.ID
	}
	ev.Timestamp = model.Timestamp{Time: b.now()}
	b.observe(ev)

	if !b.echo || b.deliver == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	b.deliver(data)
}

// observe mirrors a pushed change into the stored conversations so later
// loads see it. Events the engine would reject are ignored.
func (b *backend) observe(ev model.PushEvent) {
	if ev.Validate() != nil {
		return
	}
	ref := ev.Conversation(b.me.ID)
	if ref.IsZero() {
		return
	}
	msgs := b.messages[ref]
	idx := slices.IndexFunc(msgs, func(m model.Message) bool { return m.ID == ev.TargetID() })

	switch ev.Action {
	case model.ActionCreate:
		if idx < 0 {
			b.messages[ref] = append(msgs, ev.Message(ref))
		}
	case model.ActionEdit:
		if idx >= 0 {
			msgs[idx].Content = ev.Text()
		}
	case model.ActionDelete:
		if idx >= 0 {
			b.messages[ref] = slices.Delete(msgs, idx, idx+1)
		}
	}
}

func (b *backend) locate(id model.ID) (model.ConversationRef, bool) {
	for ref, msgs := range b.messages {
		for _, m := range msgs {
			if m.ID == id {
				return ref, true
			}
		}
	}
	return model.ConversationRef{}, false
}

func commandRef(receiver, group *model.ID) model.ConversationRef {
	if group != nil {
		return model.Group(*group)
	}
	if receiver != nil {
		return model.Direct(*receiver)
	}
	return model.ConversationRef{}
}
