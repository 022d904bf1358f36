package engine

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/convsync/internal/model"
	"github.com/roach88/convsync/internal/upload"
)

// BuildSendCommand assembles the outbound create payload for ref. Empty
// content becomes a null content field and no attachments a null files field.
func BuildSendCommand(ref model.ConversationRef, content string, files []model.Attachment) model.SendCommand {
	receiver, group := model.Target(ref)
	cmd := model.SendCommand{ReceiverID: receiver, GroupID: group}
	if content != "" {
		cmd.Content = &content
	}
	if len(files) > 0 {
		cmd.Files = files
	}
	return cmd
}

// BuildMutationCommand assembles the outbound edit or delete payload.
func BuildMutationCommand(ref model.ConversationRef, action model.Action, id model.ID, content string) model.MutationCommand {
	receiver, group := model.Target(ref)
	cmd := model.MutationCommand{Action: action, MessageID: id, ReceiverID: receiver, GroupID: group}
	if action == model.ActionEdit {
		cmd.Content = &content
	}
	return cmd
}

// normalizeContent trims surrounding whitespace and converts the text to NFC.
func normalizeContent(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// submit validates a draft against the active conversation and starts the
// upload step, or sends directly when there is nothing to upload.
//
// The target is captured here; switching conversations while uploads run
// does not redirect the message.
func (e *Engine) submit(d Draft) error {
	target := e.session.Active
	if target.IsZero() {
		e.metrics.send("rejected")
		e.sink.Notify(LevelWarning, "Select a chat first.")
		return newValidationError("send", target, "no active conversation")
	}

	content := normalizeContent(d.Content)
	if content == "" && len(d.Files) == 0 {
		e.metrics.send("rejected")
		e.sink.Notify(LevelWarning, "Type a message or attach a file.")
		return newValidationError("send", target, "empty message")
	}
	e.interact(InteractionSend)

	if len(d.Files) == 0 {
		e.send(target, content, upload.Batch{})
		return nil
	}
	if e.uploader == nil {
		e.metrics.send("rejected")
		e.sink.Notify(LevelWarning, "Attachments are not supported.")
		return newValidationError("send", target, "no uploader configured")
	}

	files := d.Files
	e.run(CompletionUpload.String(), func(ctx context.Context) *Completion {
		batch, err := e.uploader.Upload(ctx, files)
		return &Completion{Kind: CompletionUpload, Ref: target, Content: content, Batch: batch, Err: err}
	})
	return nil
}

func (e *Engine) onUploaded(c *Completion) error {
	if c.Err != nil {
		e.metrics.upload("failed")
		e.metrics.send("aborted")
		e.sink.Notify(LevelDanger, fmt.Sprintf("Upload failed: %v", c.Err))
		return newNetworkError("upload", c.Ref, c.Err)
	}
	e.metrics.upload("succeeded")

	if c.Content == "" && len(c.Batch.Items) == 0 {
		e.metrics.send("rejected")
		return newValidationError("send", c.Ref, "empty message")
	}
	e.send(c.Ref, c.Content, c.Batch)
	return nil
}

// send writes the create command to the transport. The message becomes
// visible only when the server echoes it back as a create event.
func (e *Engine) send(target model.ConversationRef, content string, batch upload.Batch) {
	cmd := BuildSendCommand(target, content, batch.Attachments())
	e.logger.Debug("sending message",
		"conversation", target.Key(),
		"has_text", content != "",
		"files", len(batch.Items),
	)

	e.run(CompletionSend.String(), func(ctx context.Context) *Completion {
		err := e.sender.Send(ctx, cmd)
		if err != nil && len(batch.Items) > 0 && e.uploader != nil {
			e.uploader.Abandon(ctx, batch)
		}
		return &Completion{Kind: CompletionSend, Ref: target, Err: err}
	})
}

func (e *Engine) onSent(c *Completion) error {
	if c.Err != nil {
		e.metrics.send("failed")
		e.sink.Notify(LevelDanger, "Message not sent.")
		return newNetworkError("send", c.Ref, c.Err)
	}
	e.metrics.send("sent")
	return nil
}

// mutate sends an edit or delete for a message of the active conversation.
// Nothing changes locally until the server echoes the change.
func (e *Engine) mutate(action model.Action, m Mutation) error {
	op := action.String()
	target := e.session.Active
	if target.IsZero() {
		e.sink.Notify(LevelWarning, "Select a chat first.")
		return newValidationError(op, target, "no active conversation")
	}
	if m.MessageID.IsZero() {
		return newValidationError(op, target, "message id is required")
	}
	content := normalizeContent(m.Content)

	if e.restMutations {
		e.run(CompletionMutation.String(), func(ctx context.Context) *Completion {
			var err error
			if action == model.ActionEdit {
				err = e.api.EditMessage(ctx, m.MessageID, content)
			} else {
				err = e.api.DeleteMessage(ctx, m.MessageID)
			}
			return &Completion{Kind: CompletionMutation, Ref: target, Action: action, Err: err}
		})
		return nil
	}

	cmd := BuildMutationCommand(target, action, m.MessageID, content)
	e.run(CompletionMutation.String(), func(ctx context.Context) *Completion {
		err := e.sender.Send(ctx, cmd)
		return &Completion{Kind: CompletionMutation, Ref: target, Action: action, Err: err}
	})
	return nil
}

func (e *Engine) onMutated(c *Completion) error {
	if c.Err != nil {
		e.sink.Notify(LevelDanger, fmt.Sprintf("Could not %s the message.", c.Action))
		return newNetworkError(c.Action.String(), c.Ref, c.Err)
	}
	return nil
}
