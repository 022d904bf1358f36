package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePushEvent_MissingActionIsCreate(t *testing.T) {
	ev, err := DecodePushEvent([]byte(`{"id": 7, "senderId": 2, "receiverId": 1, "content": "hi", "timestamp": "2024-03-01T10:00:00.123456"}`))
	require.NoError(t, err)

	assert.Equal(t, ActionCreate, ev.Action)
	assert.Equal(t, ID("7"), ev.ID)
	assert.Equal(t, ID("2"), ev.SenderID)
	assert.Equal(t, "hi", ev.Text())
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 123456000, time.UTC), ev.Timestamp.Time)
}

func TestDecodePushEvent_NullActionIsCreate(t *testing.T) {
	ev, err := DecodePushEvent([]byte(`{"action": null, "id": "a", "senderId": "u"}`))
	require.NoError(t, err)
	assert.Equal(t, ActionCreate, ev.Action)
}

func TestDecodePushEvent_EditAndDelete(t *testing.T) {
	edit, err := DecodePushEvent([]byte(`{"action": "edit", "messageId": 9, "senderId": 2, "content": ""}`))
	require.NoError(t, err)
	assert.Equal(t, ActionEdit, edit.Action)
	assert.Equal(t, ID("9"), edit.TargetID())
	assert.Equal(t, "", edit.Text())
	require.NoError(t, edit.Validate())

	del, err := DecodePushEvent([]byte(`{"action": "delete", "id": 9, "senderId": 2}`))
	require.NoError(t, err)
	assert.Equal(t, ActionDelete, del.Action)
	assert.Equal(t, ID("9"), del.TargetID())
}

func TestDecodePushEvent_UnknownAction(t *testing.T) {
	_, err := DecodePushEvent([]byte(`{"action": "react", "id": 1}`))
	require.Error(t, err)

	var unknown *UnknownActionError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "react", unknown.Tag)
}

func TestDecodePushEvent_Malformed(t *testing.T) {
	_, err := DecodePushEvent([]byte(`{"id": `))
	assert.Error(t, err)

	_, err = DecodePushEvent([]byte(`{"id": 1.5}`))
	assert.Error(t, err)
}

func TestPushEvent_Validate(t *testing.T) {
	tests := []struct {
		name    string
		event   PushEvent
		wantErr error
	}{
		{"create ok", PushEvent{Action: ActionCreate, SenderID: "1"}, nil},
		{"create without sender", PushEvent{Action: ActionCreate}, ErrMissingSender},
		{"edit without id", PushEvent{Action: ActionEdit, SenderID: "1"}, ErrMissingMessageID},
		{"delete without id", PushEvent{Action: ActionDelete, SenderID: "1"}, ErrMissingMessageID},
		{"delete by messageId", PushEvent{Action: ActionDelete, MessageID: "4"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPushEvent_Conversation(t *testing.T) {
	me := ID("1")

	incoming := PushEvent{SenderID: "2", ReceiverID: "1"}
	assert.Equal(t, Direct("2"), incoming.Conversation(me))

	echo := PushEvent{SenderID: "1", ReceiverID: "2"}
	assert.Equal(t, Direct("2"), echo.Conversation(me))

	group := PushEvent{SenderID: "2", GroupID: "7"}
	assert.Equal(t, Group("7"), group.Conversation(me))
}

func TestPushEvent_MessageNormalizesAttachmentKinds(t *testing.T) {
	ev, err := DecodePushEvent([]byte(`{
		"id": 3, "senderId": 2, "content": null,
		"files": [{"fileUrl": "/u/a.png", "fileType": "image/png"}, {"fileUrl": "/u/b.zip", "fileType": "application/zip"}]
	}`))
	require.NoError(t, err)

	msg := ev.Message(Direct("2"))
	assert.False(t, msg.HasText())
	require.Len(t, msg.Attachments, 2)
	assert.Equal(t, AttachmentImage, msg.Attachments[0].Kind)
	assert.Equal(t, AttachmentFile, msg.Attachments[1].Kind)
}

func TestDecodeMessages(t *testing.T) {
	events, err := DecodeMessages([]byte(`[{"id": 1, "senderId": 2}, {"id": "2", "senderId": 1, "action": "create"}]`))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ActionCreate, events[0].Action)
	assert.Equal(t, ID("2"), events[1].ID)
}

func TestSendCommand_JSONShape(t *testing.T) {
	receiver, group := Target(Direct("5"))
	cmd := SendCommand{ReceiverID: receiver, GroupID: group}

	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	assert.JSONEq(t, `{"content": null, "receiverId": 5, "groupId": null, "files": null}`, string(data))

	text := "hello"
	receiver, group = Target(Group("g-1"))
	cmd = SendCommand{Content: &text, ReceiverID: receiver, GroupID: group, Files: []Attachment{{URL: "/u/x", Kind: AttachmentVideo}}}
	data, err = json.Marshal(cmd)
	require.NoError(t, err)
	assert.JSONEq(t, `{"content": "hello", "receiverId": null, "groupId": "g-1", "files": [{"fileUrl": "/u/x", "fileType": "video"}]}`, string(data))
}

func TestID_MarshalJSON(t *testing.T) {
	tests := []struct {
		id   ID
		want string
	}{
		{"5", `5`},
		{"-3", `-3`},
		{"007", `"007"`},
		{"+5", `"+5"`},
		{"00", `"00"`},
		{"g-1", `"g-1"`},
		{"", `null`},
	}
	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			data, err := json.Marshal(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}
}

func TestSendCommand_PaddedReceiverStaysString(t *testing.T) {
	receiver, group := Target(Direct("007"))
	data, err := json.Marshal(SendCommand{ReceiverID: receiver, GroupID: group})
	require.NoError(t, err)
	assert.JSONEq(t, `{"content": null, "receiverId": "007", "groupId": null, "files": null}`, string(data))
}

func TestMutationCommand_JSONShape(t *testing.T) {
	receiver, group := Target(Direct("5"))
	data, err := json.Marshal(MutationCommand{Action: ActionDelete, MessageID: "12", ReceiverID: receiver, GroupID: group})
	require.NoError(t, err)
	assert.JSONEq(t, `{"action": "delete", "messageId": 12, "receiverId": 5, "groupId": null}`, string(data))

	empty := ""
	data, err = json.Marshal(MutationCommand{Action: ActionEdit, MessageID: "12", ReceiverID: receiver, Content: &empty})
	require.NoError(t, err)
	assert.JSONEq(t, `{"action": "edit", "messageId": 12, "receiverId": 5, "groupId": null, "content": ""}`, string(data))
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-02T03:04:05Z", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"2024-01-02T05:04:05+02:00", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"2024-01-02T03:04:05.5", time.Date(2024, 1, 2, 3, 4, 5, 500000000, time.UTC)},
		{"2024-01-02T03:04:05", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), "%s: got %s", tt.in, got)
	}

	_, err := ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestParseConversationKey(t *testing.T) {
	ref, err := ParseConversationKey("group:42")
	require.NoError(t, err)
	assert.Equal(t, Group("42"), ref)
	assert.Equal(t, "group:42", ref.Key())

	_, err = ParseConversationKey("channel:1")
	assert.Error(t, err)
	_, err = ParseConversationKey("direct:")
	assert.Error(t, err)
}
