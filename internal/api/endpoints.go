package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/roach88/convsync/internal/model"
)

// MinSearchLength is the shortest query SearchUsers sends to the server.
const MinSearchLength = 2

// conversationPath renders the path segment of ref: "{peer}" or "group/{id}".
func conversationPath(ref model.ConversationRef) string {
	id := url.PathEscape(string(ref.ID))
	if ref.IsGroup() {
		return "group/" + id
	}
	return id
}

// CurrentUser fetches the signed-in user.
func (c *Client) CurrentUser(ctx context.Context) (model.User, error) {
	var u model.User
	if err := c.getJSON(ctx, "/users/me", &u); err != nil {
		return model.User{}, err
	}
	if u.ID.IsZero() {
		return model.User{}, fmt.Errorf("GET /users/me: response has no id")
	}
	return u, nil
}

type recentWire struct {
	ConversationID model.ID `json:"conversationId"`
	Name           string   `json:"name"`
	AvatarURL      string   `json:"avatarUrl"`
	UnreadCount    int      `json:"unreadCount"`
	IsGroup        bool     `json:"isGroup"`
}

// RecentConversations fetches the recent-chats list, most recent first.
func (c *Client) RecentConversations(ctx context.Context) ([]model.RecentEntry, error) {
	var rows []recentWire
	if err := c.getJSON(ctx, "/chats/recent", &rows); err != nil {
		return nil, err
	}

	entries := make([]model.RecentEntry, 0, len(rows))
	for _, row := range rows {
		if row.ConversationID.IsZero() {
			c.logger.Warn("recent entry without conversation id", "name", row.Name)
			continue
		}
		ref := model.Direct(row.ConversationID)
		if row.IsGroup {
			ref = model.Group(row.ConversationID)
		}
		entries = append(entries, model.RecentEntry{
			Conversation: model.Conversation{Ref: ref, Name: row.Name, AvatarURL: row.AvatarURL},
			UnreadCount:  max(row.UnreadCount, 0),
		})
	}
	return entries, nil
}

// Messages fetches the full history of ref in server order.
func (c *Client) Messages(ctx context.Context, ref model.ConversationRef) ([]model.Message, error) {
	path := "/messages/" + conversationPath(ref)

	req := request{method: fasthttp.MethodGet, path: path}
	var raw json.RawMessage
	if err := c.do(ctx, req, &raw); err != nil {
		return nil, err
	}
	events, err := model.DecodeMessages(raw)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}

	msgs := make([]model.Message, len(events))
	for i, ev := range events {
		msgs[i] = ev.Message(ref)
	}
	return msgs, nil
}

// MarkRead marks every message of ref as read. The call is idempotent.
func (c *Client) MarkRead(ctx context.Context, ref model.ConversationRef) error {
	return c.sendJSON(ctx, fasthttp.MethodPost, "/messages/"+conversationPath(ref)+"/read", nil, nil)
}

// ClearConversation deletes the history of ref.
func (c *Client) ClearConversation(ctx context.Context, ref model.ConversationRef) error {
	return c.sendJSON(ctx, fasthttp.MethodPost, "/chats/"+conversationPath(ref)+"/clear", nil, nil)
}

// EditMessage replaces the content of message id.
func (c *Client) EditMessage(ctx context.Context, id model.ID, content string) error {
	body := struct {
		Content string `json:"content"`
	}{content}
	return c.sendJSON(ctx, fasthttp.MethodPut, "/message/"+url.PathEscape(string(id)), body, nil)
}

// DeleteMessage deletes message id.
func (c *Client) DeleteMessage(ctx context.Context, id model.ID) error {
	return c.sendJSON(ctx, fasthttp.MethodDelete, "/message/"+url.PathEscape(string(id)), nil, nil)
}

// UploadFile posts one file as multipart field "file" and returns the
// server's reference to it.
func (c *Client) UploadFile(ctx context.Context, name, contentType string, data []byte) (model.Attachment, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("upload %s: %w", name, err)
	}
	if _, err := part.Write(data); err != nil {
		return model.Attachment{}, fmt.Errorf("upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return model.Attachment{}, fmt.Errorf("upload %s: %w", name, err)
	}

	var att model.Attachment
	req := request{
		method:      fasthttp.MethodPost,
		path:        "/upload",
		body:        buf.Bytes(),
		contentType: w.FormDataContentType(),
	}
	if err := c.do(ctx, req, &att); err != nil {
		return model.Attachment{}, err
	}
	if att.URL == "" {
		return model.Attachment{}, fmt.Errorf("POST /upload: response has no fileUrl")
	}
	return att, nil
}

// SearchUsers looks up users by name. Queries shorter than MinSearchLength
// return nil without a request.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]model.User, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinSearchLength {
		return nil, nil
	}
	var users []model.User
	req := request{method: fasthttp.MethodGet, path: "/users/search", query: map[string]string{"query": query}}
	if err := c.do(ctx, req, &users); err != nil {
		return nil, err
	}
	return users, nil
}
