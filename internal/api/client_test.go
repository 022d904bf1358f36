package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/convsync/internal/model"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

type recorded struct {
	method string
	path   string
	query  string
	auth   string
	ctype  string
	body   []byte
}

type fakeServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []recorded
}

func newFakeServer(t *testing.T, routes map[string]http.HandlerFunc) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fs.mu.Lock()
		fs.requests = append(fs.requests, recorded{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			auth:   r.Header.Get("Authorization"),
			ctype:  r.Header.Get("Content-Type"),
			body:   body,
		})
		fs.mu.Unlock()

		h, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail": "Not Found"}`))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		h(w, r)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) last(t *testing.T) recorded {
	t.Helper()
	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.NotEmpty(t, fs.requests)
	return fs.requests[len(fs.requests)-1]
}

func jsonReply(v any) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
}

func noContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func newTestClient(t *testing.T, fs *fakeServer) *Client {
	t.Helper()
	c, err := New(fs.URL, staticToken("tok"))
	require.NoError(t, err)
	return c
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com", nil)
	assert.Error(t, err)
	_, err = New("://", nil)
	assert.Error(t, err)
}

func TestCurrentUser(t *testing.T) {
	fs := newFakeServer(t, map[string]http.HandlerFunc{
		"GET /users/me": jsonReply(map[string]any{"id": 1, "username": "alice", "email": "a@example.com"}),
	})
	c := newTestClient(t, fs)

	u, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.User{ID: "1", Username: "alice", Email: "a@example.com"}, u)
	assert.Equal(t, "Bearer tok", fs.last(t).auth)
}

func TestRecentConversations(t *testing.T) {
	fs := newFakeServer(t, map[string]http.HandlerFunc{
		"GET /chats/recent": jsonReply([]map[string]any{
			{"conversationId": 2, "name": "bob", "unreadCount": 3, "isGroup": false},
			{"conversationId": "7", "name": "team", "avatarUrl": "/t.png", "unreadCount": -1, "isGroup": true},
			{"name": "broken"},
		}),
	})
	c := newTestClient(t, fs)

	entries, err := c.RecentConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.Direct("2"), entries[0].Ref)
	assert.Equal(t, 3, entries[0].UnreadCount)
	assert.Equal(t, model.Group("7"), entries[1].Ref)
	assert.Equal(t, 0, entries[1].UnreadCount, "negative counts clamp to zero")
	assert.Equal(t, "/t.png", entries[1].AvatarURL)
}

func TestMessages(t *testing.T) {
	fs := newFakeServer(t, map[string]http.HandlerFunc{
		"GET /messages/2": jsonReply([]map[string]any{
			{"id": 10, "senderId": 2, "receiverId": 1, "username": "bob", "content": "hi", "timestamp": "2024-05-01T10:00:00", "isRead": true},
			{"id": 11, "senderId": 1, "receiverId": 2, "content": nil, "files": []map[string]any{{"fileUrl": "/f/a.png", "fileType": "image/png"}}, "timestamp": "2024-05-01T10:01:00"},
		}),
		"GET /messages/group/7": jsonReply([]any{}),
	})
	c := newTestClient(t, fs)

	msgs, err := c.Messages(context.Background(), model.Direct("2"))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.ID("10"), msgs[0].ID)
	assert.Equal(t, model.Direct("2"), msgs[0].Conversation)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), msgs[0].Timestamp)
	assert.True(t, msgs[0].IsRead)
	assert.False(t, msgs[1].HasText())
	assert.Equal(t, []model.Attachment{{URL: "/f/a.png", Kind: model.AttachmentImage}}, msgs[1].Attachments)

	msgs, err = c.Messages(context.Background(), model.Group("7"))
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMessages_RejectsUnknownAction(t *testing.T) {
	fs := newFakeServer(t, map[string]http.HandlerFunc{
		"GET /messages/2": jsonReply([]map[string]any{{"id": 1, "action": "react"}}),
	})
	_, err := newTestClient(t, fs).Messages(context.Background(), model.Direct("2"))
	var unknown *model.UnknownActionError
	assert.ErrorAs(t, err, &unknown)
}

func TestConversationScopedPosts(t *testing.T) {
	fs := newFakeServer(t, map[string]http.HandlerFunc{
		"POST /messages/2/read":       noContent,
		"POST /messages/group/7/read": noContent,
		"POST /chats/2/clear":         noContent,
		"POST /chats/group/7/clear":   jsonReply(map[string]any{"message": "cleared"}),
	})
	c := newTestClient(t, fs)
	ctx := context.Background()

	require.NoError(t, c.MarkRead(ctx, model.Direct("2")))
	require.NoError(t, c.MarkRead(ctx, model.Group("7")))
	assert.Equal(t, "/messages/group/7/read", fs.last(t).path)
	require.NoError(t, c.ClearConversation(ctx, model.Direct("2")))
	require.NoError(t, c.ClearConversation(ctx, model.Group("7")))
	assert.Equal(t, "/chats/group/7/clear", fs.last(t).path)
}

func TestEditAndDelete(t *testing.T) {
	fs := newFakeServer(t, map[string]http.HandlerFunc{
		"PUT /message/5":    noContent,
		"DELETE /message/5": noContent,
	})
	c := newTestClient(t, fs)

	require.NoError(t, c.EditMessage(context.Background(), "5", "new text"))
	req := fs.last(t)
	assert.Equal(t, "application/json", req.ctype)
	assert.JSONEq(t, `{"content": "new text"}`, string(req.body))

	require.NoError(t, c.DeleteMessage(context.Background(), "5"))
	assert.Equal(t, http.MethodDelete, fs.last(t).method)
}

func TestUploadFile(t *testing.T) {
	var gotName, gotType string
	var gotData []byte
	fs := newFakeServer(t, map[string]http.HandlerFunc{
		"POST /upload": func(w http.ResponseWriter, r *http.Request) {
			f, hdr, err := r.FormFile("file")
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			defer f.Close()
			gotName = hdr.Filename
			gotType = hdr.Header.Get("Content-Type")
			gotData, _ = io.ReadAll(f)
			jsonReply(map[string]any{"fileUrl": "/uploads/abc.png", "fileType": "image"})(w, r)
		},
	})
	c := newTestClient(t, fs)

	att, err := c.UploadFile(context.Background(), "cat.png", "image/png", []byte("PNGDATA"))
	require.NoError(t, err)
	assert.Equal(t, model.Attachment{URL: "/uploads/abc.png", Kind: model.AttachmentImage}, att)
	assert.Equal(t, "cat.png", gotName)
	assert.Equal(t, "image/png", gotType)
	assert.Equal(t, []byte("PNGDATA"), gotData)
}

func TestSearchUsers(t *testing.T) {
	fs := newFakeServer(t, map[string]http.HandlerFunc{
		"GET /users/search": jsonReply([]map[string]any{{"id": 3, "username": "carol"}}),
	})
	c := newTestClient(t, fs)

	users, err := c.SearchUsers(context.Background(), " c ")
	require.NoError(t, err)
	assert.Nil(t, users)
	fs.mu.Lock()
	assert.Empty(t, fs.requests, "short queries never reach the server")
	fs.mu.Unlock()

	users, err = c.SearchUsers(context.Background(), "ca rol")
	require.NoError(t, err)
	assert.Equal(t, []model.User{{ID: "3", Username: "carol"}}, users)
	assert.Equal(t, "query=ca+rol", fs.last(t).query)
}

func TestStatusErrors(t *testing.T) {
	fs := newFakeServer(t, map[string]http.HandlerFunc{
		"GET /users/me": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("boom"))
		},
	})
	c := newTestClient(t, fs)

	_, err := c.CurrentUser(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Equal(t, "boom", se.Detail)
	assert.False(t, IsUnauthorized(err))

	err = c.MarkRead(context.Background(), model.Direct("99"))
	assert.True(t, IsNotFound(err))
}

func TestCancelledContext(t *testing.T) {
	fs := newFakeServer(t, nil)
	c := newTestClient(t, fs)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.CurrentUser(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMissingTokenSource(t *testing.T) {
	fs := newFakeServer(t, nil)
	c, err := New(fs.URL, nil)
	require.NoError(t, err)
	_, err = c.CurrentUser(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}
