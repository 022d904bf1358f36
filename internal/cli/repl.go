package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/roach88/convsync/internal/engine"
	"github.com/roach88/convsync/internal/model"
	"github.com/roach88/convsync/internal/upload"
)

// errQuit ends the REPL.
var errQuit = errors.New("quit")

// Host is the part of the engine the REPL drives.
type Host interface {
	OnActivate(conv model.Conversation) bool
	OnInteraction(kind engine.Interaction) bool
	OnUserSend(content string, files ...upload.File) bool
	OnEdit(id model.ID, content string) bool
	OnDelete(id model.ID) bool
	OnClear() bool
}

// UserSearcher looks up users by name. Implemented by api.Client.
type UserSearcher interface {
	SearchUsers(ctx context.Context, query string) ([]model.User, error)
}

// REPL reads commands from the terminal and turns them into engine events.
// Lines not starting with "/" are sent as messages, together with any files
// queued by /attach.
type REPL struct {
	host    Host
	term    *Terminal
	search  UserSearcher
	pending []upload.File
}

// NewREPL creates a REPL. search may be nil, which disables /search.
func NewREPL(host Host, term *Terminal, search UserSearcher) *REPL {
	return &REPL{host: host, term: term, search: search}
}

const replHelp = `Commands:
  /open <user-id> [name]    open a direct chat
  /group <group-id> [name]  open a group chat
  /recent                   list recent chats
  /scroll up|down [n]       scroll the active chat
  /attach <path>            queue a file for the next message
  /edit <message-id> <text> edit one of your messages
  /delete <message-id>      delete one of your messages
  /clear                    clear the active chat
  /search <name>            find users
  /quit                     exit
Anything else is sent to the active chat.`

// Run processes lines from r until EOF, /quit or ctx is done.
func (r *REPL) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.Exec(ctx, scanner.Text()); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			r.term.Printf("%v\n", err)
		}
	}
	return scanner.Err()
}

// Exec handles one input line.
func (r *REPL) Exec(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" && len(r.pending) == 0 {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		files := r.pending
		r.pending = nil
		r.host.OnUserSend(line, files...)
		return nil
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "help":
		r.term.Printf("%s\n", replHelp)

	case "open", "group":
		id, label, _ := strings.Cut(rest, " ")
		if id == "" {
			return fmt.Errorf("usage: /%s <id> [name]", name)
		}
		ref := model.Direct(model.ID(id))
		if name == "group" {
			ref = model.Group(model.ID(id))
		}
		r.host.OnActivate(model.Conversation{Ref: ref, Name: r.label(ref, strings.TrimSpace(label))})

	case "recent":
		r.term.PrintRecent()

	case "scroll":
		delta, err := parseScroll(rest)
		if err != nil {
			return err
		}
		r.term.Scroll(delta)
		r.host.OnInteraction(engine.InteractionScroll)

	case "attach":
		if rest == "" {
			return errors.New("usage: /attach <path>")
		}
		r.pending = append(r.pending, upload.File{Path: rest})
		r.term.Printf("attached %s (%d queued)\n", rest, len(r.pending))

	case "edit":
		id, text, _ := strings.Cut(rest, " ")
		if id == "" || strings.TrimSpace(text) == "" {
			return errors.New("usage: /edit <message-id> <text>")
		}
		r.host.OnEdit(model.ID(id), strings.TrimSpace(text))

	case "delete":
		if rest == "" {
			return errors.New("usage: /delete <message-id>")
		}
		r.host.OnDelete(model.ID(rest))

	case "clear":
		r.host.OnClear()

	case "search":
		return r.searchUsers(ctx, rest)

	case "quit", "exit":
		return errQuit

	default:
		return fmt.Errorf("unknown command /%s (try /help)", name)
	}
	return nil
}

// label falls back to the name the recent list knows for ref.
func (r *REPL) label(ref model.ConversationRef, name string) string {
	if name != "" {
		return name
	}
	for _, e := range r.term.Recent() {
		if e.Ref == ref {
			return e.Name
		}
	}
	return ""
}

func (r *REPL) searchUsers(ctx context.Context, query string) error {
	if r.search == nil {
		return errors.New("search is not available")
	}
	users, err := r.search.SearchUsers(ctx, query)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if len(users) == 0 {
		r.term.Printf("No users found.\n")
		return nil
	}
	for _, u := range users {
		r.term.Printf("%-8s %s\n", u.ID, u.Username)
	}
	return nil
}

func parseScroll(arg string) (int, error) {
	dir, count, _ := strings.Cut(arg, " ")
	n := DefaultPageSize / 2
	if count = strings.TrimSpace(count); count != "" {
		v, err := strconv.Atoi(count)
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("scroll count %q must be a positive number", count)
		}
		n = v
	}
	switch dir {
	case "up":
		return n, nil
	case "down", "":
		return -n, nil
	default:
		return 0, errors.New("usage: /scroll up|down [n]")
	}
}
