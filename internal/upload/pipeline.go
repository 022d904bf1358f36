// Package upload turns local files into server attachments.
//
// Files of one message are uploaded strictly one after another, in the order
// given. The first failure aborts the batch: later files are not attempted
// and the message is not sent.
//
// Files that reached the server but whose message was never sent are
// recorded in an OrphanLedger keyed by the SHA-256 of their content. A later
// upload of the same bytes within the orphan TTL reuses the stored file
// instead of uploading it again.
package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"

	"github.com/roach88/convsync/internal/model"
)

// DefaultOrphanTTL is how long an orphaned upload stays reusable.
const DefaultOrphanTTL = 24 * time.Hour

var (
	// ErrTooLarge is returned for files above the configured size limit.
	ErrTooLarge = errors.New("file too large")

	// ErrEmptyFile is returned for zero-byte files.
	ErrEmptyFile = errors.New("file is empty")
)

// File is a local file selected for upload. Data takes precedence over Path.
type File struct {
	Name string
	Path string
	Data []byte
}

func (f File) name() string {
	if f.Name != "" {
		return f.Name
	}
	return filepath.Base(f.Path)
}

func (f File) read() ([]byte, error) {
	if f.Data != nil {
		return f.Data, nil
	}
	if f.Path == "" {
		return nil, ErrEmptyFile
	}
	return os.ReadFile(f.Path)
}

// Uploader stores one file on the server. Implemented by api.Client.
type Uploader interface {
	UploadFile(ctx context.Context, name, contentType string, data []byte) (model.Attachment, error)
}

// Item is one uploaded file of a batch.
type Item struct {
	Name       string
	Digest     string
	Attachment model.Attachment
	Reused     bool
}

// Batch is the ordered result of uploading the files of one message.
type Batch struct {
	Items []Item
}

// Attachments returns the attachments in upload order, or nil for an empty
// batch.
func (b Batch) Attachments() []model.Attachment {
	if len(b.Items) == 0 {
		return nil
	}
	out := make([]model.Attachment, len(b.Items))
	for i, it := range b.Items {
		out[i] = it.Attachment
	}
	return out
}

// FileError reports which file of a batch failed.
type FileError struct {
	Index int
	Name  string
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file %d (%s): %v", e.Index+1, e.Name, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Pipeline uploads attachment batches.
type Pipeline struct {
	uploader Uploader
	orphans  OrphanLedger
	maxSize  uint64
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithOrphanLedger enables recording and reuse of orphaned uploads.
func WithOrphanLedger(l OrphanLedger) Option {
	return func(p *Pipeline) { p.orphans = l }
}

// WithMaxSize rejects files larger than n bytes. Zero means no limit.
func WithMaxSize(n uint64) Option {
	return func(p *Pipeline) { p.maxSize = n }
}

// WithOrphanTTL sets how long orphans stay reusable.
func WithOrphanTTL(d time.Duration) Option {
	return func(p *Pipeline) { p.ttl = d }
}

// WithNow sets the time source.
func WithNow(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a pipeline that uploads through u.
func New(u Uploader, opts ...Option) *Pipeline {
	p := &Pipeline{
		uploader: u,
		ttl:      DefaultOrphanTTL,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Upload uploads files in order. On the first failure the files uploaded so
// far are recorded as orphans and a *FileError is returned.
func (p *Pipeline) Upload(ctx context.Context, files []File) (Batch, error) {
	var batch Batch
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			p.Abandon(ctx, batch)
			return Batch{}, &FileError{Index: i, Name: f.name(), Err: err}
		}

		item, err := p.uploadOne(ctx, f)
		if err != nil {
			p.logger.Warn("upload aborted",
				"file", f.name(),
				"index", i,
				"uploaded", len(batch.Items),
				"remaining", len(files)-i-1,
				"error", err,
			)
			p.Abandon(ctx, batch)
			return Batch{}, &FileError{Index: i, Name: f.name(), Err: err}
		}
		batch.Items = append(batch.Items, item)
	}
	return batch, nil
}

func (p *Pipeline) uploadOne(ctx context.Context, f File) (Item, error) {
	data, err := f.read()
	if err != nil {
		return Item{}, err
	}
	if len(data) == 0 {
		return Item{}, ErrEmptyFile
	}
	if p.maxSize > 0 && uint64(len(data)) > p.maxSize {
		return Item{}, fmt.Errorf("%w: %s exceeds %s", ErrTooLarge,
			humanize.IBytes(uint64(len(data))), humanize.IBytes(p.maxSize))
	}

	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	name := f.name()

	if p.orphans != nil {
		orphan, ok, err := p.orphans.ClaimOrphan(ctx, digest, p.now().Add(-p.ttl))
		if err != nil {
			p.logger.Warn("orphan lookup failed", "file", name, "error", err)
		} else if ok {
			p.logger.Debug("reusing orphaned upload", "file", name, "url", orphan.Attachment.URL)
			return Item{Name: name, Digest: digest, Attachment: orphan.Attachment, Reused: true}, nil
		}
	}

	mtype := mimetype.Detect(data)
	att, err := p.uploader.UploadFile(ctx, name, mtype.String(), data)
	if err != nil {
		return Item{}, err
	}
	if att.Kind == "" {
		att.Kind = model.ParseAttachmentKind(mtype.String())
	} else {
		att.Kind = model.ParseAttachmentKind(string(att.Kind))
	}
	p.logger.Debug("file uploaded", "file", name, "size", humanize.IBytes(uint64(len(data))), "kind", att.Kind)
	return Item{Name: name, Digest: digest, Attachment: att}, nil
}

// Abandon records the items of a batch whose message was never sent.
func (p *Pipeline) Abandon(ctx context.Context, batch Batch) {
	if p.orphans == nil || len(batch.Items) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	now := p.now()
	for _, it := range batch.Items {
		o := Orphan{Digest: it.Digest, Name: it.Name, Attachment: it.Attachment, RecordedAt: now}
		if err := p.orphans.RecordOrphan(ctx, o); err != nil {
			p.logger.Warn("record orphan failed", "file", it.Name, "error", err)
		}
	}
}
