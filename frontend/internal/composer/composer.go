// Package composer sends text, attachments and voice notes into the open
// conversation, adding an optimistic pending entry before each send.
package composer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/wavoo-crm/crmchat/frontend/internal/conversation"
	"github.com/wavoo-crm/crmchat/frontend/internal/metrics"
	"github.com/wavoo-crm/crmchat/shared/api"
	"github.com/wavoo-crm/crmchat/shared/domain"
	internal_errors "github.com/wavoo-crm/crmchat/shared/errors"
	"github.com/wavoo-crm/crmchat/shared/logger"
	"github.com/wavoo-crm/crmchat/shared/validation"
)

const recordingMimeType = "audio/webm"

// MessageAPI is the REST surface the composer needs.
type MessageAPI interface {
	SendMessage(ctx context.Context, req api.SendMessageRequest) (*domain.Message, error)
	UploadFile(ctx context.Context, file *domain.PendingFile) (*api.UploadResponse, error)
	DeleteMessage(ctx context.Context, id domain.ID, forEveryone bool) error
}

// Store is the part of the conversation store the composer writes to.
type Store interface {
	ContactID() domain.ID
	AddPending(body string, kind domain.Kind, meta domain.MessageMeta) (domain.Message, error)
	Confirm(tempID domain.ID, confirmed domain.Message) conversation.Outcome
	MarkDeleted(id domain.ID, forEveryone bool) bool
}

type Composer struct {
	store          Store
	api            MessageAPI
	mic            Microphone
	maxUploadBytes int64
	log            *slog.Logger
	now            func() time.Time

	mu        sync.Mutex
	sending   bool
	preview   *domain.PendingFile
	recording Recording
	recStart  time.Time
}

// New creates a composer. mic may be nil, in which case recording reports
// ErrMicrophoneUnavailable.
func New(store Store, messages MessageAPI, mic Microphone, maxUploadBytes int64) *Composer {
	return &Composer{
		store:          store,
		api:            messages,
		mic:            mic,
		maxUploadBytes: maxUploadBytes,
		log:            logger.Component("composer"),
		now:            time.Now,
	}
}

// SendText sends a text message. Empty input is rejected before anything
// happens, and only one text send may be in flight at a time. On a failed
// request the pending entry stays in the list and the error is returned.
func (c *Composer) SendText(ctx context.Context, body string) (domain.Message, error) {
	if strings.TrimSpace(body) == "" {
		return domain.Message{}, internal_errors.ErrEmptyBody
	}

	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return domain.Message{}, internal_errors.ErrSendInFlight
	}
	c.sending = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.sending = false
		c.mu.Unlock()
	}()

	pending, err := c.store.AddPending(body, domain.KindText, domain.MessageMeta{})
	if err != nil {
		return domain.Message{}, err
	}
	return c.send(ctx, pending)
}

func (c *Composer) send(ctx context.Context, pending domain.Message) (domain.Message, error) {
	req := api.SendMessageRequest{
		ContactID: pending.ContactID,
		Type:      pending.Type,
		Body:      pending.Body,
		Meta:      pending.Meta,
	}
	created, err := c.api.SendMessage(ctx, req)
	metrics.SendsTotal.WithLabelValues(string(pending.Type), metrics.Result(err)).Inc()
	if err != nil {
		c.log.Warn("send failed, message left pending",
			"contact_id", pending.ContactID,
			"temp_id", pending.ID,
			"error", err)
		return pending, err
	}
	if created == nil {
		return pending, nil
	}
	c.store.Confirm(pending.ID, *created)
	return *created, nil
}

// Attach stages a file for sending. The MIME type is detected when unset.
func (c *Composer) Attach(file *domain.PendingFile) error {
	if file == nil {
		return internal_errors.ErrNoAttachment
	}
	if file.MimeType == "" {
		file.MimeType = validation.DetectMimeType(file.FileName, file.Data)
	}
	c.mu.Lock()
	c.preview = file
	c.mu.Unlock()
	return nil
}

// AttachPath reads a file from disk and stages it.
func (c *Composer) AttachPath(path string) error {
	file, err := domain.ReadPendingFile(path)
	if err != nil {
		return err
	}
	return c.Attach(file)
}

// Preview returns the staged file, if any.
func (c *Composer) Preview() *domain.PendingFile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preview
}

func (c *Composer) DiscardPreview() {
	c.mu.Lock()
	c.preview = nil
	c.mu.Unlock()
}

// SendAttachment uploads the staged file and sends it with caption as body.
// The preview is cleared first, so a failed upload discards the selection;
// no pending entry exists until the upload succeeds.
func (c *Composer) SendAttachment(ctx context.Context, caption string) (domain.Message, error) {
	c.mu.Lock()
	file := c.preview
	c.preview = nil
	c.mu.Unlock()

	if file == nil {
		return domain.Message{}, internal_errors.ErrNoAttachment
	}
	return c.sendFile(ctx, file, caption)
}

func (c *Composer) sendFile(ctx context.Context, file *domain.PendingFile, caption string) (domain.Message, error) {
	if c.store.ContactID() == "" {
		return domain.Message{}, internal_errors.ErrNoConversation
	}
	if err := validation.PrepareUpload(file, c.maxUploadBytes); err != nil {
		metrics.UploadsTotal.WithLabelValues(metrics.Result(err)).Inc()
		return domain.Message{}, fmt.Errorf("%w: %w", internal_errors.ErrUploadFailed, err)
	}

	uploaded, err := c.api.UploadFile(ctx, file)
	metrics.UploadsTotal.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		c.log.Warn("upload failed", "file_name", file.FileName, "size", file.Size(), "error", err)
		return domain.Message{}, fmt.Errorf("%w: %w", internal_errors.ErrUploadFailed, err)
	}

	meta := uploaded.Meta()
	if meta.MediaType == "" {
		meta.MediaType = file.MimeType
	}
	if meta.FileName == "" {
		meta.FileName = file.FileName
	}

	pending, err := c.store.AddPending(caption, domain.KindFromMIME(meta.MediaType), meta)
	if err != nil {
		return domain.Message{}, err
	}
	return c.send(ctx, pending)
}

// StartRecording opens the microphone and starts buffering audio.
func (c *Composer) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recording != nil {
		return internal_errors.ErrAlreadyRecording
	}
	if c.mic == nil {
		return internal_errors.ErrMicrophoneUnavailable
	}
	rec, err := c.mic.Open(ctx)
	if err != nil {
		c.log.Warn("microphone unavailable", "error", err)
		return fmt.Errorf("%w: %w", internal_errors.ErrMicrophoneUnavailable, err)
	}
	c.recording = rec
	c.recStart = c.now()
	return nil
}

// StopRecording ends the capture and sends the clip as an audio attachment.
func (c *Composer) StopRecording(ctx context.Context) (domain.Message, error) {
	c.mu.Lock()
	rec := c.recording
	c.recording = nil
	c.mu.Unlock()

	if rec == nil {
		return domain.Message{}, internal_errors.ErrNotRecording
	}
	data, err := rec.Stop()
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to finish recording: %w", err)
	}

	file := &domain.PendingFile{
		FileName: fmt.Sprintf("recording-%d.webm", c.now().UnixMilli()),
		MimeType: recordingMimeType,
		Data:     data,
	}
	return c.sendFile(ctx, file, "")
}

// CancelRecording drops the buffered audio. It is a no-op when idle.
func (c *Composer) CancelRecording() {
	c.mu.Lock()
	rec := c.recording
	c.recording = nil
	c.recStart = time.Time{}
	c.mu.Unlock()

	if rec != nil {
		rec.Cancel()
	}
}

// RecordingElapsed reports how long the current recording has been running.
func (c *Composer) RecordingElapsed() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recording == nil {
		return 0, false
	}
	return c.now().Sub(c.recStart), true
}

// Delete removes a confirmed message on the server and marks it deleted
// locally.
func (c *Composer) Delete(ctx context.Context, id domain.ID, forEveryone bool) error {
	if strings.HasPrefix(id.String(), domain.TempIDPrefix) {
		return fmt.Errorf("%w: message %s is not confirmed yet", validation.ErrInvalidRequest, id)
	}
	if err := c.api.DeleteMessage(ctx, id, forEveryone); err != nil {
		return err
	}
	c.store.MarkDeleted(id, forEveryone)
	return nil
}
