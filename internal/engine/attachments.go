package engine

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"taskflow/internal/domain"
	"taskflow/internal/events"
)

// UploadAttachment validates and stores a file against a task. The blob
// is written before the row; a failed commit removes the blob again so
// the store never holds content without a matching record.
func (e Engine) UploadAttachment(ctx context.Context, actor domain.Actor, taskID, filename, contentType string, size int64, r io.Reader) (domain.Attachment, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Attachment{}, err
	}
	if err := e.validateUpload(filename, contentType, size); err != nil {
		return domain.Attachment{}, err
	}
	ext := strings.ToLower(filepath.Ext(filename))
	a := domain.Attachment{
		ID:           uuid.NewString(),
		TaskID:       t.ID,
		OriginalName: filename,
		StoredName:   uuid.NewString() + ext,
		ContentType:  contentType,
		UploadedBy:   actor.ID,
		UploadedAt:   e.timestamp(),
	}

	// Cap the reader too; the declared size is caller input.
	limit := e.Config.Uploads.MaxSizeBytes
	written, err := e.Storage.Save(ctx, a.StorageKey(), io.LimitReader(r, limit+1))
	if err != nil {
		return domain.Attachment{}, err
	}
	if written > limit {
		e.Storage.Delete(ctx, a.StorageKey())
		return domain.Attachment{}, ValidationError{Reason: fmt.Sprintf("file exceeds %d bytes", limit)}
	}
	a.Size = written

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		e.Storage.Delete(ctx, a.StorageKey())
		return domain.Attachment{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertAttachment(ctx, tx, a); err != nil {
		e.Storage.Delete(ctx, a.StorageKey())
		return domain.Attachment{}, err
	}
	if err := e.audit().Append(ctx, tx, events.AttachmentAdded, t.ProjectID, "attachment", a.ID, actor.ID, events.EventPayload{
		"task_id": t.ID,
		"name":    a.OriginalName,
		"size":    a.Size,
	}); err != nil {
		e.Storage.Delete(ctx, a.StorageKey())
		return domain.Attachment{}, err
	}
	if err := tx.Commit(); err != nil {
		e.Storage.Delete(ctx, a.StorageKey())
		return domain.Attachment{}, err
	}
	return a, nil
}

func (e Engine) validateUpload(filename, contentType string, size int64) error {
	if strings.TrimSpace(filename) == "" {
		return ValidationError{Reason: "filename is required"}
	}
	limit := e.Config.Uploads.MaxSizeBytes
	if size > limit {
		return ValidationError{Reason: fmt.Sprintf("file exceeds %d bytes", limit)}
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !contains(e.Config.Uploads.AllowedExtensions, ext) {
		return ValidationError{Reason: "file extension " + ext + " not allowed"}
	}
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if !contains(e.Config.Uploads.AllowedContentTypes, mediaType) {
		return ValidationError{Reason: "content type " + mediaType + " not allowed"}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

func (e Engine) ListAttachments(ctx context.Context, taskID string) ([]domain.Attachment, error) {
	if _, err := e.Repo.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return e.Repo.ListAttachments(ctx, taskID)
}

// OpenAttachment returns the attachment record and a reader over its
// content. The caller closes the reader.
func (e Engine) OpenAttachment(ctx context.Context, id string) (domain.Attachment, io.ReadCloser, error) {
	a, err := e.Repo.GetAttachment(ctx, id)
	if err != nil {
		return domain.Attachment{}, nil, err
	}
	rc, err := e.Storage.Open(ctx, a.StorageKey())
	if err != nil {
		return domain.Attachment{}, nil, err
	}
	return a, rc, nil
}

// DeleteAttachment removes the row first, then the blob. A blob left
// behind by a failed delete is unreachable and harmless.
func (e Engine) DeleteAttachment(ctx context.Context, actor domain.Actor, id string) error {
	a, err := e.Repo.GetAttachment(ctx, id)
	if err != nil {
		return err
	}
	t, err := e.Repo.GetTask(ctx, a.TaskID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteAttachment(ctx, tx, id); err != nil {
		return err
	}
	if err := e.audit().Append(ctx, tx, events.AttachmentDeleted, t.ProjectID, "attachment", a.ID, actor.ID, nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.Storage.Delete(ctx, a.StorageKey())
	return nil
}
