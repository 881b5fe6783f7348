package repo

import (
	"context"
	"database/sql"

	"taskflow/internal/domain"
)

const attachmentCols = `id,task_id,original_name,stored_name,content_type,size,uploaded_by,uploaded_at`

func (r Repo) InsertAttachment(ctx context.Context, tx *sql.Tx, a domain.Attachment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO attachments(id,task_id,original_name,stored_name,content_type,size,uploaded_by,uploaded_at) VALUES (?,?,?,?,?,?,?,?)`,
		a.ID, a.TaskID, a.OriginalName, a.StoredName, a.ContentType, a.Size, a.UploadedBy, a.UploadedAt)
	return err
}

func (r Repo) GetAttachment(ctx context.Context, id string) (domain.Attachment, error) {
	var a domain.Attachment
	err := r.DB.QueryRowContext(ctx, `SELECT `+attachmentCols+` FROM attachments WHERE id=?`, id).
		Scan(&a.ID, &a.TaskID, &a.OriginalName, &a.StoredName, &a.ContentType, &a.Size, &a.UploadedBy, &a.UploadedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) ListAttachments(ctx context.Context, taskID string) ([]domain.Attachment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+attachmentCols+` FROM attachments WHERE task_id=? ORDER BY uploaded_at ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		if err := rows.Scan(&a.ID, &a.TaskID, &a.OriginalName, &a.StoredName, &a.ContentType, &a.Size, &a.UploadedBy, &a.UploadedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) DeleteAttachment(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM attachments WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
