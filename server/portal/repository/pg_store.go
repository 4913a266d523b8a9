package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"portal_server/server/portal/domain"
)

const pgUniqueViolation = "23505"

type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PGStore) Close() {
	s.pool.Close()
}

func (s *PGStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct {
	tx pgx.Tx
}

type rowScanner interface {
	Scan(dest ...any) error
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.ConstraintName)
	}
	return err
}

func expectOne(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

func collect[T any](rows pgx.Rows, scan func(rowScanner) (T, error)) ([]T, error) {
	defer rows.Close()
	items := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// clients

const clientColumns = `client_id, name, email, language, tech_level, timezone, created_at, updated_at`

func scanClient(row rowScanner) (domain.Client, error) {
	var c domain.Client
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Language, &c.TechLevel, &c.Timezone, &c.CreatedAt, &c.UpdatedAt)
	return c, mapErr(err)
}

func (t *pgTx) InsertClient(ctx context.Context, c domain.Client) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO clients(client_id, name, email, language, tech_level, timezone, created_at, updated_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.ID, c.Name, c.Email, c.Language, c.TechLevel, c.Timezone, c.CreatedAt, c.UpdatedAt)
	return mapErr(err)
}

func (t *pgTx) GetClient(ctx context.Context, id string) (domain.Client, error) {
	return scanClient(t.tx.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE client_id=$1`, id))
}

func (t *pgTx) FindClientByName(ctx context.Context, name string) (domain.Client, error) {
	return scanClient(t.tx.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE name=$1`, name))
}

func (t *pgTx) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanClient)
}

func (t *pgTx) UpdateClient(ctx context.Context, c domain.Client) error {
	return expectOne(t.tx.Exec(ctx, `
		UPDATE clients SET name=$2, email=$3, language=$4, tech_level=$5, timezone=$6, updated_at=$7
		WHERE client_id=$1
	`, c.ID, c.Name, c.Email, c.Language, c.TechLevel, c.Timezone, c.UpdatedAt))
}

// projects

const projectColumns = `project_id, client_id, name, description, project_type, status, priority, icon, color, deadline, is_archived, created_at, updated_at`

func scanProject(row rowScanner) (domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.ClientID, &p.Name, &p.Description, &p.Type, &p.Status, &p.Priority, &p.Icon, &p.Color, &p.Deadline, &p.IsArchived, &p.CreatedAt, &p.UpdatedAt)
	return p, mapErr(err)
}

func (t *pgTx) InsertProject(ctx context.Context, p domain.Project) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO projects(`+projectColumns+`)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, p.ID, p.ClientID, p.Name, p.Description, string(p.Type), string(p.Status), string(p.Priority), p.Icon, p.Color, p.Deadline, p.IsArchived, p.CreatedAt, p.UpdatedAt)
	return mapErr(err)
}

func (t *pgTx) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return scanProject(t.tx.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE project_id=$1`, id))
}

func (t *pgTx) ListProjects(ctx context.Context, includeArchived bool) ([]domain.Project, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE $1 OR NOT is_archived
		ORDER BY updated_at DESC, project_id DESC
	`, includeArchived)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanProject)
}

func (t *pgTx) UpdateProject(ctx context.Context, p domain.Project) error {
	return expectOne(t.tx.Exec(ctx, `
		UPDATE projects
		SET name=$2, description=$3, project_type=$4, status=$5, priority=$6, icon=$7, color=$8,
		    deadline=$9, is_archived=$10, updated_at=$11
		WHERE project_id=$1
	`, p.ID, p.Name, p.Description, string(p.Type), string(p.Status), string(p.Priority), p.Icon, p.Color, p.Deadline, p.IsArchived, p.UpdatedAt))
}

func (t *pgTx) DeleteProject(ctx context.Context, id string) error {
	return expectOne(t.tx.Exec(ctx, `DELETE FROM projects WHERE project_id=$1`, id))
}

// threads

const threadColumns = `thread_id, project_id, title, status, priority, created_by, is_archived, last_activity, unread_count_client, unread_count_developer, created_at`

func scanThread(row rowScanner) (domain.Thread, error) {
	var th domain.Thread
	err := row.Scan(&th.ID, &th.ProjectID, &th.Title, &th.Status, &th.Priority, &th.CreatedBy, &th.IsArchived, &th.LastActivity, &th.UnreadCountClient, &th.UnreadCountDeveloper, &th.CreatedAt)
	return th, mapErr(err)
}

func (t *pgTx) InsertThread(ctx context.Context, th domain.Thread) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO threads(`+threadColumns+`)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, th.ID, th.ProjectID, th.Title, string(th.Status), string(th.Priority), string(th.CreatedBy), th.IsArchived, th.LastActivity, th.UnreadCountClient, th.UnreadCountDeveloper, th.CreatedAt)
	return mapErr(err)
}

func (t *pgTx) GetThread(ctx context.Context, id string) (domain.Thread, error) {
	return scanThread(t.tx.QueryRow(ctx, `SELECT `+threadColumns+` FROM threads WHERE thread_id=$1`, id))
}

func (t *pgTx) LockThread(ctx context.Context, id string) (domain.Thread, error) {
	return scanThread(t.tx.QueryRow(ctx, `SELECT `+threadColumns+` FROM threads WHERE thread_id=$1 FOR UPDATE`, id))
}

func (t *pgTx) ListThreads(ctx context.Context, filter ThreadFilter) ([]domain.Thread, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+threadColumns+`
		FROM threads
		WHERE ($1 = '' OR project_id = $1)
		  AND ($2 OR NOT is_archived)
		ORDER BY last_activity DESC, thread_id DESC
	`, filter.ProjectID, filter.IncludeArchived)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanThread)
}

func (t *pgTx) UpdateThread(ctx context.Context, th domain.Thread) error {
	return expectOne(t.tx.Exec(ctx, `
		UPDATE threads
		SET title=$2, status=$3, priority=$4, is_archived=$5, last_activity=$6,
		    unread_count_client=$7, unread_count_developer=$8
		WHERE thread_id=$1
	`, th.ID, th.Title, string(th.Status), string(th.Priority), th.IsArchived, th.LastActivity, th.UnreadCountClient, th.UnreadCountDeveloper))
}

func (t *pgTx) DeleteThread(ctx context.Context, id string) error {
	return expectOne(t.tx.Exec(ctx, `DELETE FROM threads WHERE thread_id=$1`, id))
}

func (t *pgTx) SumUnread(ctx context.Context, role domain.Role) (int64, error) {
	column := "unread_count_developer"
	if role == domain.RoleClient {
		column = "unread_count_client"
	}
	var total int64
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(`+column+`), 0)::BIGINT FROM threads WHERE NOT is_archived`).Scan(&total)
	return total, mapErr(err)
}

// messages

const messageColumns = `message_id, thread_id, author, content, message_type, is_private, is_edited, edited_at, is_deleted, deleted_at,
	original_content, original_language, translated_content, target_language, translation_enabled,
	file_id, file_name, file_type, file_size, file_url, created_at`

func scanMessage(row rowScanner) (domain.Message, error) {
	var m domain.Message
	err := row.Scan(
		&m.ID, &m.ThreadID, &m.Author, &m.Content, &m.Type, &m.IsPrivate, &m.IsEdited, &m.EditedAt, &m.IsDeleted, &m.DeletedAt,
		&m.OriginalContent, &m.OriginalLanguage, &m.TranslatedContent, &m.TargetLanguage, &m.TranslationEnabled,
		&m.FileID, &m.FileName, &m.FileType, &m.FileSize, &m.FileURL, &m.CreatedAt,
	)
	return m, mapErr(err)
}

func (t *pgTx) InsertMessage(ctx context.Context, m domain.Message) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO messages(`+messageColumns+`)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`,
		m.ID, m.ThreadID, string(m.Author), m.Content, string(m.Type), m.IsPrivate, m.IsEdited, m.EditedAt, m.IsDeleted, m.DeletedAt,
		m.OriginalContent, m.OriginalLanguage, m.TranslatedContent, m.TargetLanguage, m.TranslationEnabled,
		m.FileID, m.FileName, m.FileType, m.FileSize, m.FileURL, m.CreatedAt,
	)
	return mapErr(err)
}

func (t *pgTx) GetMessage(ctx context.Context, id string) (domain.Message, error) {
	return scanMessage(t.tx.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE message_id=$1`, id))
}

func (t *pgTx) UpdateMessage(ctx context.Context, m domain.Message) error {
	return expectOne(t.tx.Exec(ctx, `
		UPDATE messages
		SET content=$2, is_edited=$3, edited_at=$4, is_deleted=$5, deleted_at=$6, translated_content=$7, translation_enabled=$8
		WHERE message_id=$1
	`, m.ID, m.Content, m.IsEdited, m.EditedAt, m.IsDeleted, m.DeletedAt, m.TranslatedContent, m.TranslationEnabled))
}

func (t *pgTx) ListMessages(ctx context.Context, threadID string, includePrivate bool) ([]domain.Message, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE thread_id=$1 AND ($2 OR NOT is_private)
		ORDER BY created_at ASC, seq ASC
	`, threadID, includePrivate)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanMessage)
}

func (t *pgTx) ListFileMessages(ctx context.Context, projectID string) ([]domain.Message, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+prefixed("m.", messageColumns)+`
		FROM messages m
		JOIN threads th ON th.thread_id = m.thread_id
		WHERE th.project_id=$1 AND m.message_type='file' AND COALESCE(m.file_id, '') <> '' AND NOT m.is_deleted AND NOT m.is_private
		ORDER BY m.created_at ASC, m.seq ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanMessage)
}

func (t *pgTx) DeleteMessage(ctx context.Context, id string) error {
	return expectOne(t.tx.Exec(ctx, `DELETE FROM messages WHERE message_id=$1`, id))
}

func (t *pgTx) DeleteMessagesByThread(ctx context.Context, threadID string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM messages WHERE thread_id=$1`, threadID)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}

// folders

const folderColumns = `folder_id, project_id, parent_id, name, color, icon, created_by, created_at`

func scanFolder(row rowScanner) (domain.Folder, error) {
	var f domain.Folder
	err := row.Scan(&f.ID, &f.ProjectID, &f.ParentID, &f.Name, &f.Color, &f.Icon, &f.CreatedBy, &f.CreatedAt)
	return f, mapErr(err)
}

func (t *pgTx) InsertFolder(ctx context.Context, f domain.Folder) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO folders(`+folderColumns+`)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8)
	`, f.ID, f.ProjectID, f.ParentID, f.Name, f.Color, f.Icon, string(f.CreatedBy), f.CreatedAt)
	return mapErr(err)
}

func (t *pgTx) GetFolder(ctx context.Context, id string) (domain.Folder, error) {
	return scanFolder(t.tx.QueryRow(ctx, `SELECT `+folderColumns+` FROM folders WHERE folder_id=$1`, id))
}

func (t *pgTx) ListFolders(ctx context.Context, projectID string) ([]domain.Folder, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+folderColumns+` FROM folders WHERE project_id=$1 ORDER BY created_at ASC, name ASC`, projectID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanFolder)
}

func (t *pgTx) CountFolders(ctx context.Context, projectID string) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM folders WHERE project_id=$1`, projectID).Scan(&n)
	return n, mapErr(err)
}

func (t *pgTx) FindRootFolderByName(ctx context.Context, projectID, name string) (domain.Folder, error) {
	return scanFolder(t.tx.QueryRow(ctx, `
		SELECT `+folderColumns+`
		FROM folders
		WHERE project_id=$1 AND parent_id IS NULL AND name=$2
		ORDER BY created_at ASC
		LIMIT 1
	`, projectID, name))
}

func (t *pgTx) DeleteFolder(ctx context.Context, id string) error {
	return expectOne(t.tx.Exec(ctx, `DELETE FROM folders WHERE folder_id=$1`, id))
}

func (t *pgTx) DeleteFoldersByProject(ctx context.Context, projectID string) (int64, error) {
	children, err := t.tx.Exec(ctx, `DELETE FROM folders WHERE project_id=$1 AND parent_id IS NOT NULL`, projectID)
	if err != nil {
		return 0, mapErr(err)
	}
	roots, err := t.tx.Exec(ctx, `DELETE FROM folders WHERE project_id=$1`, projectID)
	if err != nil {
		return 0, mapErr(err)
	}
	return children.RowsAffected() + roots.RowsAffected(), nil
}

// files

const fileColumns = `file_id, project_id, folder_id, placement, storage_id, thumbnail_id, file_name, file_type, file_size, message_id, tags, uploaded_by, uploaded_at, moved_at`

func scanFile(row rowScanner) (domain.ProjectFile, error) {
	var f domain.ProjectFile
	err := row.Scan(&f.ID, &f.ProjectID, &f.FolderID, &f.Placement, &f.StorageID, &f.ThumbnailID, &f.FileName, &f.FileType, &f.FileSize, &f.MessageID, &f.Tags, &f.UploadedBy, &f.UploadedAt, &f.MovedAt)
	return f, mapErr(err)
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func (t *pgTx) InsertFile(ctx context.Context, f domain.ProjectFile) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO project_files(`+fileColumns+`)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, f.ID, f.ProjectID, f.FolderID, string(f.Placement), f.StorageID, f.ThumbnailID, f.FileName, f.FileType, f.FileSize, f.MessageID, tagsOrEmpty(f.Tags), string(f.UploadedBy), f.UploadedAt, f.MovedAt)
	return mapErr(err)
}

func (t *pgTx) GetFile(ctx context.Context, id string) (domain.ProjectFile, error) {
	return scanFile(t.tx.QueryRow(ctx, `SELECT `+fileColumns+` FROM project_files WHERE file_id=$1`, id))
}

func (t *pgTx) UpdateFile(ctx context.Context, f domain.ProjectFile) error {
	return expectOne(t.tx.Exec(ctx, `
		UPDATE project_files
		SET folder_id=$2, placement=$3, thumbnail_id=$4, file_name=$5, message_id=$6, tags=$7, moved_at=$8
		WHERE file_id=$1
	`, f.ID, f.FolderID, string(f.Placement), f.ThumbnailID, f.FileName, f.MessageID, tagsOrEmpty(f.Tags), f.MovedAt))
}

func (t *pgTx) DeleteFile(ctx context.Context, id string) error {
	return expectOne(t.tx.Exec(ctx, `DELETE FROM project_files WHERE file_id=$1`, id))
}

func (t *pgTx) ListFiles(ctx context.Context, filter FileFilter) ([]domain.ProjectFile, error) {
	query := `SELECT ` + fileColumns + ` FROM project_files WHERE project_id=$1`
	args := []any{filter.ProjectID}
	if filter.FolderID != nil {
		args = append(args, *filter.FolderID)
		query += fmt.Sprintf(` AND folder_id=$%d`, len(args))
	}
	if filter.Placement != "" {
		args = append(args, string(filter.Placement))
		query += fmt.Sprintf(` AND placement=$%d`, len(args))
	}
	query += ` ORDER BY uploaded_at ASC, file_id ASC`

	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanFile)
}

func (t *pgTx) FileExistsForMessage(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM project_files WHERE message_id=$1)`, messageID).Scan(&exists)
	return exists, mapErr(err)
}

func (t *pgTx) DetachFilesFromMessage(ctx context.Context, messageID string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE project_files SET message_id=NULL WHERE message_id=$1`, messageID)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) DetachFilesFromThread(ctx context.Context, threadID string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE project_files SET message_id=NULL
		WHERE message_id IN (SELECT message_id FROM messages WHERE thread_id=$1)
	`, threadID)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) UnsortFilesInFolder(ctx context.Context, folderID string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE project_files SET folder_id=NULL, placement='unsorted' WHERE folder_id=$1`, folderID)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) DeleteFilesByProject(ctx context.Context, projectID string) ([]string, error) {
	rows, err := t.tx.Query(ctx, `DELETE FROM project_files WHERE project_id=$1 RETURNING storage_id`, projectID)
	if err != nil {
		return nil, mapErr(err)
	}
	return collect(rows, func(row rowScanner) (string, error) {
		var id string
		return id, row.Scan(&id)
	})
}

// notifications

const notificationColumns = `notification_id, kind, recipient, message, thread_id, project_id, status, attempts, last_error, created_at, updated_at, sent_at`

func scanNotification(row rowScanner) (domain.Notification, error) {
	var n domain.Notification
	err := row.Scan(&n.ID, &n.Type, &n.Recipient, &n.Message, &n.ThreadID, &n.ProjectID, &n.Status, &n.Attempts, &n.LastError, &n.CreatedAt, &n.UpdatedAt, &n.SentAt)
	return n, mapErr(err)
}

func (t *pgTx) InsertNotification(ctx context.Context, n domain.Notification) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO notifications(`+notificationColumns+`)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, n.ID, n.Type, n.Recipient, n.Message, n.ThreadID, n.ProjectID, string(n.Status), n.Attempts, n.LastError, n.CreatedAt, n.UpdatedAt, n.SentAt)
	return mapErr(err)
}

func (t *pgTx) GetNotification(ctx context.Context, id string) (domain.Notification, error) {
	return scanNotification(t.tx.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE notification_id=$1`, id))
}

func (t *pgTx) UpdateNotification(ctx context.Context, n domain.Notification) error {
	return expectOne(t.tx.Exec(ctx, `
		UPDATE notifications SET status=$2, attempts=$3, last_error=$4, updated_at=$5, sent_at=$6
		WHERE notification_id=$1
	`, n.ID, string(n.Status), n.Attempts, n.LastError, n.UpdatedAt, n.SentAt))
}

func (t *pgTx) ListNotifications(ctx context.Context, filter NotificationFilter) ([]domain.Notification, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := t.tx.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE ($1 = '' OR status = $1)
		  AND ($2 <= 0 OR attempts < $2)
		ORDER BY created_at ASC, notification_id ASC
		LIMIT $3
	`, string(filter.Status), filter.MaxAttempts, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanNotification)
}

func (t *pgTx) DeleteNotificationsByThread(ctx context.Context, threadID string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM notifications WHERE thread_id=$1`, threadID)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) DeleteNotificationsByProject(ctx context.Context, projectID string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		DELETE FROM notifications
		WHERE project_id=$1
		   OR thread_id IN (SELECT thread_id FROM threads WHERE project_id=$1)
	`, projectID)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}

// feedback

const feedbackColumns = `feedback_id, title, content, priority, status, response, created_at`

func (t *pgTx) InsertFeedback(ctx context.Context, f domain.Feedback) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO feedback(`+feedbackColumns+`)
		VALUES($1, $2, $3, $4, $5, $6, $7)
	`, f.ID, f.Title, f.Content, f.Priority, f.Status, f.Response, f.CreatedAt)
	return mapErr(err)
}

func (t *pgTx) ListFeedback(ctx context.Context) ([]domain.Feedback, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+feedbackColumns+` FROM feedback ORDER BY created_at ASC, feedback_id ASC`)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row rowScanner) (domain.Feedback, error) {
		var f domain.Feedback
		err := row.Scan(&f.ID, &f.Title, &f.Content, &f.Priority, &f.Status, &f.Response, &f.CreatedAt)
		return f, mapErr(err)
	})
}

func (t *pgTx) DeleteFeedback(ctx context.Context, id string) error {
	return expectOne(t.tx.Exec(ctx, `DELETE FROM feedback WHERE feedback_id=$1`, id))
}

func (t *pgTx) InsertLegacyFeedback(ctx context.Context, f domain.LegacyFeedback) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO legacy_feedback(`+feedbackColumns+`, migrated_thread_id, migrated_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (feedback_id) DO NOTHING
	`, f.ID, f.Title, f.Content, f.Priority, f.Status, f.Response, f.CreatedAt, f.MigratedThreadID, f.MigratedAt)
	return mapErr(err)
}
