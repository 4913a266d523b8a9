package repository

import (
	"context"

	"portal_server/server/portal/domain"
)

// Store runs fn inside one transaction. Returning an error from fn rolls
// every mutation back.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close()
}

type ThreadFilter struct {
	ProjectID       string
	IncludeArchived bool
}

type FileFilter struct {
	ProjectID string
	FolderID  *string
	Placement domain.Placement
}

type NotificationFilter struct {
	Status      domain.NotificationStatus
	MaxAttempts int
	Limit       int
}

// Tx is the row-level API available inside a transaction. Lookups return
// domain.ErrNotFound when nothing matches.
type Tx interface {
	InsertClient(ctx context.Context, c domain.Client) error
	GetClient(ctx context.Context, id string) (domain.Client, error)
	FindClientByName(ctx context.Context, name string) (domain.Client, error)
	ListClients(ctx context.Context) ([]domain.Client, error)
	UpdateClient(ctx context.Context, c domain.Client) error

	InsertProject(ctx context.Context, p domain.Project) error
	GetProject(ctx context.Context, id string) (domain.Project, error)
	ListProjects(ctx context.Context, includeArchived bool) ([]domain.Project, error)
	UpdateProject(ctx context.Context, p domain.Project) error
	DeleteProject(ctx context.Context, id string) error

	InsertThread(ctx context.Context, t domain.Thread) error
	GetThread(ctx context.Context, id string) (domain.Thread, error)
	// LockThread reads the thread and holds it until commit.
	LockThread(ctx context.Context, id string) (domain.Thread, error)
	ListThreads(ctx context.Context, filter ThreadFilter) ([]domain.Thread, error)
	UpdateThread(ctx context.Context, t domain.Thread) error
	DeleteThread(ctx context.Context, id string) error
	SumUnread(ctx context.Context, role domain.Role) (int64, error)

	InsertMessage(ctx context.Context, m domain.Message) error
	GetMessage(ctx context.Context, id string) (domain.Message, error)
	UpdateMessage(ctx context.Context, m domain.Message) error
	// ListMessages returns oldest first.
	ListMessages(ctx context.Context, threadID string, includePrivate bool) ([]domain.Message, error)
	ListFileMessages(ctx context.Context, projectID string) ([]domain.Message, error)
	DeleteMessage(ctx context.Context, id string) error
	DeleteMessagesByThread(ctx context.Context, threadID string) (int64, error)

	InsertFolder(ctx context.Context, f domain.Folder) error
	GetFolder(ctx context.Context, id string) (domain.Folder, error)
	ListFolders(ctx context.Context, projectID string) ([]domain.Folder, error)
	CountFolders(ctx context.Context, projectID string) (int, error)
	FindRootFolderByName(ctx context.Context, projectID, name string) (domain.Folder, error)
	DeleteFolder(ctx context.Context, id string) error
	DeleteFoldersByProject(ctx context.Context, projectID string) (int64, error)

	InsertFile(ctx context.Context, f domain.ProjectFile) error
	GetFile(ctx context.Context, id string) (domain.ProjectFile, error)
	UpdateFile(ctx context.Context, f domain.ProjectFile) error
	DeleteFile(ctx context.Context, id string) error
	ListFiles(ctx context.Context, filter FileFilter) ([]domain.ProjectFile, error)
	FileExistsForMessage(ctx context.Context, messageID string) (bool, error)
	DetachFilesFromThread(ctx context.Context, threadID string) (int64, error)
	DetachFilesFromMessage(ctx context.Context, messageID string) (int64, error)
	UnsortFilesInFolder(ctx context.Context, folderID string) (int64, error)
	// DeleteFilesByProject returns the storage ids of the removed rows.
	DeleteFilesByProject(ctx context.Context, projectID string) ([]string, error)

	InsertNotification(ctx context.Context, n domain.Notification) error
	GetNotification(ctx context.Context, id string) (domain.Notification, error)
	UpdateNotification(ctx context.Context, n domain.Notification) error
	ListNotifications(ctx context.Context, filter NotificationFilter) ([]domain.Notification, error)
	DeleteNotificationsByThread(ctx context.Context, threadID string) (int64, error)
	DeleteNotificationsByProject(ctx context.Context, projectID string) (int64, error)

	InsertFeedback(ctx context.Context, f domain.Feedback) error
	ListFeedback(ctx context.Context) ([]domain.Feedback, error)
	DeleteFeedback(ctx context.Context, id string) error
	InsertLegacyFeedback(ctx context.Context, f domain.LegacyFeedback) error
}
