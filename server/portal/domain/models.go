package domain

import "time"

type Role string

const (
	RoleClient    Role = "client"
	RoleDeveloper Role = "developer"
)

func (r Role) Valid() bool {
	return r == RoleClient || r == RoleDeveloper
}

// Counterpart returns the other side of the conversation.
func (r Role) Counterpart() Role {
	if r == RoleClient {
		return RoleDeveloper
	}
	return RoleClient
}

type ProjectType string
type ProjectStatus string
type ProjectPriority string

const (
	ProjectTypePresentation ProjectType = "presentation"
	ProjectTypeCards        ProjectType = "cards"
	ProjectTypeLeadGen      ProjectType = "lead_gen"
	ProjectTypeWebsite      ProjectType = "website"
	ProjectTypeOther        ProjectType = "other"
)

const (
	ProjectStatusNotStarted ProjectStatus = "not_started"
	ProjectStatusInProgress ProjectStatus = "in_progress"
	ProjectStatusReview     ProjectStatus = "review"
	ProjectStatusComplete   ProjectStatus = "complete"
	ProjectStatusPaused     ProjectStatus = "paused"
)

const (
	ProjectPriorityLow    ProjectPriority = "low"
	ProjectPriorityMedium ProjectPriority = "medium"
	ProjectPriorityHigh   ProjectPriority = "high"
	ProjectPriorityUrgent ProjectPriority = "urgent"
)

func (t ProjectType) Valid() bool {
	switch t {
	case ProjectTypePresentation, ProjectTypeCards, ProjectTypeLeadGen, ProjectTypeWebsite, ProjectTypeOther:
		return true
	}
	return false
}

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectStatusNotStarted, ProjectStatusInProgress, ProjectStatusReview, ProjectStatusComplete, ProjectStatusPaused:
		return true
	}
	return false
}

func (p ProjectPriority) Valid() bool {
	switch p {
	case ProjectPriorityLow, ProjectPriorityMedium, ProjectPriorityHigh, ProjectPriorityUrgent:
		return true
	}
	return false
}

type ThreadStatus string
type ThreadPriority string

const (
	ThreadStatusNew          ThreadStatus = "new"
	ThreadStatusAcknowledged ThreadStatus = "acknowledged"
	ThreadStatusInProgress   ThreadStatus = "in_progress"
	ThreadStatusResolved     ThreadStatus = "resolved"
	ThreadStatusClosed       ThreadStatus = "closed"
)

const (
	ThreadPriorityNormal ThreadPriority = "normal"
	ThreadPriorityUrgent ThreadPriority = "urgent"
)

func (s ThreadStatus) Valid() bool {
	switch s {
	case ThreadStatusNew, ThreadStatusAcknowledged, ThreadStatusInProgress, ThreadStatusResolved, ThreadStatusClosed:
		return true
	}
	return false
}

func (p ThreadPriority) Valid() bool {
	return p == ThreadPriorityNormal || p == ThreadPriorityUrgent
}

type MessageType string

const (
	MessageTypeText         MessageType = "text"
	MessageTypeSystem       MessageType = "system"
	MessageTypeStatusUpdate MessageType = "status_update"
	MessageTypeFile         MessageType = "file"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeSystem, MessageTypeStatusUpdate, MessageTypeFile:
		return true
	}
	return false
}

// Placement distinguishes files waiting for classification from files a
// user deliberately left at the project root.
type Placement string

const (
	PlacementUnsorted Placement = "unsorted"
	PlacementRoot     Placement = "root"
	PlacementFolder   Placement = "folder"
)

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     *string   `json:"email,omitempty"`
	Language  string    `json:"language"`
	TechLevel int       `json:"tech_level"`
	Timezone  string    `json:"timezone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Project struct {
	ID          string          `json:"id"`
	ClientID    string          `json:"client_id"`
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	Type        ProjectType     `json:"type"`
	Status      ProjectStatus   `json:"status"`
	Priority    ProjectPriority `json:"priority"`
	Icon        string          `json:"icon"`
	Color       string          `json:"color"`
	Deadline    *time.Time      `json:"deadline,omitempty"`
	IsArchived  bool            `json:"is_archived"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type Thread struct {
	ID                   string         `json:"id"`
	ProjectID            string         `json:"project_id"`
	Title                string         `json:"title"`
	Status               ThreadStatus   `json:"status"`
	Priority             ThreadPriority `json:"priority"`
	CreatedBy            Role           `json:"created_by"`
	IsArchived           bool           `json:"is_archived"`
	LastActivity         time.Time      `json:"last_activity"`
	UnreadCountClient    int            `json:"unread_count_client"`
	UnreadCountDeveloper int            `json:"unread_count_developer"`
	CreatedAt            time.Time      `json:"created_at"`
}

// UnreadFor returns the counter owned by role.
func (t Thread) UnreadFor(role Role) int {
	if role == RoleClient {
		return t.UnreadCountClient
	}
	return t.UnreadCountDeveloper
}

func (t *Thread) SetUnread(role Role, n int) {
	if n < 0 {
		n = 0
	}
	if role == RoleClient {
		t.UnreadCountClient = n
		return
	}
	t.UnreadCountDeveloper = n
}

type Message struct {
	ID                 string      `json:"id"`
	ThreadID           string      `json:"thread_id"`
	Author             Role        `json:"author"`
	Content            string      `json:"content"`
	Type               MessageType `json:"type"`
	IsPrivate          bool        `json:"is_private"`
	IsEdited           bool        `json:"is_edited"`
	EditedAt           *time.Time  `json:"edited_at,omitempty"`
	IsDeleted          bool        `json:"is_deleted"`
	DeletedAt          *time.Time  `json:"deleted_at,omitempty"`
	OriginalContent    *string     `json:"original_content,omitempty"`
	OriginalLanguage   *string     `json:"original_language,omitempty"`
	TranslatedContent  *string     `json:"translated_content,omitempty"`
	TargetLanguage     *string     `json:"target_language,omitempty"`
	TranslationEnabled bool        `json:"translation_enabled"`
	FileID             *string     `json:"file_id,omitempty"`
	FileName           *string     `json:"file_name,omitempty"`
	FileType           *string     `json:"file_type,omitempty"`
	FileSize           *int64      `json:"file_size,omitempty"`
	FileURL            *string     `json:"file_url,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
}

func (m Message) HasFile() bool {
	return m.Type == MessageTypeFile && m.FileID != nil && *m.FileID != ""
}

type Folder struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	ParentID  *string   `json:"parent_id,omitempty"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Icon      string    `json:"icon"`
	CreatedBy Role      `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type ProjectFile struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	FolderID    *string    `json:"folder_id,omitempty"`
	Placement   Placement  `json:"placement"`
	StorageID   string     `json:"storage_id"`
	ThumbnailID *string    `json:"thumbnail_id,omitempty"`
	FileName    string     `json:"file_name"`
	FileType    string     `json:"file_type"`
	FileSize    int64      `json:"file_size"`
	MessageID   *string    `json:"message_id,omitempty"`
	Tags        []string   `json:"tags"`
	UploadedBy  Role       `json:"uploaded_by"`
	UploadedAt  time.Time  `json:"uploaded_at"`
	MovedAt     *time.Time `json:"moved_at,omitempty"`
}

type Notification struct {
	ID        string             `json:"id"`
	Type      string             `json:"type"`
	Recipient string             `json:"recipient"`
	Message   string             `json:"message"`
	ThreadID  *string            `json:"thread_id,omitempty"`
	ProjectID *string            `json:"project_id,omitempty"`
	Status    NotificationStatus `json:"status"`
	Attempts  int                `json:"attempts"`
	LastError *string            `json:"last_error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	SentAt    *time.Time         `json:"sent_at,omitempty"`
}

// Feedback is the flat pre-thread record shape kept for migration.
type Feedback struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Priority  string    `json:"priority"`
	Status    string    `json:"status"`
	Response  *string   `json:"response,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type LegacyFeedback struct {
	Feedback
	MigratedThreadID string    `json:"migrated_thread_id"`
	MigratedAt       time.Time `json:"migrated_at"`
}
