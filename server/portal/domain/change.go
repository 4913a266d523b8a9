package domain

import "time"

// Change is published after a transaction commits. Subscribers use it as a
// signal to re-read the affected collection.
type Change struct {
	Kind      string    `json:"kind"`
	ProjectID string    `json:"project_id,omitempty"`
	ThreadID  string    `json:"thread_id,omitempty"`
	EntityID  string    `json:"entity_id,omitempty"`
	At        time.Time `json:"at"`
}

const (
	ChangeClients       = "clients"
	ChangeProjects      = "projects"
	ChangeThreads       = "threads"
	ChangeMessages      = "messages"
	ChangeFolders       = "folders"
	ChangeFiles         = "files"
	ChangeNotifications = "notifications"
)

// Matches reports whether a subscriber scoped to projectID should see c.
// An empty scope receives everything.
func (c Change) Matches(projectID string) bool {
	return projectID == "" || c.ProjectID == "" || c.ProjectID == projectID
}
