package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"portal_server/server/portal/domain"
)

// MemoryStore keeps every table in process. Transactions are serialized
// and work on a copy that replaces the live state only on commit.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
}

type memMessage struct {
	seq int64
	msg domain.Message
}

type memData struct {
	seq           int64
	clients       map[string]domain.Client
	projects      map[string]domain.Project
	threads       map[string]domain.Thread
	messages      map[string]memMessage
	folders       map[string]domain.Folder
	files         map[string]domain.ProjectFile
	notifications map[string]domain.Notification
	feedback      map[string]domain.Feedback
	legacy        map[string]domain.LegacyFeedback
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: &memData{
		clients:       map[string]domain.Client{},
		projects:      map[string]domain.Project{},
		threads:       map[string]domain.Thread{},
		messages:      map[string]memMessage{},
		folders:       map[string]domain.Folder{},
		files:         map[string]domain.ProjectFile{},
		notifications: map[string]domain.Notification{},
		feedback:      map[string]domain.Feedback{},
		legacy:        map[string]domain.LegacyFeedback{},
	}}
}

func (d *memData) clone() *memData {
	out := &memData{
		seq:           d.seq,
		clients:       maps.Clone(d.clients),
		projects:      maps.Clone(d.projects),
		threads:       maps.Clone(d.threads),
		messages:      maps.Clone(d.messages),
		folders:       maps.Clone(d.folders),
		files:         maps.Clone(d.files),
		notifications: maps.Clone(d.notifications),
		feedback:      maps.Clone(d.feedback),
		legacy:        maps.Clone(d.legacy),
	}
	return out
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(&memTx{d: work}); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() {}

type memTx struct {
	d *memData
}

func cloneFile(f domain.ProjectFile) domain.ProjectFile {
	f.Tags = slices.Clone(f.Tags)
	if f.Tags == nil {
		f.Tags = []string{}
	}
	return f
}

func get[T any](m map[string]T, id string) (T, error) {
	v, ok := m[id]
	if !ok {
		var zero T
		return zero, domain.ErrNotFound
	}
	return v, nil
}

func insert[T any](m map[string]T, id string, v T) error {
	if _, exists := m[id]; exists {
		return fmt.Errorf("%w: duplicate id %s", domain.ErrConflict, id)
	}
	m[id] = v
	return nil
}

func replace[T any](m map[string]T, id string, v T) error {
	if _, ok := m[id]; !ok {
		return domain.ErrNotFound
	}
	m[id] = v
	return nil
}

func remove[T any](m map[string]T, id string) error {
	if _, ok := m[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m, id)
	return nil
}

// clients

func (t *memTx) clientNameTaken(name, exceptID string) bool {
	for id, c := range t.d.clients {
		if id != exceptID && c.Name == name {
			return true
		}
	}
	return false
}

func (t *memTx) InsertClient(_ context.Context, c domain.Client) error {
	if t.clientNameTaken(c.Name, "") {
		return fmt.Errorf("%w: client name %q", domain.ErrConflict, c.Name)
	}
	return insert(t.d.clients, c.ID, c)
}

func (t *memTx) GetClient(_ context.Context, id string) (domain.Client, error) {
	return get(t.d.clients, id)
}

func (t *memTx) FindClientByName(_ context.Context, name string) (domain.Client, error) {
	for _, c := range t.d.clients {
		if c.Name == name {
			return c, nil
		}
	}
	return domain.Client{}, domain.ErrNotFound
}

func (t *memTx) ListClients(_ context.Context) ([]domain.Client, error) {
	out := slices.Collect(maps.Values(t.d.clients))
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (t *memTx) UpdateClient(_ context.Context, c domain.Client) error {
	if t.clientNameTaken(c.Name, c.ID) {
		return fmt.Errorf("%w: client name %q", domain.ErrConflict, c.Name)
	}
	return replace(t.d.clients, c.ID, c)
}

// projects

func (t *memTx) InsertProject(_ context.Context, p domain.Project) error {
	if _, ok := t.d.clients[p.ClientID]; !ok {
		return fmt.Errorf("%w: client %s", domain.ErrNotFound, p.ClientID)
	}
	return insert(t.d.projects, p.ID, p)
}

func (t *memTx) GetProject(_ context.Context, id string) (domain.Project, error) {
	return get(t.d.projects, id)
}

func (t *memTx) ListProjects(_ context.Context, includeArchived bool) ([]domain.Project, error) {
	out := make([]domain.Project, 0, len(t.d.projects))
	for _, p := range t.d.projects {
		if includeArchived || !p.IsArchived {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (t *memTx) UpdateProject(_ context.Context, p domain.Project) error {
	return replace(t.d.projects, p.ID, p)
}

func (t *memTx) DeleteProject(_ context.Context, id string) error {
	return remove(t.d.projects, id)
}

// threads

func (t *memTx) InsertThread(_ context.Context, th domain.Thread) error {
	if _, ok := t.d.projects[th.ProjectID]; !ok {
		return fmt.Errorf("%w: project %s", domain.ErrNotFound, th.ProjectID)
	}
	return insert(t.d.threads, th.ID, th)
}

func (t *memTx) GetThread(_ context.Context, id string) (domain.Thread, error) {
	return get(t.d.threads, id)
}

func (t *memTx) LockThread(ctx context.Context, id string) (domain.Thread, error) {
	return t.GetThread(ctx, id)
}

func (t *memTx) ListThreads(_ context.Context, filter ThreadFilter) ([]domain.Thread, error) {
	out := make([]domain.Thread, 0)
	for _, th := range t.d.threads {
		if filter.ProjectID != "" && th.ProjectID != filter.ProjectID {
			continue
		}
		if th.IsArchived && !filter.IncludeArchived {
			continue
		}
		out = append(out, th)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].ID > out[j].ID
		}
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

func (t *memTx) UpdateThread(_ context.Context, th domain.Thread) error {
	if th.UnreadCountClient < 0 || th.UnreadCountDeveloper < 0 {
		return fmt.Errorf("%w: negative unread counter", domain.ErrValidation)
	}
	return replace(t.d.threads, th.ID, th)
}

func (t *memTx) DeleteThread(_ context.Context, id string) error {
	return remove(t.d.threads, id)
}

func (t *memTx) SumUnread(_ context.Context, role domain.Role) (int64, error) {
	var total int64
	for _, th := range t.d.threads {
		if th.IsArchived {
			continue
		}
		total += int64(th.UnreadFor(role))
	}
	return total, nil
}

// messages

func (t *memTx) InsertMessage(_ context.Context, m domain.Message) error {
	if _, ok := t.d.threads[m.ThreadID]; !ok {
		return fmt.Errorf("%w: thread %s", domain.ErrNotFound, m.ThreadID)
	}
	t.d.seq++
	return insert(t.d.messages, m.ID, memMessage{seq: t.d.seq, msg: m})
}

func (t *memTx) GetMessage(_ context.Context, id string) (domain.Message, error) {
	row, err := get(t.d.messages, id)
	return row.msg, err
}

func (t *memTx) UpdateMessage(_ context.Context, m domain.Message) error {
	row, ok := t.d.messages[m.ID]
	if !ok {
		return domain.ErrNotFound
	}
	row.msg = m
	t.d.messages[m.ID] = row
	return nil
}

func (t *memTx) sortedMessages(keep func(domain.Message) bool) []domain.Message {
	rows := make([]memMessage, 0)
	for _, row := range t.d.messages {
		if keep(row.msg) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].msg.CreatedAt.Equal(rows[j].msg.CreatedAt) {
			return rows[i].seq < rows[j].seq
		}
		return rows[i].msg.CreatedAt.Before(rows[j].msg.CreatedAt)
	})
	out := make([]domain.Message, len(rows))
	for i, row := range rows {
		out[i] = row.msg
	}
	return out
}

func (t *memTx) ListMessages(_ context.Context, threadID string, includePrivate bool) ([]domain.Message, error) {
	return t.sortedMessages(func(m domain.Message) bool {
		return m.ThreadID == threadID && (includePrivate || !m.IsPrivate)
	}), nil
}

func (t *memTx) ListFileMessages(_ context.Context, projectID string) ([]domain.Message, error) {
	return t.sortedMessages(func(m domain.Message) bool {
		th, ok := t.d.threads[m.ThreadID]
		return ok && th.ProjectID == projectID && m.HasFile() && !m.IsDeleted && !m.IsPrivate
	}), nil
}

func (t *memTx) DeleteMessage(_ context.Context, id string) error {
	return remove(t.d.messages, id)
}

func (t *memTx) DeleteMessagesByThread(_ context.Context, threadID string) (int64, error) {
	var n int64
	for id, row := range t.d.messages {
		if row.msg.ThreadID == threadID {
			delete(t.d.messages, id)
			n++
		}
	}
	return n, nil
}

// folders

func (t *memTx) InsertFolder(_ context.Context, f domain.Folder) error {
	if _, ok := t.d.projects[f.ProjectID]; !ok {
		return fmt.Errorf("%w: project %s", domain.ErrNotFound, f.ProjectID)
	}
	if f.ParentID != nil {
		if _, ok := t.d.folders[*f.ParentID]; !ok {
			return fmt.Errorf("%w: parent folder %s", domain.ErrNotFound, *f.ParentID)
		}
	} else {
		for _, existing := range t.d.folders {
			if existing.ProjectID == f.ProjectID && existing.ParentID == nil && existing.Name == f.Name {
				return fmt.Errorf("%w: root folder %q", domain.ErrConflict, f.Name)
			}
		}
	}
	return insert(t.d.folders, f.ID, f)
}

func (t *memTx) GetFolder(_ context.Context, id string) (domain.Folder, error) {
	return get(t.d.folders, id)
}

func (t *memTx) ListFolders(_ context.Context, projectID string) ([]domain.Folder, error) {
	out := make([]domain.Folder, 0)
	for _, f := range t.d.folders {
		if f.ProjectID == projectID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (t *memTx) CountFolders(_ context.Context, projectID string) (int, error) {
	n := 0
	for _, f := range t.d.folders {
		if f.ProjectID == projectID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) FindRootFolderByName(ctx context.Context, projectID, name string) (domain.Folder, error) {
	folders, _ := t.ListFolders(ctx, projectID)
	for _, f := range folders {
		if f.ParentID == nil && f.Name == name {
			return f, nil
		}
	}
	return domain.Folder{}, domain.ErrNotFound
}

func (t *memTx) DeleteFolder(_ context.Context, id string) error {
	for _, f := range t.d.folders {
		if f.ParentID != nil && *f.ParentID == id {
			return fmt.Errorf("%w: folder %s has subfolders", domain.ErrConflict, id)
		}
	}
	return remove(t.d.folders, id)
}

func (t *memTx) DeleteFoldersByProject(_ context.Context, projectID string) (int64, error) {
	var n int64
	for id, f := range t.d.folders {
		if f.ProjectID == projectID {
			delete(t.d.folders, id)
			n++
		}
	}
	return n, nil
}

// files

func (t *memTx) messageAttached(messageID, exceptFileID string) bool {
	for id, f := range t.d.files {
		if id != exceptFileID && f.MessageID != nil && *f.MessageID == messageID {
			return true
		}
	}
	return false
}

func (t *memTx) InsertFile(_ context.Context, f domain.ProjectFile) error {
	if _, ok := t.d.projects[f.ProjectID]; !ok {
		return fmt.Errorf("%w: project %s", domain.ErrNotFound, f.ProjectID)
	}
	if f.MessageID != nil && t.messageAttached(*f.MessageID, "") {
		return fmt.Errorf("%w: message %s already has a file", domain.ErrConflict, *f.MessageID)
	}
	return insert(t.d.files, f.ID, cloneFile(f))
}

func (t *memTx) GetFile(_ context.Context, id string) (domain.ProjectFile, error) {
	f, err := get(t.d.files, id)
	return cloneFile(f), err
}

func (t *memTx) UpdateFile(_ context.Context, f domain.ProjectFile) error {
	if f.MessageID != nil && t.messageAttached(*f.MessageID, f.ID) {
		return fmt.Errorf("%w: message %s already has a file", domain.ErrConflict, *f.MessageID)
	}
	return replace(t.d.files, f.ID, cloneFile(f))
}

func (t *memTx) DeleteFile(_ context.Context, id string) error {
	return remove(t.d.files, id)
}

func (t *memTx) ListFiles(_ context.Context, filter FileFilter) ([]domain.ProjectFile, error) {
	out := make([]domain.ProjectFile, 0)
	for _, f := range t.d.files {
		if f.ProjectID != filter.ProjectID {
			continue
		}
		if filter.FolderID != nil && (f.FolderID == nil || *f.FolderID != *filter.FolderID) {
			continue
		}
		if filter.Placement != "" && f.Placement != filter.Placement {
			continue
		}
		out = append(out, cloneFile(f))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UploadedAt.Before(out[j].UploadedAt)
	})
	return out, nil
}

func (t *memTx) FileExistsForMessage(_ context.Context, messageID string) (bool, error) {
	return t.messageAttached(messageID, ""), nil
}

func (t *memTx) DetachFilesFromMessage(_ context.Context, messageID string) (int64, error) {
	var n int64
	for id, f := range t.d.files {
		if f.MessageID == nil || *f.MessageID != messageID {
			continue
		}
		f.MessageID = nil
		t.d.files[id] = f
		n++
	}
	return n, nil
}

func (t *memTx) DetachFilesFromThread(_ context.Context, threadID string) (int64, error) {
	var n int64
	for id, f := range t.d.files {
		if f.MessageID == nil {
			continue
		}
		row, ok := t.d.messages[*f.MessageID]
		if !ok || row.msg.ThreadID != threadID {
			continue
		}
		f.MessageID = nil
		t.d.files[id] = f
		n++
	}
	return n, nil
}

func (t *memTx) UnsortFilesInFolder(_ context.Context, folderID string) (int64, error) {
	var n int64
	for id, f := range t.d.files {
		if f.FolderID != nil && *f.FolderID == folderID {
			f.FolderID = nil
			f.Placement = domain.PlacementUnsorted
			t.d.files[id] = f
			n++
		}
	}
	return n, nil
}

func (t *memTx) DeleteFilesByProject(_ context.Context, projectID string) ([]string, error) {
	storageIDs := make([]string, 0)
	for id, f := range t.d.files {
		if f.ProjectID == projectID {
			storageIDs = append(storageIDs, f.StorageID)
			delete(t.d.files, id)
		}
	}
	sort.Strings(storageIDs)
	return storageIDs, nil
}

// notifications

func (t *memTx) InsertNotification(_ context.Context, n domain.Notification) error {
	return insert(t.d.notifications, n.ID, n)
}

func (t *memTx) GetNotification(_ context.Context, id string) (domain.Notification, error) {
	return get(t.d.notifications, id)
}

func (t *memTx) UpdateNotification(_ context.Context, n domain.Notification) error {
	return replace(t.d.notifications, n.ID, n)
}

func (t *memTx) ListNotifications(_ context.Context, filter NotificationFilter) ([]domain.Notification, error) {
	out := make([]domain.Notification, 0)
	for _, n := range t.d.notifications {
		if filter.Status != "" && n.Status != filter.Status {
			continue
		}
		if filter.MaxAttempts > 0 && n.Attempts >= filter.MaxAttempts {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) DeleteNotificationsByThread(_ context.Context, threadID string) (int64, error) {
	var n int64
	for id, row := range t.d.notifications {
		if row.ThreadID != nil && *row.ThreadID == threadID {
			delete(t.d.notifications, id)
			n++
		}
	}
	return n, nil
}

func (t *memTx) DeleteNotificationsByProject(_ context.Context, projectID string) (int64, error) {
	var n int64
	for id, row := range t.d.notifications {
		inProject := row.ProjectID != nil && *row.ProjectID == projectID
		if !inProject && row.ThreadID != nil {
			th, ok := t.d.threads[*row.ThreadID]
			inProject = ok && th.ProjectID == projectID
		}
		if inProject {
			delete(t.d.notifications, id)
			n++
		}
	}
	return n, nil
}

// feedback

func (t *memTx) InsertFeedback(_ context.Context, f domain.Feedback) error {
	return insert(t.d.feedback, f.ID, f)
}

func (t *memTx) ListFeedback(_ context.Context) ([]domain.Feedback, error) {
	out := slices.Collect(maps.Values(t.d.feedback))
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return strings.Compare(out[i].ID, out[j].ID) < 0
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (t *memTx) DeleteFeedback(_ context.Context, id string) error {
	return remove(t.d.feedback, id)
}

func (t *memTx) InsertLegacyFeedback(_ context.Context, f domain.LegacyFeedback) error {
	if _, exists := t.d.legacy[f.ID]; exists {
		return nil
	}
	t.d.legacy[f.ID] = f
	return nil
}

// LegacyFeedback exposes the archived rows for inspection.
func (s *MemoryStore) LegacyFeedback() []domain.LegacyFeedback {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Collect(maps.Values(s.data.legacy))
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
