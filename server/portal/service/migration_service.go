package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	commonlog "portal_server/server/common/log"
	"portal_server/server/portal/domain"
	"portal_server/server/portal/repository"
)

const (
	defaultMigratedProjectName = "Main Project"
	generalThreadTitle         = "General"
)

var welcomeTitlePattern = regexp.MustCompile(`(?i)^\W*welcome\b.*\bportal\b`)

var greetingFragments = []string{
	"welcome to your project portal",
	"welcome to the client portal",
	"this is where we'll communicate about your project",
	"feel free to send me a message here anytime",
}

type MigrationService struct {
	core
}

func NewMigrationService(store repository.Store, feed Feed) *MigrationService {
	return &MigrationService{core: newCore(store, feed)}
}

type MigrateFeedbackInput struct {
	ClientName  string
	Email       string
	Language    string
	ProjectName string
}

type MigrationResult struct {
	ClientID        string `json:"client_id"`
	ProjectID       string `json:"project_id,omitempty"`
	ThreadsCreated  int    `json:"threads_created"`
	AlreadyMigrated bool   `json:"already_migrated"`
}

type CleanupResult struct {
	ThreadsRenamed  int `json:"threads_renamed"`
	MessagesDeleted int `json:"messages_deleted"`
	UnreadRemoved   int `json:"unread_removed"`
	FilesDetached   int `json:"files_detached"`
}

type FeedbackInput struct {
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Priority  string    `json:"priority"`
	Status    string    `json:"status"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

// MigrateFeedbackData turns the flat feedback table into one client, one
// project and a thread per record. A client with the same name means the
// migration already ran and its id is returned unchanged.
func (s *MigrationService) MigrateFeedbackData(ctx context.Context, input MigrateFeedbackInput) (MigrationResult, error) {
	startedAt := time.Now()
	name := strings.TrimSpace(input.ClientName)
	if name == "" {
		return MigrationResult{}, invalid("client_name is required")
	}

	res, err := s.migrateOnce(ctx, name, input)
	if errors.Is(err, domain.ErrConflict) {
		// Lost a concurrent first run on the unique client name.
		res, err = s.migrateOnce(ctx, name, input)
	}
	logOutcome("feedback_migration", "migrate", startedAt, err, fmt.Sprintf("client_id=%s threads=%d already_migrated=%t", res.ClientID, res.ThreadsCreated, res.AlreadyMigrated))
	if err != nil {
		return MigrationResult{}, err
	}
	if !res.AlreadyMigrated {
		s.publish(ctx, domain.ChangeClients, "", "", res.ClientID)
		s.publish(ctx, domain.ChangeProjects, res.ProjectID, "", res.ProjectID)
		s.publish(ctx, domain.ChangeThreads, res.ProjectID, "", "")
	}
	return res, nil
}

func (s *MigrationService) migrateOnce(ctx context.Context, name string, input MigrateFeedbackInput) (MigrationResult, error) {
	var res MigrationResult
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		existing, err := tx.FindClientByName(ctx, name)
		if err == nil {
			res = MigrationResult{ClientID: existing.ID, AlreadyMigrated: true}
			return nil
		}
		if !isNotFound(err) {
			return err
		}
		res, err = s.migrateTx(ctx, tx, name, input)
		return err
	})
	return res, err
}

func (s *MigrationService) migrateTx(ctx context.Context, tx repository.Tx, name string, input MigrateFeedbackInput) (MigrationResult, error) {
	now := s.now()
	lang := strings.ToLower(strings.TrimSpace(input.Language))
	if lang == "" {
		lang = "en"
	}
	client := domain.Client{
		ID:        newID(),
		Name:      name,
		Email:     optionalString(input.Email),
		Language:  lang,
		TechLevel: 3,
		Timezone:  "UTC",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.InsertClient(ctx, client); err != nil {
		return MigrationResult{}, err
	}

	projectName := strings.TrimSpace(input.ProjectName)
	if projectName == "" {
		projectName = defaultMigratedProjectName
	}
	project := domain.Project{
		ID:        newID(),
		ClientID:  client.ID,
		Name:      projectName,
		Type:      domain.ProjectTypeOther,
		Status:    domain.ProjectStatusInProgress,
		Priority:  domain.ProjectPriorityMedium,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.InsertProject(ctx, project); err != nil {
		return MigrationResult{}, err
	}

	records, err := tx.ListFeedback(ctx)
	if err != nil {
		return MigrationResult{}, err
	}
	for _, fb := range records {
		threadID, err := s.migrateRecordTx(ctx, tx, project.ID, fb)
		if err != nil {
			return MigrationResult{}, fmt.Errorf("feedback %s: %w", fb.ID, err)
		}
		if err := tx.InsertLegacyFeedback(ctx, domain.LegacyFeedback{Feedback: fb, MigratedThreadID: threadID, MigratedAt: now}); err != nil {
			return MigrationResult{}, err
		}
		if err := tx.DeleteFeedback(ctx, fb.ID); err != nil {
			return MigrationResult{}, err
		}
	}
	return MigrationResult{ClientID: client.ID, ProjectID: project.ID, ThreadsCreated: len(records)}, nil
}

func (s *MigrationService) migrateRecordTx(ctx context.Context, tx repository.Tx, projectID string, fb domain.Feedback) (string, error) {
	at := fb.CreatedAt
	if at.IsZero() {
		at = s.now()
	}
	title := strings.TrimSpace(fb.Title)
	if title == "" {
		title = "Feedback"
	}
	th := domain.Thread{
		ID:           newID(),
		ProjectID:    projectID,
		Title:        title,
		Status:       feedbackThreadStatus(fb.Status),
		Priority:     feedbackThreadPriority(fb.Priority),
		CreatedBy:    domain.RoleClient,
		LastActivity: at,
		CreatedAt:    at,
	}
	if err := tx.InsertThread(ctx, th); err != nil {
		return "", err
	}

	content := strings.TrimSpace(fb.Content)
	if content == "" {
		content = title
	}
	seed := []domain.Message{{
		ID: newID(), ThreadID: th.ID, Author: domain.RoleClient, Content: content,
		Type: domain.MessageTypeText, CreatedAt: at,
	}}
	if fb.Response != nil && strings.TrimSpace(*fb.Response) != "" {
		seed = append(seed, domain.Message{
			ID: newID(), ThreadID: th.ID, Author: domain.RoleDeveloper, Content: strings.TrimSpace(*fb.Response),
			Type: domain.MessageTypeText, CreatedAt: at,
		})
	}
	for _, msg := range seed {
		if err := appendMessage(ctx, tx, &th, msg); err != nil {
			return "", err
		}
	}
	return th.ID, tx.UpdateThread(ctx, th)
}

func feedbackThreadStatus(status string) domain.ThreadStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "acknowledged", "seen":
		return domain.ThreadStatusAcknowledged
	case "in_progress", "in-progress", "working":
		return domain.ThreadStatusInProgress
	case "resolved", "done", "completed", "fixed":
		return domain.ThreadStatusResolved
	case "closed", "wontfix":
		return domain.ThreadStatusClosed
	default:
		return domain.ThreadStatusNew
	}
}

func feedbackThreadPriority(priority string) domain.ThreadPriority {
	switch strings.ToLower(strings.TrimSpace(priority)) {
	case "high", "urgent", "critical":
		return domain.ThreadPriorityUrgent
	default:
		return domain.ThreadPriorityNormal
	}
}

// ImportFeedback loads flat legacy records ahead of MigrateFeedbackData.
func (s *MigrationService) ImportFeedback(ctx context.Context, records []FeedbackInput) (int, error) {
	rows := make([]domain.Feedback, 0, len(records))
	for i, r := range records {
		title := strings.TrimSpace(r.Title)
		content := strings.TrimSpace(r.Content)
		if title == "" && content == "" {
			return 0, invalid("record %d: title or content is required", i)
		}
		at := r.CreatedAt
		if at.IsZero() {
			at = s.now()
		}
		rows = append(rows, domain.Feedback{
			ID:        newID(),
			Title:     title,
			Content:   content,
			Priority:  defaultString(r.Priority, "normal"),
			Status:    defaultString(r.Status, "pending"),
			Response:  optionalString(r.Response),
			CreatedAt: at,
		})
	}
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		for _, row := range rows {
			if err := tx.InsertFeedback(ctx, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	commonlog.Infof("event=feedback_import action=insert status=ok count=%d", len(rows))
	return len(rows), nil
}

func defaultString(v, fallback string) string {
	if v = strings.TrimSpace(v); v == "" {
		return fallback
	}
	return v
}

func isGreeting(content string) bool {
	lower := strings.ToLower(content)
	for _, fragment := range greetingFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// CleanupWelcomeMessages renames greeting-titled threads to General and
// removes auto-generated greeting messages. A removed greeting that was
// still unread comes off the reader's counter, and catalogued files that
// pointed at it keep their row but lose the link. Running it again on
// cleaned data changes nothing.
func (s *MigrationService) CleanupWelcomeMessages(ctx context.Context) (CleanupResult, error) {
	startedAt := time.Now()
	var (
		res          CleanupResult
		touched      = map[string]string{}
		fileProjects = map[string]struct{}{}
	)
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		threads, err := tx.ListThreads(ctx, repository.ThreadFilter{IncludeArchived: true})
		if err != nil {
			return err
		}
		for _, listed := range threads {
			th, err := tx.LockThread(ctx, listed.ID)
			if err != nil {
				return err
			}
			changed := false
			if welcomeTitlePattern.MatchString(th.Title) {
				th.Title = generalThreadTitle
				res.ThreadsRenamed++
				changed = true
			}

			msgs, err := tx.ListMessages(ctx, th.ID, true)
			if err != nil {
				return err
			}
			unread := map[domain.Role]map[string]struct{}{
				domain.RoleClient:    unreadMessages(msgs, domain.RoleDeveloper, th.UnreadCountClient),
				domain.RoleDeveloper: unreadMessages(msgs, domain.RoleClient, th.UnreadCountDeveloper),
			}
			dropped := map[domain.Role]int{}
			for _, m := range msgs {
				if !isGreeting(m.Content) {
					continue
				}
				detached, err := tx.DetachFilesFromMessage(ctx, m.ID)
				if err != nil {
					return err
				}
				if detached > 0 {
					res.FilesDetached += int(detached)
					fileProjects[th.ProjectID] = struct{}{}
				}
				if err := tx.DeleteMessage(ctx, m.ID); err != nil {
					return err
				}
				res.MessagesDeleted++
				changed = true
				reader := m.Author.Counterpart()
				if _, ok := unread[reader][m.ID]; ok {
					dropped[reader]++
				}
			}
			for reader, n := range dropped {
				th.SetUnread(reader, th.UnreadFor(reader)-n)
				res.UnreadRemoved += n
			}
			if changed {
				touched[th.ID] = th.ProjectID
				if err := tx.UpdateThread(ctx, th); err != nil {
					return err
				}
			}
		}
		return nil
	})
	logOutcome("welcome_cleanup", "run", startedAt, err, fmt.Sprintf("renamed=%d deleted=%d unread_removed=%d files_detached=%d", res.ThreadsRenamed, res.MessagesDeleted, res.UnreadRemoved, res.FilesDetached))
	if err != nil {
		return CleanupResult{}, err
	}
	for threadID, projectID := range touched {
		s.publish(ctx, domain.ChangeThreads, projectID, threadID, threadID)
		s.publish(ctx, domain.ChangeMessages, projectID, threadID, "")
	}
	for projectID := range fileProjects {
		s.publish(ctx, domain.ChangeFiles, projectID, "", "")
	}
	return res, nil
}

// unreadMessages returns the ids of the author's messages that the reader's
// counter currently accounts for: the last n non-private messages by author
// after the reader's most recent message.
func unreadMessages(msgs []domain.Message, author domain.Role, n int) map[string]struct{} {
	var tail []string
	for _, m := range msgs {
		if m.IsPrivate {
			continue
		}
		if m.Author != author {
			tail = tail[:0]
			continue
		}
		tail = append(tail, m.ID)
	}
	if n < len(tail) {
		tail = tail[len(tail)-n:]
	}
	out := make(map[string]struct{}, len(tail))
	for _, id := range tail {
		out[id] = struct{}{}
	}
	return out
}
