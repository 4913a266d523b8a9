package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	commonlog "portal_server/server/common/log"
	"portal_server/server/portal/domain"
	"portal_server/server/portal/repository"
	"portal_server/server/translate"
)

const (
	NotificationNewClientMessage = "new_client_message"
	notificationRecipient        = "developer"
	notificationPreviewLimit     = 280
)

type ThreadConfig struct {
	DeveloperLanguage string
}

type ThreadService struct {
	core
	dispatcher Dispatcher
	translator Translator
	devLang    string
}

func NewThreadService(store repository.Store, feed Feed, dispatcher Dispatcher, translator Translator, cfg ThreadConfig) *ThreadService {
	if dispatcher == nil {
		dispatcher = noopDispatcher{}
	}
	devLang := strings.TrimSpace(cfg.DeveloperLanguage)
	if devLang == "" {
		devLang = "en"
	}
	return &ThreadService{core: newCore(store, feed), dispatcher: dispatcher, translator: translator, devLang: devLang}
}

type FileAttachment struct {
	StorageID string `json:"storage_id"`
	FileName  string `json:"file_name"`
	FileType  string `json:"file_type"`
	FileSize  int64  `json:"file_size"`
	URL       string `json:"url"`
}

type SendMessageInput struct {
	ThreadID  string
	Author    domain.Role
	Content   string
	IsPrivate bool
	Type      domain.MessageType
	// Translate renders the content into the counterpart's language.
	Translate bool
	// SourceLanguage skips detection when set.
	SourceLanguage string
	File           *FileAttachment
}

type CreateThreadInput struct {
	ProjectID      string
	Title          string
	Priority       domain.ThreadPriority
	InitialMessage string
	CreatedBy      domain.Role
	Translate      bool
}

type DeleteThreadResult struct {
	MessagesDeleted      int64 `json:"messages_deleted"`
	NotificationsDeleted int64 `json:"notifications_deleted"`
	FilesDetached        int64 `json:"files_detached"`
}

func (s *ThreadService) SendMessage(ctx context.Context, input SendMessageInput) (domain.Message, error) {
	startedAt := time.Now()
	msg, err := s.buildMessage(input)
	if err != nil {
		return domain.Message{}, err
	}

	var th domain.Thread
	if err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		th, err = tx.GetThread(ctx, input.ThreadID)
		return err
	}); err != nil {
		return domain.Message{}, err
	}
	if input.Translate && !msg.IsPrivate {
		s.applyTranslation(ctx, th.ProjectID, input.SourceLanguage, &msg)
	}

	var pending []string
	err = s.inTxRetry(ctx, func(tx repository.Tx) error {
		locked, err := tx.LockThread(ctx, input.ThreadID)
		if err != nil {
			return err
		}
		th = locked
		pending, err = s.appendTx(ctx, tx, &th, msg, input.File)
		if err != nil {
			return err
		}
		return tx.UpdateThread(ctx, th)
	})
	logOutcome("thread_message", "send", startedAt, err, fmt.Sprintf("thread_id=%s author=%s private=%t", input.ThreadID, input.Author, input.IsPrivate))
	if err != nil {
		return domain.Message{}, err
	}

	// Private notes stay off the shared feed; project subscribers include
	// the client.
	if !msg.IsPrivate {
		s.publish(ctx, domain.ChangeMessages, th.ProjectID, th.ID, msg.ID)
		s.publish(ctx, domain.ChangeThreads, th.ProjectID, th.ID, th.ID)
		if input.File != nil {
			s.publish(ctx, domain.ChangeFiles, th.ProjectID, "", "")
		}
	}
	s.dispatcher.Enqueue(ctx, pending...)
	return msg, nil
}

func (s *ThreadService) buildMessage(input SendMessageInput) (domain.Message, error) {
	if !input.Author.Valid() {
		return domain.Message{}, invalid("author must be client or developer")
	}
	if strings.TrimSpace(input.ThreadID) == "" {
		return domain.Message{}, invalid("thread_id is required")
	}
	msgType := input.Type
	if msgType == "" {
		msgType = domain.MessageTypeText
		if input.File != nil {
			msgType = domain.MessageTypeFile
		}
	}
	if !msgType.Valid() {
		return domain.Message{}, invalid("unknown message type %q", msgType)
	}
	if input.IsPrivate && input.Author != domain.RoleDeveloper {
		return domain.Message{}, invalid("only developers can write private notes")
	}
	content := strings.TrimSpace(input.Content)
	if content == "" && input.File == nil {
		return domain.Message{}, invalid("content is required")
	}

	msg := domain.Message{
		ID:        newID(),
		ThreadID:  input.ThreadID,
		Author:    input.Author,
		Content:   content,
		Type:      msgType,
		IsPrivate: input.IsPrivate,
		CreatedAt: s.now(),
	}
	if input.File != nil {
		if strings.TrimSpace(input.File.StorageID) == "" || strings.TrimSpace(input.File.FileName) == "" {
			return domain.Message{}, invalid("file attachment needs storage_id and file_name")
		}
		msg.Type = domain.MessageTypeFile
		msg.FileID = ptr(input.File.StorageID)
		msg.FileName = ptr(input.File.FileName)
		msg.FileType = ptr(input.File.FileType)
		msg.FileSize = ptr(input.File.FileSize)
		msg.FileURL = optionalString(input.File.URL)
		if msg.Content == "" {
			msg.Content = input.File.FileName
		}
	}
	return msg, nil
}

// applyTranslation runs outside any transaction. A failed lookup of the
// client profile only disables translation.
func (s *ThreadService) applyTranslation(ctx context.Context, projectID, sourceLang string, msg *domain.Message) {
	if s.translator == nil {
		return
	}
	clientLang, err := s.clientLanguage(ctx, projectID)
	if err != nil {
		commonlog.Warnf("event=thread_message action=translate status=skipped project_id=%s error=%v", projectID, err)
		return
	}

	authorLang, targetLang := s.devLang, clientLang
	if msg.Author == domain.RoleClient {
		authorLang, targetLang = clientLang, s.devLang
	}
	source := strings.TrimSpace(sourceLang)
	if source == "" {
		source = translate.DetectLanguage(msg.Content, authorLang, targetLang)
		if source == translate.Undetermined {
			source = authorLang
		}
	}

	res := s.translator.Translate(ctx, msg.Content, source, targetLang)
	msg.OriginalContent = ptr(msg.Content)
	msg.OriginalLanguage = ptr(source)
	msg.TargetLanguage = ptr(targetLang)
	msg.TranslationEnabled = res.Translated()
	if res.Translated() {
		msg.TranslatedContent = ptr(res.TranslatedText)
	}
	if res.Error != "" {
		commonlog.Warnf("event=thread_message action=translate status=degraded provider=%s source=%s target=%s error=%s", res.Provider, source, targetLang, res.Error)
	}
}

func (s *ThreadService) clientLanguage(ctx context.Context, projectID string) (string, error) {
	var lang string
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		project, err := tx.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		client, err := tx.GetClient(ctx, project.ClientID)
		if err != nil {
			return err
		}
		lang = client.Language
		return nil
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(lang) == "" {
		lang = "en"
	}
	return lang, nil
}

// appendTx inserts msg into the locked thread th and applies the unread rule.
// The caller persists th. It returns the ids of notification rows written.
func (s *ThreadService) appendTx(ctx context.Context, tx repository.Tx, th *domain.Thread, msg domain.Message, file *FileAttachment) ([]string, error) {
	msg.ThreadID = th.ID
	if err := appendMessage(ctx, tx, th, msg); err != nil {
		return nil, err
	}

	// Attachments on private notes are not catalogued; the project file
	// view is shared with the client.
	if file != nil && !msg.IsPrivate {
		_, err := addFileTx(ctx, tx, s.now(), AddFileInput{
			ProjectID:  th.ProjectID,
			StorageID:  file.StorageID,
			FileName:   file.FileName,
			FileType:   file.FileType,
			FileSize:   file.FileSize,
			MessageID:  &msg.ID,
			UploadedBy: msg.Author,
		})
		if err != nil {
			return nil, fmt.Errorf("catalogue attachment: %w", err)
		}
	}

	if msg.Author != domain.RoleClient || msg.IsPrivate || msg.Type == domain.MessageTypeStatusUpdate {
		return nil, nil
	}
	project, err := tx.GetProject(ctx, th.ProjectID)
	if err != nil {
		return nil, err
	}
	n := domain.Notification{
		ID:        newID(),
		Type:      NotificationNewClientMessage,
		Recipient: notificationRecipient,
		Message:   notificationText(project, *th, msg),
		ThreadID:  ptr(th.ID),
		ProjectID: ptr(th.ProjectID),
		Status:    domain.NotificationPending,
		CreatedAt: msg.CreatedAt,
		UpdatedAt: msg.CreatedAt,
	}
	if err := tx.InsertNotification(ctx, n); err != nil {
		return nil, err
	}
	return []string{n.ID}, nil
}

// appendMessage is the single place where unread counters move on a new
// message. Private notes leave both counters alone; otherwise the
// counterpart gains one unread and the author is caught up.
func appendMessage(ctx context.Context, tx repository.Tx, th *domain.Thread, msg domain.Message) error {
	if err := tx.InsertMessage(ctx, msg); err != nil {
		return err
	}
	th.LastActivity = msg.CreatedAt
	if !msg.IsPrivate {
		other := msg.Author.Counterpart()
		th.SetUnread(other, th.UnreadFor(other)+1)
		th.SetUnread(msg.Author, 0)
	}

	project, err := tx.GetProject(ctx, th.ProjectID)
	if err != nil {
		return err
	}
	if !msg.CreatedAt.After(project.UpdatedAt) {
		return nil
	}
	project.UpdatedAt = msg.CreatedAt
	return tx.UpdateProject(ctx, project)
}

func notificationText(project domain.Project, th domain.Thread, msg domain.Message) string {
	preview := msg.Content
	if msg.HasFile() && msg.FileName != nil {
		preview = "📎 " + *msg.FileName
	}
	if r := []rune(preview); len(r) > notificationPreviewLimit {
		preview = string(r[:notificationPreviewLimit]) + "…"
	}
	return fmt.Sprintf("💬 New message in %s / %s\n\n%s", project.Name, th.Title, preview)
}

func (s *ThreadService) CreateThread(ctx context.Context, input CreateThreadInput) (domain.Thread, error) {
	startedAt := time.Now()
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return domain.Thread{}, invalid("title is required")
	}
	if !input.CreatedBy.Valid() {
		return domain.Thread{}, invalid("created_by must be client or developer")
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.ThreadPriorityNormal
	}
	if !priority.Valid() {
		return domain.Thread{}, invalid("unknown priority %q", priority)
	}

	now := s.now()
	th := domain.Thread{
		ID:           newID(),
		ProjectID:    input.ProjectID,
		Title:        title,
		Status:       domain.ThreadStatusNew,
		Priority:     priority,
		CreatedBy:    input.CreatedBy,
		LastActivity: now,
		CreatedAt:    now,
	}

	var first *domain.Message
	if strings.TrimSpace(input.InitialMessage) != "" {
		msg, err := s.buildMessage(SendMessageInput{ThreadID: th.ID, Author: input.CreatedBy, Content: input.InitialMessage})
		if err != nil {
			return domain.Thread{}, err
		}
		if input.Translate {
			s.applyTranslation(ctx, input.ProjectID, "", &msg)
		}
		first = &msg
	}

	var pending []string
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetProject(ctx, input.ProjectID); err != nil {
			return err
		}
		if err := tx.InsertThread(ctx, th); err != nil {
			return err
		}
		if first == nil {
			return nil
		}
		var err error
		pending, err = s.appendTx(ctx, tx, &th, *first, nil)
		if err != nil {
			return err
		}
		return tx.UpdateThread(ctx, th)
	})
	logOutcome("thread", "create", startedAt, err, fmt.Sprintf("project_id=%s created_by=%s initial_message=%t", input.ProjectID, input.CreatedBy, first != nil))
	if err != nil {
		return domain.Thread{}, err
	}

	s.publish(ctx, domain.ChangeThreads, th.ProjectID, th.ID, th.ID)
	if first != nil {
		s.publish(ctx, domain.ChangeMessages, th.ProjectID, th.ID, first.ID)
	}
	s.dispatcher.Enqueue(ctx, pending...)
	return th, nil
}

// MarkThreadAsRead zeroes the reader's counter. Reading an already read
// thread writes nothing.
func (s *ThreadService) MarkThreadAsRead(ctx context.Context, threadID string, reader domain.Role) (domain.Thread, error) {
	if !reader.Valid() {
		return domain.Thread{}, invalid("reader must be client or developer")
	}
	var (
		th      domain.Thread
		changed bool
	)
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		th, err = tx.LockThread(ctx, threadID)
		if err != nil {
			return err
		}
		if th.UnreadFor(reader) == 0 {
			return nil
		}
		th.SetUnread(reader, 0)
		changed = true
		return tx.UpdateThread(ctx, th)
	})
	if err != nil {
		return domain.Thread{}, err
	}
	if changed {
		s.publish(ctx, domain.ChangeThreads, th.ProjectID, th.ID, th.ID)
	}
	return th, nil
}

func (s *ThreadService) UpdateThreadStatus(ctx context.Context, threadID string, status domain.ThreadStatus, updatedBy domain.Role, note string) (domain.Thread, error) {
	if !status.Valid() {
		return domain.Thread{}, invalid("unknown thread status %q", status)
	}
	if !updatedBy.Valid() {
		return domain.Thread{}, invalid("updated_by must be client or developer")
	}

	var (
		th      domain.Thread
		msgID   string
		changed bool
	)
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		th, err = tx.LockThread(ctx, threadID)
		if err != nil {
			return err
		}
		if th.Status == status {
			return nil
		}

		content := fmt.Sprintf("Status changed from %s to %s", statusLabel(th.Status), statusLabel(status))
		if note = strings.TrimSpace(note); note != "" {
			content += "\n\n" + note
		}
		msg := domain.Message{
			ID:        newID(),
			ThreadID:  th.ID,
			Author:    updatedBy,
			Content:   content,
			Type:      domain.MessageTypeStatusUpdate,
			CreatedAt: s.now(),
		}
		if err := appendMessage(ctx, tx, &th, msg); err != nil {
			return err
		}
		th.Status = status
		msgID = msg.ID
		changed = true
		return tx.UpdateThread(ctx, th)
	})
	if err != nil {
		return domain.Thread{}, err
	}
	if changed {
		commonlog.Infof("event=thread action=status status=ok thread_id=%s new_status=%s updated_by=%s", th.ID, status, updatedBy)
		s.publish(ctx, domain.ChangeMessages, th.ProjectID, th.ID, msgID)
		s.publish(ctx, domain.ChangeThreads, th.ProjectID, th.ID, th.ID)
	}
	return th, nil
}

func statusLabel(status domain.ThreadStatus) string {
	return strings.ReplaceAll(string(status), "_", " ")
}

func (s *ThreadService) ToggleThreadArchive(ctx context.Context, threadID string, archived bool) (domain.Thread, error) {
	var th domain.Thread
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		th, err = tx.LockThread(ctx, threadID)
		if err != nil {
			return err
		}
		if th.IsArchived == archived {
			return nil
		}
		th.IsArchived = archived
		return tx.UpdateThread(ctx, th)
	})
	if err != nil {
		return domain.Thread{}, err
	}
	s.publish(ctx, domain.ChangeThreads, th.ProjectID, th.ID, th.ID)
	return th, nil
}

// DeleteThread removes the thread with its messages and notifications in one
// transaction. Catalogued files stay in the project and lose their message
// link.
func (s *ThreadService) DeleteThread(ctx context.Context, threadID string) (DeleteThreadResult, error) {
	startedAt := time.Now()
	var (
		res DeleteThreadResult
		th  domain.Thread
	)
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		th, err = tx.LockThread(ctx, threadID)
		if err != nil {
			return err
		}
		if res.NotificationsDeleted, err = tx.DeleteNotificationsByThread(ctx, threadID); err != nil {
			return err
		}
		if res.FilesDetached, err = tx.DetachFilesFromThread(ctx, threadID); err != nil {
			return err
		}
		if res.MessagesDeleted, err = tx.DeleteMessagesByThread(ctx, threadID); err != nil {
			return err
		}
		return tx.DeleteThread(ctx, threadID)
	})
	logOutcome("thread", "delete", startedAt, err, fmt.Sprintf("thread_id=%s messages=%d notifications=%d files_detached=%d", threadID, res.MessagesDeleted, res.NotificationsDeleted, res.FilesDetached))
	if err != nil {
		return DeleteThreadResult{}, err
	}
	s.publish(ctx, domain.ChangeThreads, th.ProjectID, th.ID, th.ID)
	s.publish(ctx, domain.ChangeMessages, th.ProjectID, th.ID, "")
	if res.FilesDetached > 0 {
		s.publish(ctx, domain.ChangeFiles, th.ProjectID, "", "")
	}
	return res, nil
}

// GetTotalUnreadCount sums the viewer's counters over active threads. It is
// recomputed on every call.
func (s *ThreadService) GetTotalUnreadCount(ctx context.Context, viewer domain.Role) (int64, error) {
	if !viewer.Valid() {
		return 0, invalid("viewer must be client or developer")
	}
	var total int64
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		total, err = tx.SumUnread(ctx, viewer)
		return err
	})
	return total, err
}

func (s *ThreadService) GetThread(ctx context.Context, threadID string) (domain.Thread, error) {
	var th domain.Thread
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		th, err = tx.GetThread(ctx, threadID)
		return err
	})
	return th, err
}

func (s *ThreadService) ListThreads(ctx context.Context, projectID string, includeArchived bool) ([]domain.Thread, error) {
	var items []domain.Thread
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetProject(ctx, projectID); err != nil {
			return err
		}
		var err error
		items, err = tx.ListThreads(ctx, repository.ThreadFilter{ProjectID: projectID, IncludeArchived: includeArchived})
		return err
	})
	return items, err
}

// ListMessages returns the thread oldest first. Clients never see private
// notes.
func (s *ThreadService) ListMessages(ctx context.Context, threadID string, viewer domain.Role) ([]domain.Message, error) {
	if !viewer.Valid() {
		return nil, invalid("viewer must be client or developer")
	}
	var items []domain.Message
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetThread(ctx, threadID); err != nil {
			return err
		}
		var err error
		items, err = tx.ListMessages(ctx, threadID, viewer == domain.RoleDeveloper)
		return err
	})
	return items, err
}

func (s *ThreadService) EditMessage(ctx context.Context, messageID string, editor domain.Role, content string) (domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Message{}, invalid("content is required")
	}
	var (
		msg domain.Message
		th  domain.Thread
	)
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		msg, err = s.ownMessage(ctx, tx, messageID, editor)
		if err != nil {
			return err
		}
		if th, err = tx.GetThread(ctx, msg.ThreadID); err != nil {
			return err
		}
		now := s.now()
		msg.Content = content
		msg.IsEdited = true
		msg.EditedAt = &now
		msg.TranslatedContent = nil
		msg.TranslationEnabled = false
		return tx.UpdateMessage(ctx, msg)
	})
	if err != nil {
		return domain.Message{}, err
	}
	if !msg.IsPrivate {
		s.publish(ctx, domain.ChangeMessages, th.ProjectID, th.ID, msg.ID)
	}
	return msg, nil
}

// DeleteMessage soft-deletes: the row stays in place with its content
// blanked. Unread counters are not touched.
func (s *ThreadService) DeleteMessage(ctx context.Context, messageID string, editor domain.Role) (domain.Message, error) {
	var (
		msg domain.Message
		th  domain.Thread
	)
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		msg, err = s.ownMessage(ctx, tx, messageID, editor)
		if err != nil {
			return err
		}
		if th, err = tx.GetThread(ctx, msg.ThreadID); err != nil {
			return err
		}
		now := s.now()
		msg.Content = ""
		msg.IsDeleted = true
		msg.DeletedAt = &now
		msg.TranslatedContent = nil
		msg.TranslationEnabled = false
		return tx.UpdateMessage(ctx, msg)
	})
	if err != nil {
		return domain.Message{}, err
	}
	if !msg.IsPrivate {
		s.publish(ctx, domain.ChangeMessages, th.ProjectID, th.ID, msg.ID)
	}
	return msg, nil
}

func (s *ThreadService) ownMessage(ctx context.Context, tx repository.Tx, messageID string, editor domain.Role) (domain.Message, error) {
	msg, err := tx.GetMessage(ctx, messageID)
	if err != nil {
		return domain.Message{}, err
	}
	if msg.Author != editor {
		return domain.Message{}, invalid("only the author can change a message")
	}
	if msg.IsDeleted {
		return domain.Message{}, invalid("message is deleted")
	}
	if msg.Type != domain.MessageTypeText && msg.Type != domain.MessageTypeFile {
		return domain.Message{}, invalid("%s messages cannot be changed", msg.Type)
	}
	return msg, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
