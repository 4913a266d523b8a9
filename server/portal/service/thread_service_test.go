package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"portal_server/server/portal/domain"
	"portal_server/server/portal/repository"
	"portal_server/server/translate"
)

func TestSendMessageUnreadCounters(t *testing.T) {
	env := setupEnv(t)
	project := env.seedProject(t, "en")
	th := env.seedThread(t, project.ID)

	env.send(t, th.ID, domain.RoleClient, "first", false)
	env.send(t, th.ID, domain.RoleClient, "second", false)
	assertCounters(t, env.thread(t, th.ID), 0, 2)

	env.send(t, th.ID, domain.RoleDeveloper, "reply", false)
	assertCounters(t, env.thread(t, th.ID), 1, 0)

	env.send(t, th.ID, domain.RoleDeveloper, "internal note", true)
	assertCounters(t, env.thread(t, th.ID), 1, 0)

	if _, err := env.threads.MarkThreadAsRead(context.Background(), th.ID, domain.RoleClient); err != nil {
		t.Fatalf("MarkThreadAsRead: %v", err)
	}
	assertCounters(t, env.thread(t, th.ID), 0, 0)
}

func TestCounterScenarioFromEmptyThread(t *testing.T) {
	env := setupEnv(t)
	project := env.seedProject(t, "en")
	th := env.seedThread(t, project.ID)

	steps := []struct {
		author          domain.Role
		private         bool
		client, develop int
	}{
		{domain.RoleClient, false, 0, 1},
		{domain.RoleClient, false, 0, 2},
		{domain.RoleDeveloper, true, 0, 2},
		{domain.RoleDeveloper, false, 1, 0},
		{domain.RoleDeveloper, false, 2, 0},
		{domain.RoleClient, false, 0, 1},
	}
	for i, step := range steps {
		env.send(t, th.ID, step.author, "step", step.private)
		got := env.thread(t, th.ID)
		if got.UnreadCountClient != step.client || got.UnreadCountDeveloper != step.develop {
			t.Fatalf("step %d: counters = %d/%d, want %d/%d", i, got.UnreadCountClient, got.UnreadCountDeveloper, step.client, step.develop)
		}
	}
}

func TestMarkThreadAsReadAlreadyReadIsNoop(t *testing.T) {
	env := setupEnv(t)
	project := env.seedProject(t, "en")
	th := env.seedThread(t, project.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, err := env.feed.Subscribe(ctx, project.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if _, err := env.threads.MarkThreadAsRead(context.Background(), th.ID, domain.RoleDeveloper); err != nil {
		t.Fatalf("MarkThreadAsRead: %v", err)
	}
	select {
	case c := <-changes:
		t.Errorf("unexpected change published: %+v", c)
	default:
	}
}

func TestTotalUnreadExcludesArchived(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "en")
	a := env.seedThread(t, project.ID)
	b := env.seedThread(t, project.ID)

	env.send(t, a.ID, domain.RoleClient, "one", false)
	env.send(t, b.ID, domain.RoleClient, "two", false)
	env.send(t, b.ID, domain.RoleClient, "three", false)

	total, err := env.threads.GetTotalUnreadCount(ctx, domain.RoleDeveloper)
	if err != nil {
		t.Fatalf("GetTotalUnreadCount: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}

	if _, err := env.threads.ToggleThreadArchive(ctx, b.ID, true); err != nil {
		t.Fatalf("ToggleThreadArchive: %v", err)
	}
	total, err = env.threads.GetTotalUnreadCount(ctx, domain.RoleDeveloper)
	if err != nil {
		t.Fatalf("GetTotalUnreadCount: %v", err)
	}
	if total != 1 {
		t.Errorf("total after archive = %d, want 1", total)
	}

	if _, err := env.threads.MarkThreadAsRead(ctx, a.ID, domain.RoleDeveloper); err != nil {
		t.Fatalf("MarkThreadAsRead: %v", err)
	}
	total, _ = env.threads.GetTotalUnreadCount(ctx, domain.RoleDeveloper)
	if total != 0 {
		t.Errorf("total after read = %d, want 0", total)
	}
}

func TestPrivateNotes(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "en")
	th := env.seedThread(t, project.ID)

	_, err := env.threads.SendMessage(ctx, SendMessageInput{ThreadID: th.ID, Author: domain.RoleClient, Content: "secret", IsPrivate: true})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("client private note err = %v, want ErrValidation", err)
	}

	env.send(t, th.ID, domain.RoleDeveloper, "note to self", true)
	env.send(t, th.ID, domain.RoleDeveloper, "hello", false)

	clientView, err := env.threads.ListMessages(ctx, th.ID, domain.RoleClient)
	if err != nil {
		t.Fatalf("ListMessages(client): %v", err)
	}
	if len(clientView) != 1 || clientView[0].Content != "hello" {
		t.Errorf("client view = %+v, want only the public message", clientView)
	}
	devView, err := env.threads.ListMessages(ctx, th.ID, domain.RoleDeveloper)
	if err != nil {
		t.Fatalf("ListMessages(developer): %v", err)
	}
	if len(devView) != 2 || devView[0].Content != "note to self" {
		t.Errorf("developer view = %+v, want both messages oldest first", devView)
	}
}

func TestPrivateNoteAttachmentStaysOffProjectFiles(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "en")
	th := env.seedThread(t, project.ID)

	_, err := env.threads.SendMessage(ctx, SendMessageInput{
		ThreadID:  th.ID,
		Author:    domain.RoleDeveloper,
		IsPrivate: true,
		File: &FileAttachment{
			StorageID: "projects/x/1/margin-calc.pdf",
			FileName:  "margin-calc.pdf",
			FileType:  "application/pdf",
			FileSize:  2048,
		},
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	files, err := env.files.ListFiles(ctx, project.ID, nil, "")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("project files = %+v, want none", files)
	}
	n, err := env.files.SyncMessageFilesToProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("SyncMessageFilesToProject: %v", err)
	}
	if n != 0 {
		t.Errorf("synced = %d, want 0", n)
	}
	if files, _ := env.files.ListFiles(ctx, project.ID, nil, ""); len(files) != 0 {
		t.Errorf("project files after sync = %d, want 0", len(files))
	}
}

func TestClientMessageWritesNotificationOutbox(t *testing.T) {
	env := setupEnv(t)
	project := env.seedProject(t, "en")
	th := env.seedThread(t, project.ID)

	env.send(t, th.ID, domain.RoleDeveloper, "developer message", false)
	env.send(t, th.ID, domain.RoleClient, "need a change", false)

	ids := env.dispatcher.enqueued()
	if len(ids) != 1 {
		t.Fatalf("enqueued = %v, want one notification", ids)
	}
	env.inTx(t, func(tx repository.Tx) error {
		n, err := tx.GetNotification(context.Background(), ids[0])
		if err != nil {
			return err
		}
		if n.Status != domain.NotificationPending {
			t.Errorf("Status = %s, want pending", n.Status)
		}
		if n.Type != NotificationNewClientMessage || n.Recipient != "developer" {
			t.Errorf("notification = %+v", n)
		}
		if !strings.Contains(n.Message, "need a change") || !strings.Contains(n.Message, th.Title) {
			t.Errorf("Message = %q, want preview with thread title", n.Message)
		}
		return nil
	})
}

func TestUpdateThreadStatus(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "en")
	th := env.seedThread(t, project.ID)

	updated, err := env.threads.UpdateThreadStatus(ctx, th.ID, domain.ThreadStatusInProgress, domain.RoleDeveloper, "Starting today")
	if err != nil {
		t.Fatalf("UpdateThreadStatus: %v", err)
	}
	if updated.Status != domain.ThreadStatusInProgress {
		t.Errorf("Status = %s, want in_progress", updated.Status)
	}
	assertCounters(t, updated, 1, 0)

	msgs, _ := env.threads.ListMessages(ctx, th.ID, domain.RoleClient)
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1 status update", len(msgs))
	}
	if msgs[0].Type != domain.MessageTypeStatusUpdate {
		t.Errorf("Type = %s, want status_update", msgs[0].Type)
	}
	if want := "Status changed from new to in progress\n\nStarting today"; msgs[0].Content != want {
		t.Errorf("Content = %q, want %q", msgs[0].Content, want)
	}

	// Same status again writes nothing.
	if _, err := env.threads.UpdateThreadStatus(ctx, th.ID, domain.ThreadStatusInProgress, domain.RoleDeveloper, ""); err != nil {
		t.Fatalf("UpdateThreadStatus repeat: %v", err)
	}
	msgs, _ = env.threads.ListMessages(ctx, th.ID, domain.RoleClient)
	if len(msgs) != 1 {
		t.Errorf("messages after repeat = %d, want 1", len(msgs))
	}
	if got := env.thread(t, th.ID); got.UnreadCountClient != 1 {
		t.Errorf("client unread after repeat = %d, want 1", got.UnreadCountClient)
	}
	if len(env.dispatcher.enqueued()) != 0 {
		t.Errorf("status updates must not notify")
	}
}

func TestEditAndDeleteMessage(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "en")
	th := env.seedThread(t, project.ID)
	msg := env.send(t, th.ID, domain.RoleClient, "typo", false)

	if _, err := env.threads.EditMessage(ctx, msg.ID, domain.RoleDeveloper, "hijack"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("EditMessage by non-author err = %v, want ErrValidation", err)
	}

	edited, err := env.threads.EditMessage(ctx, msg.ID, domain.RoleClient, "fixed")
	if err != nil {
		t.Fatalf("EditMessage: %v", err)
	}
	if !edited.IsEdited || edited.EditedAt == nil || edited.Content != "fixed" {
		t.Errorf("edited = %+v", edited)
	}

	deleted, err := env.threads.DeleteMessage(ctx, msg.ID, domain.RoleClient)
	if err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	if !deleted.IsDeleted || deleted.Content != "" {
		t.Errorf("deleted = %+v", deleted)
	}
	msgs, _ := env.threads.ListMessages(ctx, th.ID, domain.RoleDeveloper)
	if len(msgs) != 1 {
		t.Errorf("soft delete removed the row: %d messages", len(msgs))
	}
	assertCounters(t, env.thread(t, th.ID), 0, 1)

	if _, err := env.threads.EditMessage(ctx, msg.ID, domain.RoleClient, "again"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("EditMessage on deleted err = %v, want ErrValidation", err)
	}
}

func TestTranslationDegradesWhenProvidersFail(t *testing.T) {
	env := setupEnv(t)
	env.translator.result = translate.Result{Success: false, Provider: translate.ProviderPassthrough, Error: "all providers failed", TranslatedText: "[EN→ES] hello"}
	project := env.seedProject(t, "es")
	th := env.seedThread(t, project.ID)

	msg, err := env.threads.SendMessage(context.Background(), SendMessageInput{ThreadID: th.ID, Author: domain.RoleDeveloper, Content: "hello", Translate: true})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.TranslationEnabled {
		t.Errorf("TranslationEnabled = true, want false")
	}
	if msg.TranslatedContent != nil {
		t.Errorf("TranslatedContent = %q, want nil", *msg.TranslatedContent)
	}
	if msg.Content != "hello" {
		t.Errorf("Content = %q, want original text", msg.Content)
	}
	if env.translator.target != "es" {
		t.Errorf("target = %q, want es", env.translator.target)
	}
}

func TestTranslationIntoClientLanguage(t *testing.T) {
	env := setupEnv(t)
	env.translator.result = translate.Result{Success: true, Provider: translate.ProviderPrimary, TranslatedText: "hola"}
	project := env.seedProject(t, "es")
	th := env.seedThread(t, project.ID)

	msg, err := env.threads.SendMessage(context.Background(), SendMessageInput{ThreadID: th.ID, Author: domain.RoleDeveloper, Content: "hello", Translate: true, SourceLanguage: "en"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !msg.TranslationEnabled || msg.TranslatedContent == nil || *msg.TranslatedContent != "hola" {
		t.Errorf("translation = %+v", msg)
	}
	if msg.OriginalLanguage == nil || *msg.OriginalLanguage != "en" {
		t.Errorf("OriginalLanguage = %v, want en", msg.OriginalLanguage)
	}
	if env.translator.source != "en" || env.translator.target != "es" {
		t.Errorf("langpair = %s→%s, want en→es", env.translator.source, env.translator.target)
	}
}

func TestPrivateNoteIsNeverTranslated(t *testing.T) {
	env := setupEnv(t)
	project := env.seedProject(t, "es")
	th := env.seedThread(t, project.ID)

	_, err := env.threads.SendMessage(context.Background(), SendMessageInput{ThreadID: th.ID, Author: domain.RoleDeveloper, Content: "note", IsPrivate: true, Translate: true})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if env.translator.calls != 0 {
		t.Errorf("translator calls = %d, want 0", env.translator.calls)
	}
}

func TestCreateThreadWithInitialMessage(t *testing.T) {
	env := setupEnv(t)
	project := env.seedProject(t, "en")

	th, err := env.threads.CreateThread(context.Background(), CreateThreadInput{
		ProjectID:      project.ID,
		Title:          "Logo feedback",
		InitialMessage: "Can we try blue?",
		CreatedBy:      domain.RoleClient,
	})
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if th.Status != domain.ThreadStatusNew || th.Priority != domain.ThreadPriorityNormal {
		t.Errorf("defaults = %s/%s", th.Status, th.Priority)
	}
	assertCounters(t, env.thread(t, th.ID), 0, 1)
	if len(env.dispatcher.enqueued()) != 1 {
		t.Errorf("enqueued = %v, want the initial client message", env.dispatcher.enqueued())
	}

	if _, err := env.threads.CreateThread(context.Background(), CreateThreadInput{ProjectID: "missing", Title: "x", CreatedBy: domain.RoleClient}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("CreateThread for missing project err = %v, want ErrNotFound", err)
	}
}

func TestSendMessageBumpsProjectUpdatedAt(t *testing.T) {
	env := setupEnv(t)
	project := env.seedProject(t, "en")
	th := env.seedThread(t, project.ID)

	msg := env.send(t, th.ID, domain.RoleClient, "ping", false)
	got, err := env.projects.GetProject(context.Background(), project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if !got.UpdatedAt.Equal(msg.CreatedAt) {
		t.Errorf("project UpdatedAt = %v, want %v", got.UpdatedAt, msg.CreatedAt)
	}
	if got := env.thread(t, th.ID); !got.LastActivity.Equal(msg.CreatedAt) {
		t.Errorf("LastActivity = %v, want %v", got.LastActivity, msg.CreatedAt)
	}
}

func TestDeleteThreadCascade(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "en")
	th := env.seedThread(t, project.ID)

	env.send(t, th.ID, domain.RoleClient, "hi", false)
	_, err := env.threads.SendMessage(ctx, SendMessageInput{
		ThreadID: th.ID,
		Author:   domain.RoleClient,
		File:     &FileAttachment{StorageID: "projects/p/1/logo.png", FileName: "logo.png", FileType: "image/png", FileSize: 2048},
	})
	if err != nil {
		t.Fatalf("SendMessage(file): %v", err)
	}

	res, err := env.threads.DeleteThread(ctx, th.ID)
	if err != nil {
		t.Fatalf("DeleteThread: %v", err)
	}
	if res.MessagesDeleted != 2 || res.NotificationsDeleted != 2 || res.FilesDetached != 1 {
		t.Errorf("result = %+v, want 2 messages, 2 notifications, 1 file detached", res)
	}
	if _, err := env.threads.GetThread(ctx, th.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetThread after delete err = %v, want ErrNotFound", err)
	}

	files, err := env.files.ListFiles(ctx, project.ID, nil, "")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 1 || files[0].MessageID != nil {
		t.Errorf("files = %+v, want one file with no message link", files)
	}
	env.inTx(t, func(tx repository.Tx) error {
		items, err := tx.ListNotifications(ctx, repository.NotificationFilter{})
		if err != nil {
			return err
		}
		if len(items) != 0 {
			t.Errorf("notifications left = %d, want 0", len(items))
		}
		return nil
	})
}

func TestSendMessageToMissingThread(t *testing.T) {
	env := setupEnv(t)
	_, err := env.threads.SendMessage(context.Background(), SendMessageInput{ThreadID: "nope", Author: domain.RoleClient, Content: "hi"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
