package service

import (
	"context"
	"testing"
	"time"

	"portal_server/server/portal/domain"
	"portal_server/server/portal/repository"
)

func TestMigrateFeedbackData(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	at := time.Date(2024, 11, 2, 10, 0, 0, 0, time.UTC)

	n, err := env.migrations.ImportFeedback(ctx, []FeedbackInput{
		{Title: "Logo too small", Content: "Please make it bigger", Priority: "high", Status: "resolved", Response: "Done, check v2", CreatedAt: at},
		{Title: "Typo on page 3", Content: "teh -> the", CreatedAt: at.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("ImportFeedback: %v", err)
	}
	if n != 2 {
		t.Fatalf("imported = %d, want 2", n)
	}

	res, err := env.migrations.MigrateFeedbackData(ctx, MigrateFeedbackInput{ClientName: "Ana", Language: "ES"})
	if err != nil {
		t.Fatalf("MigrateFeedbackData: %v", err)
	}
	if res.AlreadyMigrated || res.ThreadsCreated != 2 || res.ProjectID == "" {
		t.Fatalf("result = %+v", res)
	}

	client, err := env.projects.GetClient(ctx, res.ClientID)
	if err != nil {
		t.Fatalf("GetClient: %v", err)
	}
	if client.Language != "es" {
		t.Errorf("Language = %q, want es", client.Language)
	}
	project, _ := env.projects.GetProject(ctx, res.ProjectID)
	if project.Name != "Main Project" {
		t.Errorf("project name = %q", project.Name)
	}

	threads, err := env.threads.ListThreads(ctx, res.ProjectID, true)
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	byTitle := map[string]domain.Thread{}
	for _, th := range threads {
		byTitle[th.Title] = th
	}
	logo := byTitle["Logo too small"]
	if logo.Status != domain.ThreadStatusResolved || logo.Priority != domain.ThreadPriorityUrgent {
		t.Errorf("logo thread = %s/%s, want resolved/urgent", logo.Status, logo.Priority)
	}
	assertCounters(t, logo, 1, 0)
	typo := byTitle["Typo on page 3"]
	if typo.Status != domain.ThreadStatusNew {
		t.Errorf("typo status = %s, want new", typo.Status)
	}
	assertCounters(t, typo, 0, 1)

	msgs, _ := env.threads.ListMessages(ctx, logo.ID, domain.RoleDeveloper)
	if len(msgs) != 2 || msgs[0].Author != domain.RoleClient || msgs[1].Content != "Done, check v2" {
		t.Errorf("logo messages = %+v", msgs)
	}

	legacy := env.store.LegacyFeedback()
	if len(legacy) != 2 {
		t.Errorf("legacy rows = %d, want 2", len(legacy))
	}
	env.inTx(t, func(tx repository.Tx) error {
		left, err := tx.ListFeedback(ctx)
		if err != nil {
			return err
		}
		if len(left) != 0 {
			t.Errorf("feedback rows left = %d, want 0", len(left))
		}
		return nil
	})
}

func TestMigrateFeedbackDataIdempotent(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	if _, err := env.migrations.ImportFeedback(ctx, []FeedbackInput{{Title: "One", Content: "first"}}); err != nil {
		t.Fatalf("ImportFeedback: %v", err)
	}

	first, err := env.migrations.MigrateFeedbackData(ctx, MigrateFeedbackInput{ClientName: "Ana"})
	if err != nil {
		t.Fatalf("MigrateFeedbackData: %v", err)
	}
	second, err := env.migrations.MigrateFeedbackData(ctx, MigrateFeedbackInput{ClientName: "Ana"})
	if err != nil {
		t.Fatalf("MigrateFeedbackData repeat: %v", err)
	}
	if !second.AlreadyMigrated || second.ClientID != first.ClientID || second.ThreadsCreated != 0 {
		t.Errorf("second = %+v, want already migrated with client %s", second, first.ClientID)
	}

	clients, _ := env.projects.ListClients(ctx)
	projects, _ := env.projects.ListProjects(ctx, true)
	if len(clients) != 1 || len(projects) != 1 {
		t.Errorf("clients=%d projects=%d, want 1 each", len(clients), len(projects))
	}
}

func TestCleanupWelcomeMessages(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "en")
	th, err := env.threads.CreateThread(ctx, CreateThreadInput{ProjectID: project.ID, Title: "👋 Welcome to your Project Portal!", CreatedBy: domain.RoleDeveloper})
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	env.send(t, th.ID, domain.RoleDeveloper, "Welcome to your project portal! This is where we'll communicate about your project.", false)
	env.send(t, th.ID, domain.RoleDeveloper, "First draft is attached.", false)
	assertCounters(t, env.thread(t, th.ID), 2, 0)

	res, err := env.migrations.CleanupWelcomeMessages(ctx)
	if err != nil {
		t.Fatalf("CleanupWelcomeMessages: %v", err)
	}
	if res != (CleanupResult{ThreadsRenamed: 1, MessagesDeleted: 1, UnreadRemoved: 1}) {
		t.Errorf("result = %+v", res)
	}
	got := env.thread(t, th.ID)
	if got.Title != "General" {
		t.Errorf("Title = %q, want General", got.Title)
	}
	assertCounters(t, got, 1, 0)
	msgs, _ := env.threads.ListMessages(ctx, th.ID, domain.RoleDeveloper)
	if len(msgs) != 1 || msgs[0].Content != "First draft is attached." {
		t.Errorf("messages = %+v", msgs)
	}

	again, err := env.migrations.CleanupWelcomeMessages(ctx)
	if err != nil {
		t.Fatalf("CleanupWelcomeMessages repeat: %v", err)
	}
	if again != (CleanupResult{}) {
		t.Errorf("second run = %+v, want no changes", again)
	}
}

func TestCleanupKeepsCounterForReadGreeting(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "en")
	th := env.seedThread(t, project.ID)
	env.send(t, th.ID, domain.RoleDeveloper, "Welcome to the client portal", false)
	env.send(t, th.ID, domain.RoleClient, "thanks!", false)
	env.send(t, th.ID, domain.RoleDeveloper, "You're welcome", false)

	res, err := env.migrations.CleanupWelcomeMessages(ctx)
	if err != nil {
		t.Fatalf("CleanupWelcomeMessages: %v", err)
	}
	if res.MessagesDeleted != 1 || res.UnreadRemoved != 0 {
		t.Errorf("result = %+v, want 1 deleted and no unread removed", res)
	}
	assertCounters(t, env.thread(t, th.ID), 1, 0)
}

func TestCleanupDropsUnreadClientGreeting(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "en")
	th := env.seedThread(t, project.ID)
	env.send(t, th.ID, domain.RoleClient, "Hi! Feel free to send me a message here anytime.", false)
	env.send(t, th.ID, domain.RoleClient, "The logo is attached.", false)
	assertCounters(t, env.thread(t, th.ID), 0, 2)

	res, err := env.migrations.CleanupWelcomeMessages(ctx)
	if err != nil {
		t.Fatalf("CleanupWelcomeMessages: %v", err)
	}
	if res.MessagesDeleted != 1 || res.UnreadRemoved != 1 {
		t.Errorf("result = %+v, want 1 deleted and 1 unread removed", res)
	}
	assertCounters(t, env.thread(t, th.ID), 0, 1)
}

func TestCleanupDetachesGreetingAttachment(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "en")
	th := env.seedThread(t, project.ID)
	_, err := env.threads.SendMessage(ctx, SendMessageInput{
		ThreadID: th.ID,
		Author:   domain.RoleDeveloper,
		Content:  "Welcome to your project portal! The brief is attached.",
		File:     &FileAttachment{StorageID: "projects/x/1/brief.pdf", FileName: "brief.pdf", FileType: "application/pdf", FileSize: 512},
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	res, err := env.migrations.CleanupWelcomeMessages(ctx)
	if err != nil {
		t.Fatalf("CleanupWelcomeMessages: %v", err)
	}
	if res.MessagesDeleted != 1 || res.FilesDetached != 1 || res.UnreadRemoved != 1 {
		t.Errorf("result = %+v, want 1 deleted, 1 detached, 1 unread removed", res)
	}
	assertCounters(t, env.thread(t, th.ID), 0, 0)

	files, err := env.files.ListFiles(ctx, project.ID, nil, "")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("files = %d, want 1", len(files))
	}
	if files[0].MessageID != nil {
		t.Errorf("MessageID = %q, want nil", *files[0].MessageID)
	}
	if n, err := env.files.SyncMessageFilesToProject(ctx, project.ID); err != nil || n != 0 {
		t.Errorf("SyncMessageFilesToProject = %d, %v; want 0, nil", n, err)
	}
}

func TestFeedbackMapping(t *testing.T) {
	statuses := map[string]domain.ThreadStatus{
		"pending":     domain.ThreadStatusNew,
		"seen":        domain.ThreadStatusAcknowledged,
		"in-progress": domain.ThreadStatusInProgress,
		"Done":        domain.ThreadStatusResolved,
		"wontfix":     domain.ThreadStatusClosed,
		"":            domain.ThreadStatusNew,
	}
	for in, want := range statuses {
		if got := feedbackThreadStatus(in); got != want {
			t.Errorf("feedbackThreadStatus(%q) = %s, want %s", in, got, want)
		}
	}
	if got := feedbackThreadPriority("critical"); got != domain.ThreadPriorityUrgent {
		t.Errorf("feedbackThreadPriority(critical) = %s", got)
	}
	if got := feedbackThreadPriority("low"); got != domain.ThreadPriorityNormal {
		t.Errorf("feedbackThreadPriority(low) = %s", got)
	}
}
