package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	commonlog "portal_server/server/common/log"
	"portal_server/server/portal/domain"
	"portal_server/server/portal/repository"
	"portal_server/server/translate"
)

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []string
}

func (d *recordingDispatcher) Enqueue(_ context.Context, ids ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, ids...)
}

func (d *recordingDispatcher) enqueued() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ids...)
}

type stubTranslator struct {
	result translate.Result
	calls  int
	source string
	target string
}

func (t *stubTranslator) Translate(_ context.Context, text, source, target string) translate.Result {
	t.calls++
	t.source = source
	t.target = target
	res := t.result
	if res.TranslatedText == "" {
		res.TranslatedText = text
	}
	return res
}

type fakeObjects struct {
	mu      sync.Mutex
	removed []string
	thumbs  []string
	failRm  bool
}

func (f *fakeObjects) PresignUpload(_ context.Context, key string) (string, error) {
	return "https://storage.test/put/" + key, nil
}

func (f *fakeObjects) PresignDownload(_ context.Context, key string) (string, error) {
	return "https://storage.test/get/" + key, nil
}

func (f *fakeObjects) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, key)
	if f.failRm {
		return errors.New("storage offline")
	}
	return nil
}

func (f *fakeObjects) MakeThumbnail(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	thumb := key + "_thumb.jpg"
	f.thumbs = append(f.thumbs, thumb)
	return thumb, nil
}

type testEnv struct {
	store      *repository.MemoryStore
	feed       *LocalFeed
	dispatcher *recordingDispatcher
	translator *stubTranslator
	objects    *fakeObjects
	threads    *ThreadService
	files      *FileService
	projects   *ProjectService
	migrations *MigrationService
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	commonlog.SetOutput(io.Discard)

	env := &testEnv{
		store:      repository.NewMemoryStore(),
		feed:       NewLocalFeed(),
		dispatcher: &recordingDispatcher{},
		translator: &stubTranslator{result: translate.Result{Success: true, Provider: translate.ProviderPassthrough}},
		objects:    &fakeObjects{},
	}
	env.threads = NewThreadService(env.store, env.feed, env.dispatcher, env.translator, ThreadConfig{DeveloperLanguage: "en"})
	env.files = NewFileService(env.store, env.feed, env.objects)
	env.projects = NewProjectService(env.store, env.feed, env.objects)
	env.migrations = NewMigrationService(env.store, env.feed)

	// A strictly increasing clock keeps created_at ordering deterministic.
	var (
		mu   sync.Mutex
		tick = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick = tick.Add(time.Second)
		return tick
	}
	env.threads.now = clock
	env.files.now = clock
	env.projects.now = clock
	env.migrations.now = clock
	return env
}

func (e *testEnv) seedProject(t *testing.T, clientLang string) domain.Project {
	t.Helper()
	ctx := context.Background()
	client, err := e.projects.CreateClient(ctx, CreateClientInput{Name: "Acme " + newID(), Language: clientLang})
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	project, err := e.projects.CreateProject(ctx, CreateProjectInput{ClientID: client.ID, Name: "Landing page", Type: domain.ProjectTypeWebsite})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return project
}

func (e *testEnv) seedThread(t *testing.T, projectID string) domain.Thread {
	t.Helper()
	th, err := e.threads.CreateThread(context.Background(), CreateThreadInput{ProjectID: projectID, Title: "Homepage copy", CreatedBy: domain.RoleDeveloper})
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	return th
}

func (e *testEnv) send(t *testing.T, threadID string, author domain.Role, content string, private bool) domain.Message {
	t.Helper()
	msg, err := e.threads.SendMessage(context.Background(), SendMessageInput{ThreadID: threadID, Author: author, Content: content, IsPrivate: private})
	if err != nil {
		t.Fatalf("SendMessage(%s): %v", author, err)
	}
	return msg
}

func (e *testEnv) thread(t *testing.T, id string) domain.Thread {
	t.Helper()
	th, err := e.threads.GetThread(context.Background(), id)
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	return th
}

func (e *testEnv) inTx(t *testing.T, fn func(tx repository.Tx) error) {
	t.Helper()
	if err := e.store.InTx(context.Background(), fn); err != nil {
		t.Fatalf("InTx: %v", err)
	}
}

func assertCounters(t *testing.T, th domain.Thread, client, developer int) {
	t.Helper()
	if th.UnreadCountClient != client || th.UnreadCountDeveloper != developer {
		t.Errorf("counters = client:%d developer:%d, want client:%d developer:%d", th.UnreadCountClient, th.UnreadCountDeveloper, client, developer)
	}
}
