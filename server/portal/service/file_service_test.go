package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"portal_server/server/portal/domain"
	"portal_server/server/portal/repository"
)

func TestClassifyFile(t *testing.T) {
	tests := []struct {
		mime string
		want string
	}{
		{"image/png", BucketImages},
		{"IMAGE/JPEG", BucketImages},
		{"image/svg+xml", BucketImages},
		{"application/pdf", BucketPDFs},
		{"application/pdf; charset=binary", BucketPDFs},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", BucketDocuments},
		{"application/msword", BucketDocuments},
		{"application/vnd.ms-excel", BucketDocuments},
		{"application/vnd.ms-powerpoint", BucketDocuments},
		{"text/plain", BucketDocuments},
		{"application/zip", BucketOther},
		{"video/mp4", BucketOther},
		{"", BucketOther},
	}
	for _, tt := range tests {
		if got := ClassifyFile(tt.mime); got != tt.want {
			t.Errorf("ClassifyFile(%q) = %q, want %q", tt.mime, got, tt.want)
		}
	}
}

func TestClassifyFileIsTotalAndDeterministic(t *testing.T) {
	buckets := map[string]bool{BucketImages: true, BucketDocuments: true, BucketPDFs: true, BucketOther: true}
	parts := []string{"image", "application", "text", "video", "pdf", "word", "x-", "/", ";", " ", "excel", "zip", "ÿ", ""}
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		var b strings.Builder
		for j := rng.Intn(6); j >= 0; j-- {
			b.WriteString(parts[rng.Intn(len(parts))])
		}
		mime := b.String()
		first := ClassifyFile(mime)
		if !buckets[first] {
			t.Fatalf("ClassifyFile(%q) = %q, not a bucket", mime, first)
		}
		if again := ClassifyFile(mime); again != first {
			t.Fatalf("ClassifyFile(%q) = %q then %q", mime, first, again)
		}
	}
}

func TestSetupDefaultFoldersIdempotent(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "en")

	created, err := env.files.SetupDefaultFolders(ctx, project.ID, domain.RoleDeveloper)
	if err != nil {
		t.Fatalf("SetupDefaultFolders: %v", err)
	}
	if created != 4 {
		t.Errorf("first call created = %d, want 4", created)
	}
	created, err = env.files.SetupDefaultFolders(ctx, project.ID, domain.RoleDeveloper)
	if err != nil {
		t.Fatalf("SetupDefaultFolders repeat: %v", err)
	}
	if created != 0 {
		t.Errorf("second call created = %d, want 0", created)
	}

	folders, _ := env.files.ListFolders(ctx, project.ID)
	if len(folders) != 4 {
		t.Fatalf("folders = %d, want 4", len(folders))
	}
	names := map[string]bool{}
	for _, f := range folders {
		names[f.Name] = true
		if f.ParentID != nil {
			t.Errorf("default folder %s has a parent", f.Name)
		}
	}
	for _, tpl := range DefaultFolders {
		if !names[tpl.Name] {
			t.Errorf("missing default folder %s", tpl.Name)
		}
	}
}

func TestAddFileBootstrapsFoldersAndClassifies(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "en")

	file, err := env.files.AddFileToProject(ctx, AddFileInput{
		ProjectID:  project.ID,
		StorageID:  "projects/x/1/logo.png",
		FileName:   "logo.png",
		FileType:   "image/png",
		FileSize:   1024,
		Tags:       []string{" brand ", "brand", ""},
		UploadedBy: domain.RoleClient,
	})
	if err != nil {
		t.Fatalf("AddFileToProject: %v", err)
	}
	folder := findFolder(t, env, project.ID, BucketImages)
	if file.FolderID == nil || *file.FolderID != folder.ID {
		t.Errorf("FolderID = %v, want Images folder %s", file.FolderID, folder.ID)
	}
	if file.Placement != domain.PlacementFolder {
		t.Errorf("Placement = %s, want folder", file.Placement)
	}
	if len(file.Tags) != 1 || file.Tags[0] != "brand" {
		t.Errorf("Tags = %v, want [brand]", file.Tags)
	}
}

// racingStore fails transaction number failOn with a conflict after running
// race, the way a concurrent writer that committed first would.
type racingStore struct {
	*repository.MemoryStore
	race   func()
	failOn int
	calls  int
}

func (s *racingStore) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	s.calls++
	if s.calls == s.failOn {
		s.race()
		return fmt.Errorf("%w: folder name already exists", domain.ErrConflict)
	}
	return s.MemoryStore.InTx(ctx, fn)
}

func TestAddFileRetriesLostFolderBootstrap(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "en")

	store := &racingStore{MemoryStore: env.store, failOn: 1, race: func() {
		if _, err := env.files.SetupDefaultFolders(ctx, project.ID, domain.RoleClient); err != nil {
			t.Fatalf("SetupDefaultFolders: %v", err)
		}
	}}
	files := NewFileService(store, env.feed, nil)
	files.now = env.files.now

	file, err := files.AddFileToProject(ctx, AddFileInput{
		ProjectID:  project.ID,
		StorageID:  "projects/x/1/logo.png",
		FileName:   "logo.png",
		FileType:   "image/png",
		UploadedBy: domain.RoleDeveloper,
	})
	if err != nil {
		t.Fatalf("AddFileToProject: %v", err)
	}
	folder := findFolder(t, env, project.ID, BucketImages)
	if file.FolderID == nil || *file.FolderID != folder.ID {
		t.Errorf("FolderID = %v, want Images folder %s", file.FolderID, folder.ID)
	}
	folders, _ := env.files.ListFolders(ctx, project.ID)
	if len(folders) != 4 {
		t.Errorf("folders = %d, want 4", len(folders))
	}

	// SendMessage reads the thread first, so the second transaction races.
	other := env.seedProject(t, "en")
	otherThread := env.seedThread(t, other.ID)
	store.calls, store.failOn = 0, 2
	store.race = func() {
		if _, err := env.files.SetupDefaultFolders(ctx, other.ID, domain.RoleClient); err != nil {
			t.Fatalf("SetupDefaultFolders: %v", err)
		}
	}
	threads := NewThreadService(store, env.feed, env.dispatcher, env.translator, ThreadConfig{DeveloperLanguage: "en"})
	threads.now = env.threads.now
	msg, err := threads.SendMessage(ctx, SendMessageInput{
		ThreadID: otherThread.ID,
		Author:   domain.RoleClient,
		File:     &FileAttachment{StorageID: "projects/y/1/brief.pdf", FileName: "brief.pdf", FileType: "application/pdf"},
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if got := env.thread(t, otherThread.ID); got.UnreadCountDeveloper != 1 {
		t.Errorf("unread_count_developer = %d, want 1", got.UnreadCountDeveloper)
	}
	catalogued, _ := env.files.ListFiles(ctx, other.ID, nil, "")
	if len(catalogued) != 1 || catalogued[0].MessageID == nil || *catalogued[0].MessageID != msg.ID {
		t.Errorf("files = %+v, want one linked to %s", catalogued, msg.ID)
	}
}

func TestAutoOrganizeFilesIdempotent(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "en")
	th := env.seedThread(t, project.ID)
	insertFileMessage(t, env, th.ID, "brief.pdf", "application/pdf")
	insertFileMessage(t, env, th.ID, "notes.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")

	if _, err := env.files.SetupDefaultFolders(ctx, project.ID, domain.RoleDeveloper); err != nil {
		t.Fatalf("SetupDefaultFolders: %v", err)
	}
	synced, err := env.files.SyncMessageFilesToProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("SyncMessageFilesToProject: %v", err)
	}
	if synced != 2 {
		t.Fatalf("synced = %d, want 2", synced)
	}
	unsorted, _ := env.files.ListFiles(ctx, project.ID, nil, domain.PlacementUnsorted)
	if len(unsorted) != 2 {
		t.Fatalf("unsorted = %d, want 2", len(unsorted))
	}

	organized, err := env.files.AutoOrganizeFiles(ctx, project.ID)
	if err != nil {
		t.Fatalf("AutoOrganizeFiles: %v", err)
	}
	if organized != 2 {
		t.Errorf("organized = %d, want 2", organized)
	}
	pdfs := findFolder(t, env, project.ID, BucketPDFs)
	inPDFs, _ := env.files.ListFiles(ctx, project.ID, &pdfs.ID, "")
	if len(inPDFs) != 1 || inPDFs[0].FileName != "brief.pdf" {
		t.Errorf("PDFs folder = %+v", inPDFs)
	}

	organized, err = env.files.AutoOrganizeFiles(ctx, project.ID)
	if err != nil {
		t.Fatalf("AutoOrganizeFiles repeat: %v", err)
	}
	if organized != 0 {
		t.Errorf("second organize = %d, want 0", organized)
	}
}

func TestSyncMessageFilesIdempotent(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "en")
	th := env.seedThread(t, project.ID)
	insertFileMessage(t, env, th.ID, "photo.jpg", "image/jpeg")

	for i, want := range []int{1, 0} {
		n, err := env.files.SyncMessageFilesToProject(ctx, project.ID)
		if err != nil {
			t.Fatalf("SyncMessageFilesToProject #%d: %v", i, err)
		}
		if n != want {
			t.Errorf("sync #%d = %d, want %d", i, n, want)
		}
	}
	files, _ := env.files.ListFiles(ctx, project.ID, nil, "")
	if len(files) != 1 {
		t.Errorf("files = %d, want 1", len(files))
	}
}

func TestMoveToRootSurvivesAutoOrganize(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "en")
	file := addFile(t, env, project.ID, "mock.png", "image/png")

	moved, err := env.files.MoveFileToFolder(ctx, file.ID, nil)
	if err != nil {
		t.Fatalf("MoveFileToFolder: %v", err)
	}
	if moved.Placement != domain.PlacementRoot || moved.FolderID != nil || moved.MovedAt == nil {
		t.Errorf("moved = %+v, want root placement with MovedAt", moved)
	}

	organized, err := env.files.AutoOrganizeFiles(ctx, project.ID)
	if err != nil {
		t.Fatalf("AutoOrganizeFiles: %v", err)
	}
	if organized != 0 {
		t.Errorf("organized = %d, want 0", organized)
	}
	got, _ := env.files.GetFile(ctx, file.ID)
	if got.Placement != domain.PlacementRoot {
		t.Errorf("Placement = %s, want root", got.Placement)
	}

	other := env.seedProject(t, "en")
	if _, err := env.files.SetupDefaultFolders(ctx, other.ID, domain.RoleDeveloper); err != nil {
		t.Fatalf("SetupDefaultFolders: %v", err)
	}
	foreign := findFolder(t, env, other.ID, BucketImages)
	if _, err := env.files.MoveFileToFolder(ctx, file.ID, &foreign.ID); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("move into another project's folder err = %v, want ErrValidation", err)
	}
}

func TestDeleteFolderReleasesFiles(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "en")
	addFile(t, env, project.ID, "a.png", "image/png")
	images := findFolder(t, env, project.ID, BucketImages)

	sub, err := env.files.CreateFolder(ctx, CreateFolderInput{ProjectID: project.ID, ParentID: &images.ID, Name: "Drafts", CreatedBy: domain.RoleDeveloper})
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	if _, err := env.files.AddFileToProject(ctx, AddFileInput{ProjectID: project.ID, FolderID: &sub.ID, StorageID: "k2", FileName: "b.png", FileType: "image/png", UploadedBy: domain.RoleDeveloper}); err != nil {
		t.Fatalf("AddFileToProject: %v", err)
	}

	released, err := env.files.DeleteFolder(ctx, images.ID)
	if err != nil {
		t.Fatalf("DeleteFolder: %v", err)
	}
	if released != 2 {
		t.Errorf("released = %d, want 2", released)
	}
	folders, _ := env.files.ListFolders(ctx, project.ID)
	if len(folders) != 3 {
		t.Errorf("folders left = %d, want 3", len(folders))
	}
	unsorted, _ := env.files.ListFiles(ctx, project.ID, nil, domain.PlacementUnsorted)
	if len(unsorted) != 2 {
		t.Errorf("unsorted = %d, want 2", len(unsorted))
	}

	// No Images folder any more, so the files stay unsorted.
	if n, _ := env.files.AutoOrganizeFiles(ctx, project.ID); n != 0 {
		t.Errorf("organized without bucket folder = %d, want 0", n)
	}
	// Default setup does not recreate a removed bucket once folders exist.
	if n, _ := env.files.SetupDefaultFolders(ctx, project.ID, domain.RoleDeveloper); n != 0 {
		t.Errorf("SetupDefaultFolders after delete = %d, want 0", n)
	}
}

func TestSetupProjectFileSystem(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "en")
	th := env.seedThread(t, project.ID)
	insertFileMessage(t, env, th.ID, "brief.pdf", "application/pdf")

	res, err := env.files.SetupProjectFileSystem(ctx, project.ID, domain.RoleClient)
	if err != nil {
		t.Fatalf("SetupProjectFileSystem: %v", err)
	}
	if res != (SetupResult{FoldersCreated: 4, FilesSynced: 1, FilesOrganized: 1}) {
		t.Errorf("first setup = %+v", res)
	}
	res, err = env.files.SetupProjectFileSystem(ctx, project.ID, domain.RoleClient)
	if err != nil {
		t.Fatalf("SetupProjectFileSystem repeat: %v", err)
	}
	if res != (SetupResult{}) {
		t.Errorf("second setup = %+v, want all zero", res)
	}
}

func TestRegisterUploadMakesThumbnail(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "en")

	file, err := env.files.RegisterUpload(ctx, AddFileInput{ProjectID: project.ID, StorageID: "projects/p/u/cat.jpg", FileName: "cat.jpg", FileType: "image/jpeg", UploadedBy: domain.RoleClient})
	if err != nil {
		t.Fatalf("RegisterUpload: %v", err)
	}
	if file.ThumbnailID == nil || *file.ThumbnailID != "projects/p/u/cat.jpg_thumb.jpg" {
		t.Errorf("ThumbnailID = %v", file.ThumbnailID)
	}

	if err := env.files.DeleteFile(ctx, file.ID); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if len(env.objects.removed) != 2 {
		t.Errorf("removed = %v, want object and thumbnail", env.objects.removed)
	}
	if _, err := env.files.GetFile(ctx, file.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetFile after delete err = %v, want ErrNotFound", err)
	}
}

func TestPresignUpload(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "en")

	target, err := env.files.PresignUpload(ctx, project.ID, `C:\Users\me\report.pdf`)
	if err != nil {
		t.Fatalf("PresignUpload: %v", err)
	}
	prefix := "projects/" + project.ID + "/"
	if !strings.HasPrefix(target.ObjectKey, prefix) || !strings.HasSuffix(target.ObjectKey, "/report.pdf") {
		t.Errorf("ObjectKey = %q", target.ObjectKey)
	}
	if target.UploadURL != "https://storage.test/put/"+target.ObjectKey {
		t.Errorf("UploadURL = %q", target.UploadURL)
	}

	noStorage := NewFileService(env.store, env.feed, nil)
	if _, err := noStorage.PresignUpload(ctx, project.ID, "a.txt"); !errors.Is(err, domain.ErrUnavailable) {
		t.Errorf("PresignUpload without storage err = %v, want ErrUnavailable", err)
	}
}

func TestUpdateFileTags(t *testing.T) {
	env := setupEnv(t)
	project := env.seedProject(t, "en")
	file := addFile(t, env, project.ID, "doc.txt", "text/plain")

	got, err := env.files.UpdateFileTags(context.Background(), file.ID, []string{"final", " final ", "v2"})
	if err != nil {
		t.Fatalf("UpdateFileTags: %v", err)
	}
	if strings.Join(got.Tags, ",") != "final,v2" {
		t.Errorf("Tags = %v, want [final v2]", got.Tags)
	}
}

func addFile(t *testing.T, env *testEnv, projectID, name, mime string) domain.ProjectFile {
	t.Helper()
	file, err := env.files.AddFileToProject(context.Background(), AddFileInput{
		ProjectID:  projectID,
		StorageID:  "projects/" + projectID + "/" + newID() + "/" + name,
		FileName:   name,
		FileType:   mime,
		UploadedBy: domain.RoleDeveloper,
	})
	if err != nil {
		t.Fatalf("AddFileToProject(%s): %v", name, err)
	}
	return file
}

// insertFileMessage writes an attachment message without cataloguing it, the
// state left behind by clients that predate the file catalogue.
func insertFileMessage(t *testing.T, env *testEnv, threadID, name, mime string) {
	t.Helper()
	env.inTx(t, func(tx repository.Tx) error {
		return tx.InsertMessage(context.Background(), domain.Message{
			ID:        newID(),
			ThreadID:  threadID,
			Author:    domain.RoleClient,
			Content:   name,
			Type:      domain.MessageTypeFile,
			FileID:    ptr("legacy/" + name),
			FileName:  ptr(name),
			FileType:  ptr(mime),
			FileSize:  ptr(int64(10)),
			CreatedAt: env.threads.now(),
		})
	})
}

func findFolder(t *testing.T, env *testEnv, projectID, name string) domain.Folder {
	t.Helper()
	folders, err := env.files.ListFolders(context.Background(), projectID)
	if err != nil {
		t.Fatalf("ListFolders: %v", err)
	}
	for _, f := range folders {
		if f.Name == name && f.ParentID == nil {
			return f
		}
	}
	t.Fatalf("folder %s not found", name)
	return domain.Folder{}
}
