package service

import (
	"context"
	"errors"
	"testing"

	"portal_server/server/portal/domain"
	"portal_server/server/portal/repository"
)

func TestCreateClientDefaults(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	client, err := env.projects.CreateClient(ctx, CreateClientInput{Name: "  Maria  "})
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	if client.Name != "Maria" || client.Language != "en" || client.TechLevel != 3 || client.Timezone != "UTC" {
		t.Errorf("client = %+v", client)
	}

	if _, err := env.projects.CreateClient(ctx, CreateClientInput{Name: "Maria"}); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("duplicate name err = %v, want ErrConflict", err)
	}
	if _, err := env.projects.CreateClient(ctx, CreateClientInput{Name: "Ivan", TechLevel: 9}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("tech level 9 err = %v, want ErrValidation", err)
	}
	if _, err := env.projects.CreateClient(ctx, CreateClientInput{Name: "   "}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("blank name err = %v, want ErrValidation", err)
	}
}

func TestUpdateClient(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	client, _ := env.projects.CreateClient(ctx, CreateClientInput{Name: "Olga"})

	lang, level := "RU", 2
	updated, err := env.projects.UpdateClient(ctx, client.ID, UpdateClientInput{Language: &lang, TechLevel: &level})
	if err != nil {
		t.Fatalf("UpdateClient: %v", err)
	}
	if updated.Language != "ru" || updated.TechLevel != 2 || updated.Name != "Olga" {
		t.Errorf("updated = %+v", updated)
	}

	bad := 0
	if _, err := env.projects.UpdateClient(ctx, client.ID, UpdateClientInput{TechLevel: &bad}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("tech level 0 err = %v, want ErrValidation", err)
	}
	if _, err := env.projects.UpdateClient(ctx, "missing", UpdateClientInput{}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing client err = %v, want ErrNotFound", err)
	}
}

func TestCreateProjectValidation(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	client, _ := env.projects.CreateClient(ctx, CreateClientInput{Name: "Lee"})

	p, err := env.projects.CreateProject(ctx, CreateProjectInput{ClientID: client.ID, Name: "Deck"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if p.Type != domain.ProjectTypeOther || p.Status != domain.ProjectStatusNotStarted || p.Priority != domain.ProjectPriorityMedium {
		t.Errorf("defaults = %s/%s/%s", p.Type, p.Status, p.Priority)
	}

	if _, err := env.projects.CreateProject(ctx, CreateProjectInput{ClientID: client.ID, Name: "Deck", Type: "poster"}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("unknown type err = %v, want ErrValidation", err)
	}
	if _, err := env.projects.CreateProject(ctx, CreateProjectInput{ClientID: "ghost", Name: "Deck"}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing client err = %v, want ErrNotFound", err)
	}
}

func TestArchiveProjectHidesFromDefaultList(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "en")

	if _, err := env.projects.ArchiveProject(ctx, project.ID, true); err != nil {
		t.Fatalf("ArchiveProject: %v", err)
	}
	active, _ := env.projects.ListProjects(ctx, false)
	if len(active) != 0 {
		t.Errorf("active projects = %d, want 0", len(active))
	}
	all, _ := env.projects.ListProjects(ctx, true)
	if len(all) != 1 || !all[0].IsArchived {
		t.Errorf("all projects = %+v", all)
	}
}

func TestDeleteProjectCascade(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "en")
	keep := env.seedProject(t, "en")
	keepThread := env.seedThread(t, keep.ID)
	env.send(t, keepThread.ID, domain.RoleClient, "stay", false)

	th := env.seedThread(t, project.ID)
	env.send(t, th.ID, domain.RoleClient, "hello", false)
	env.send(t, th.ID, domain.RoleDeveloper, "hi", false)
	img, err := env.files.RegisterUpload(ctx, AddFileInput{ProjectID: project.ID, StorageID: "projects/p/1/a.png", FileName: "a.png", FileType: "image/png", UploadedBy: domain.RoleDeveloper})
	if err != nil {
		t.Fatalf("RegisterUpload: %v", err)
	}

	res, err := env.projects.DeleteProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	want := DeleteProjectResult{ThreadsDeleted: 1, MessagesDeleted: 2, NotificationsDeleted: 1, FilesDeleted: 1, FoldersDeleted: 4}
	if res != want {
		t.Errorf("result = %+v, want %+v", res, want)
	}
	if _, err := env.projects.GetProject(ctx, project.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetProject after delete err = %v, want ErrNotFound", err)
	}
	if _, err := env.threads.GetThread(ctx, th.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetThread after delete err = %v, want ErrNotFound", err)
	}

	removed := map[string]bool{}
	for _, key := range env.objects.removed {
		removed[key] = true
	}
	if !removed[img.StorageID] || !removed[*img.ThumbnailID] {
		t.Errorf("removed objects = %v, want file and thumbnail", env.objects.removed)
	}

	// The sibling project is untouched.
	if got := env.thread(t, keepThread.ID); got.UnreadCountDeveloper != 1 {
		t.Errorf("sibling thread counters changed: %+v", got)
	}
	env.inTx(t, func(tx repository.Tx) error {
		items, err := tx.ListNotifications(ctx, repository.NotificationFilter{})
		if err != nil {
			return err
		}
		if len(items) != 1 || *items[0].ProjectID != keep.ID {
			t.Errorf("notifications = %+v, want only the sibling's", items)
		}
		return nil
	})
}

func TestDeleteProjectStorageFailureIsNotFatal(t *testing.T) {
	env := setupEnv(t)
	env.objects.failRm = true
	ctx := context.Background()
	project := env.seedProject(t, "en")
	addFile(t, env, project.ID, "brief.pdf", "application/pdf")

	if _, err := env.projects.DeleteProject(ctx, project.ID); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if _, err := env.projects.GetProject(ctx, project.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetProject err = %v, want ErrNotFound", err)
	}
}
