package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"portal_server/server/portal/domain"
	"portal_server/server/portal/repository"
)

type ProjectService struct {
	core
	objects ObjectStore
}

func NewProjectService(store repository.Store, feed Feed, objects ObjectStore) *ProjectService {
	return &ProjectService{core: newCore(store, feed), objects: objects}
}

type CreateClientInput struct {
	Name      string
	Email     string
	Language  string
	TechLevel int
	Timezone  string
}

type UpdateClientInput struct {
	Name      *string
	Email     *string
	Language  *string
	TechLevel *int
	Timezone  *string
}

type CreateProjectInput struct {
	ClientID    string
	Name        string
	Description string
	Type        domain.ProjectType
	Status      domain.ProjectStatus
	Priority    domain.ProjectPriority
	Icon        string
	Color       string
	Deadline    *time.Time
}

type UpdateProjectInput struct {
	Name        *string
	Description *string
	Type        *domain.ProjectType
	Status      *domain.ProjectStatus
	Priority    *domain.ProjectPriority
	Icon        *string
	Color       *string
	Deadline    *time.Time
}

type DeleteProjectResult struct {
	ThreadsDeleted       int   `json:"threads_deleted"`
	MessagesDeleted      int64 `json:"messages_deleted"`
	NotificationsDeleted int64 `json:"notifications_deleted"`
	FilesDeleted         int   `json:"files_deleted"`
	FoldersDeleted       int64 `json:"folders_deleted"`
}

func validTechLevel(n int) bool {
	return n >= 1 && n <= 5
}

func (s *ProjectService) CreateClient(ctx context.Context, input CreateClientInput) (domain.Client, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return domain.Client{}, invalid("name is required")
	}
	techLevel := input.TechLevel
	if techLevel == 0 {
		techLevel = 3
	}
	if !validTechLevel(techLevel) {
		return domain.Client{}, invalid("tech_level must be between 1 and 5")
	}
	now := s.now()
	client := domain.Client{
		ID:        newID(),
		Name:      name,
		Email:     optionalString(input.Email),
		Language:  strings.ToLower(strings.TrimSpace(input.Language)),
		TechLevel: techLevel,
		Timezone:  strings.TrimSpace(input.Timezone),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if client.Language == "" {
		client.Language = "en"
	}
	if client.Timezone == "" {
		client.Timezone = "UTC"
	}
	if err := s.store.InTx(ctx, func(tx repository.Tx) error {
		return tx.InsertClient(ctx, client)
	}); err != nil {
		return domain.Client{}, err
	}
	s.publish(ctx, domain.ChangeClients, "", "", client.ID)
	return client, nil
}

func (s *ProjectService) UpdateClient(ctx context.Context, clientID string, input UpdateClientInput) (domain.Client, error) {
	var client domain.Client
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		client, err = tx.GetClient(ctx, clientID)
		if err != nil {
			return err
		}
		if input.Name != nil {
			name := strings.TrimSpace(*input.Name)
			if name == "" {
				return invalid("name cannot be empty")
			}
			client.Name = name
		}
		if input.Email != nil {
			client.Email = optionalString(*input.Email)
		}
		if input.Language != nil && strings.TrimSpace(*input.Language) != "" {
			client.Language = strings.ToLower(strings.TrimSpace(*input.Language))
		}
		if input.TechLevel != nil {
			if !validTechLevel(*input.TechLevel) {
				return invalid("tech_level must be between 1 and 5")
			}
			client.TechLevel = *input.TechLevel
		}
		if input.Timezone != nil && strings.TrimSpace(*input.Timezone) != "" {
			client.Timezone = strings.TrimSpace(*input.Timezone)
		}
		client.UpdatedAt = s.now()
		return tx.UpdateClient(ctx, client)
	})
	if err != nil {
		return domain.Client{}, err
	}
	s.publish(ctx, domain.ChangeClients, "", "", client.ID)
	return client, nil
}

func (s *ProjectService) GetClient(ctx context.Context, clientID string) (domain.Client, error) {
	var client domain.Client
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		client, err = tx.GetClient(ctx, clientID)
		return err
	})
	return client, err
}

func (s *ProjectService) ListClients(ctx context.Context) ([]domain.Client, error) {
	var items []domain.Client
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		items, err = tx.ListClients(ctx)
		return err
	})
	return items, err
}

func (s *ProjectService) CreateProject(ctx context.Context, input CreateProjectInput) (domain.Project, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return domain.Project{}, invalid("name is required")
	}
	p := domain.Project{
		ID:          newID(),
		ClientID:    input.ClientID,
		Name:        name,
		Description: optionalString(input.Description),
		Type:        input.Type,
		Status:      input.Status,
		Priority:    input.Priority,
		Icon:        strings.TrimSpace(input.Icon),
		Color:       strings.TrimSpace(input.Color),
		Deadline:    input.Deadline,
	}
	if p.Type == "" {
		p.Type = domain.ProjectTypeOther
	}
	if p.Status == "" {
		p.Status = domain.ProjectStatusNotStarted
	}
	if p.Priority == "" {
		p.Priority = domain.ProjectPriorityMedium
	}
	if err := validateProject(p); err != nil {
		return domain.Project{}, err
	}
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt

	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetClient(ctx, p.ClientID); err != nil {
			return fmt.Errorf("client %s: %w", p.ClientID, err)
		}
		return tx.InsertProject(ctx, p)
	})
	if err != nil {
		return domain.Project{}, err
	}
	s.publish(ctx, domain.ChangeProjects, p.ID, "", p.ID)
	return p, nil
}

func validateProject(p domain.Project) error {
	if !p.Type.Valid() {
		return invalid("unknown project type %q", p.Type)
	}
	if !p.Status.Valid() {
		return invalid("unknown project status %q", p.Status)
	}
	if !p.Priority.Valid() {
		return invalid("unknown project priority %q", p.Priority)
	}
	return nil
}

func (s *ProjectService) UpdateProject(ctx context.Context, projectID string, input UpdateProjectInput) (domain.Project, error) {
	var p domain.Project
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		p, err = tx.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		if input.Name != nil {
			name := strings.TrimSpace(*input.Name)
			if name == "" {
				return invalid("name cannot be empty")
			}
			p.Name = name
		}
		if input.Description != nil {
			p.Description = optionalString(*input.Description)
		}
		if input.Type != nil {
			p.Type = *input.Type
		}
		if input.Status != nil {
			p.Status = *input.Status
		}
		if input.Priority != nil {
			p.Priority = *input.Priority
		}
		if input.Icon != nil {
			p.Icon = strings.TrimSpace(*input.Icon)
		}
		if input.Color != nil {
			p.Color = strings.TrimSpace(*input.Color)
		}
		if input.Deadline != nil {
			p.Deadline = input.Deadline
		}
		if err := validateProject(p); err != nil {
			return err
		}
		p.UpdatedAt = s.now()
		return tx.UpdateProject(ctx, p)
	})
	if err != nil {
		return domain.Project{}, err
	}
	s.publish(ctx, domain.ChangeProjects, p.ID, "", p.ID)
	return p, nil
}

func (s *ProjectService) ArchiveProject(ctx context.Context, projectID string, archived bool) (domain.Project, error) {
	var p domain.Project
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		p, err = tx.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		p.IsArchived = archived
		p.UpdatedAt = s.now()
		return tx.UpdateProject(ctx, p)
	})
	if err != nil {
		return domain.Project{}, err
	}
	s.publish(ctx, domain.ChangeProjects, p.ID, "", p.ID)
	return p, nil
}

func (s *ProjectService) GetProject(ctx context.Context, projectID string) (domain.Project, error) {
	var p domain.Project
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		p, err = tx.GetProject(ctx, projectID)
		return err
	})
	return p, err
}

func (s *ProjectService) ListProjects(ctx context.Context, includeArchived bool) ([]domain.Project, error) {
	var items []domain.Project
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		items, err = tx.ListProjects(ctx, includeArchived)
		return err
	})
	return items, err
}

// DeleteProject removes the project subtree in one transaction: its
// notifications, threads with their messages, files and folders. Stored
// objects are removed after commit, best effort.
func (s *ProjectService) DeleteProject(ctx context.Context, projectID string) (DeleteProjectResult, error) {
	startedAt := time.Now()
	var (
		res  DeleteProjectResult
		keys []string
	)
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetProject(ctx, projectID); err != nil {
			return err
		}
		var err error
		if res.NotificationsDeleted, err = tx.DeleteNotificationsByProject(ctx, projectID); err != nil {
			return err
		}

		threads, err := tx.ListThreads(ctx, repository.ThreadFilter{ProjectID: projectID, IncludeArchived: true})
		if err != nil {
			return err
		}
		for _, th := range threads {
			n, err := tx.DeleteMessagesByThread(ctx, th.ID)
			if err != nil {
				return err
			}
			res.MessagesDeleted += n
			if err := tx.DeleteThread(ctx, th.ID); err != nil {
				return err
			}
		}
		res.ThreadsDeleted = len(threads)

		files, err := tx.ListFiles(ctx, repository.FileFilter{ProjectID: projectID})
		if err != nil {
			return err
		}
		for _, f := range files {
			if f.ThumbnailID != nil {
				keys = append(keys, *f.ThumbnailID)
			}
		}
		storageIDs, err := tx.DeleteFilesByProject(ctx, projectID)
		if err != nil {
			return err
		}
		keys = append(keys, storageIDs...)
		res.FilesDeleted = len(storageIDs)

		if res.FoldersDeleted, err = tx.DeleteFoldersByProject(ctx, projectID); err != nil {
			return err
		}
		return tx.DeleteProject(ctx, projectID)
	})
	logOutcome("project", "delete", startedAt, err, fmt.Sprintf("project_id=%s threads=%d messages=%d notifications=%d files=%d folders=%d", projectID, res.ThreadsDeleted, res.MessagesDeleted, res.NotificationsDeleted, res.FilesDeleted, res.FoldersDeleted))
	if err != nil {
		return DeleteProjectResult{}, err
	}

	removeObjects(ctx, s.objects, keys)
	s.publish(ctx, domain.ChangeProjects, projectID, "", projectID)
	return res, nil
}
