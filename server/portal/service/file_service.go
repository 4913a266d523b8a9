package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	commonlog "portal_server/server/common/log"
	"portal_server/server/portal/domain"
	"portal_server/server/portal/repository"
)

type FileService struct {
	core
	objects ObjectStore
}

func NewFileService(store repository.Store, feed Feed, objects ObjectStore) *FileService {
	return &FileService{core: newCore(store, feed), objects: objects}
}

type AddFileInput struct {
	ProjectID   string
	FolderID    *string
	StorageID   string
	ThumbnailID *string
	FileName    string
	FileType    string
	FileSize    int64
	MessageID   *string
	Tags        []string
	UploadedBy  domain.Role
}

type CreateFolderInput struct {
	ProjectID string
	ParentID  *string
	Name      string
	Color     string
	Icon      string
	CreatedBy domain.Role
}

type SetupResult struct {
	FoldersCreated int `json:"folders_created"`
	FilesSynced    int `json:"files_synced"`
	FilesOrganized int `json:"files_organized"`
}

type UploadTarget struct {
	ObjectKey string `json:"object_key"`
	UploadURL string `json:"upload_url"`
}

// SetupDefaultFolders creates the four bucket folders when the project has
// none. It reports how many were created: 4 on the first call, 0 after.
func (s *FileService) SetupDefaultFolders(ctx context.Context, projectID string, createdBy domain.Role) (int, error) {
	var created int
	// A concurrent first call may win; the retry sees its folders.
	err := s.inTxRetry(ctx, func(tx repository.Tx) error {
		var err error
		created, err = setupDefaultFoldersTx(ctx, tx, s.now(), projectID, createdBy)
		return err
	})
	if err != nil {
		return 0, err
	}
	if created > 0 {
		commonlog.Infof("event=project_folders action=setup_defaults status=ok project_id=%s created=%d", projectID, created)
		s.publish(ctx, domain.ChangeFolders, projectID, "", "")
	}
	return created, nil
}

func setupDefaultFoldersTx(ctx context.Context, tx repository.Tx, now time.Time, projectID string, createdBy domain.Role) (int, error) {
	if _, err := tx.GetProject(ctx, projectID); err != nil {
		return 0, err
	}
	count, err := tx.CountFolders(ctx, projectID)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}
	if !createdBy.Valid() {
		createdBy = domain.RoleDeveloper
	}
	for _, tpl := range DefaultFolders {
		if err := tx.InsertFolder(ctx, domain.Folder{
			ID:        newID(),
			ProjectID: projectID,
			Name:      tpl.Name,
			Color:     tpl.Color,
			Icon:      tpl.Icon,
			CreatedBy: createdBy,
			CreatedAt: now,
		}); err != nil {
			return 0, err
		}
	}
	return len(DefaultFolders), nil
}

// bucketFolderTx resolves the root folder for fileType. ok is false when the
// bucket folder was removed by a user.
func bucketFolderTx(ctx context.Context, tx repository.Tx, projectID, fileType string) (domain.Folder, bool, error) {
	folder, err := tx.FindRootFolderByName(ctx, projectID, ClassifyFile(fileType))
	if isNotFound(err) {
		return domain.Folder{}, false, nil
	}
	if err != nil {
		return domain.Folder{}, false, err
	}
	return folder, true, nil
}

func addFileTx(ctx context.Context, tx repository.Tx, now time.Time, input AddFileInput) (domain.ProjectFile, error) {
	if strings.TrimSpace(input.StorageID) == "" {
		return domain.ProjectFile{}, invalid("storage_id is required")
	}
	if strings.TrimSpace(input.FileName) == "" {
		return domain.ProjectFile{}, invalid("file_name is required")
	}
	if !input.UploadedBy.Valid() {
		return domain.ProjectFile{}, invalid("uploaded_by must be client or developer")
	}
	if _, err := tx.GetProject(ctx, input.ProjectID); err != nil {
		return domain.ProjectFile{}, err
	}

	file := domain.ProjectFile{
		ID:          newID(),
		ProjectID:   input.ProjectID,
		Placement:   domain.PlacementUnsorted,
		StorageID:   input.StorageID,
		ThumbnailID: input.ThumbnailID,
		FileName:    strings.TrimSpace(input.FileName),
		FileType:    strings.TrimSpace(input.FileType),
		FileSize:    input.FileSize,
		MessageID:   input.MessageID,
		Tags:        dedupeAndTrim(input.Tags),
		UploadedBy:  input.UploadedBy,
		UploadedAt:  now,
	}

	if input.FolderID != nil {
		folder, err := folderInProject(ctx, tx, *input.FolderID, input.ProjectID)
		if err != nil {
			return domain.ProjectFile{}, err
		}
		file.FolderID = &folder.ID
		file.Placement = domain.PlacementFolder
	} else {
		if _, err := setupDefaultFoldersTx(ctx, tx, now, input.ProjectID, input.UploadedBy); err != nil {
			return domain.ProjectFile{}, err
		}
		folder, ok, err := bucketFolderTx(ctx, tx, input.ProjectID, file.FileType)
		if err != nil {
			return domain.ProjectFile{}, err
		}
		if ok {
			file.FolderID = &folder.ID
			file.Placement = domain.PlacementFolder
		}
	}

	if err := tx.InsertFile(ctx, file); err != nil {
		return domain.ProjectFile{}, err
	}
	return file, nil
}

func folderInProject(ctx context.Context, tx repository.Tx, folderID, projectID string) (domain.Folder, error) {
	folder, err := tx.GetFolder(ctx, folderID)
	if err != nil {
		return domain.Folder{}, err
	}
	if folder.ProjectID != projectID {
		return domain.Folder{}, invalid("folder %s belongs to another project", folderID)
	}
	return folder, nil
}

// AddFileToProject catalogues an uploaded object. Without an explicit folder
// the file is classified into its bucket, bootstrapping the default folders
// on first use.
func (s *FileService) AddFileToProject(ctx context.Context, input AddFileInput) (domain.ProjectFile, error) {
	var file domain.ProjectFile
	err := s.inTxRetry(ctx, func(tx repository.Tx) error {
		var err error
		file, err = addFileTx(ctx, tx, s.now(), input)
		return err
	})
	if err != nil {
		return domain.ProjectFile{}, err
	}
	commonlog.Infof("event=project_file action=add status=ok project_id=%s file_id=%s placement=%s", file.ProjectID, file.ID, file.Placement)
	s.publish(ctx, domain.ChangeFiles, file.ProjectID, "", file.ID)
	s.publish(ctx, domain.ChangeFolders, file.ProjectID, "", "")
	return file, nil
}

// RegisterUpload is AddFileToProject for objects that were uploaded through
// a presigned URL. Images get a thumbnail first; a failed thumbnail is not
// fatal.
func (s *FileService) RegisterUpload(ctx context.Context, input AddFileInput) (domain.ProjectFile, error) {
	if s.objects != nil && input.ThumbnailID == nil && ClassifyFile(input.FileType) == BucketImages {
		thumbKey, err := s.objects.MakeThumbnail(ctx, input.StorageID)
		if err != nil {
			commonlog.Warnf("event=project_file action=thumbnail status=failed storage_id=%s error=%v", input.StorageID, err)
		} else {
			input.ThumbnailID = &thumbKey
		}
	}
	return s.AddFileToProject(ctx, input)
}

func (s *FileService) PresignUpload(ctx context.Context, projectID, fileName string) (UploadTarget, error) {
	if s.objects == nil {
		return UploadTarget{}, fmt.Errorf("%w: object storage is not configured", domain.ErrUnavailable)
	}
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return UploadTarget{}, invalid("file_name is required")
	}
	if err := s.store.InTx(ctx, func(tx repository.Tx) error {
		_, err := tx.GetProject(ctx, projectID)
		return err
	}); err != nil {
		return UploadTarget{}, err
	}
	key := fmt.Sprintf("projects/%s/%s/%s", projectID, newID(), name)
	u, err := s.objects.PresignUpload(ctx, key)
	if err != nil {
		return UploadTarget{}, err
	}
	return UploadTarget{ObjectKey: key, UploadURL: u}, nil
}

// FileURL mints a fresh time-bounded download URL.
func (s *FileService) FileURL(ctx context.Context, fileID string) (string, error) {
	if s.objects == nil {
		return "", fmt.Errorf("%w: object storage is not configured", domain.ErrUnavailable)
	}
	file, err := s.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	return s.objects.PresignDownload(ctx, file.StorageID)
}

func (s *FileService) GetFile(ctx context.Context, fileID string) (domain.ProjectFile, error) {
	var file domain.ProjectFile
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		file, err = tx.GetFile(ctx, fileID)
		return err
	})
	return file, err
}

// AutoOrganizeFiles files every unsorted file into its bucket folder. Files
// placed at the root on purpose are left alone.
func (s *FileService) AutoOrganizeFiles(ctx context.Context, projectID string) (int, error) {
	var organized int
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetProject(ctx, projectID); err != nil {
			return err
		}
		var err error
		organized, err = autoOrganizeTx(ctx, tx, projectID)
		return err
	})
	if err != nil {
		return 0, err
	}
	if organized > 0 {
		commonlog.Infof("event=project_files action=auto_organize status=ok project_id=%s organized=%d", projectID, organized)
		s.publish(ctx, domain.ChangeFiles, projectID, "", "")
	}
	return organized, nil
}

func autoOrganizeTx(ctx context.Context, tx repository.Tx, projectID string) (int, error) {
	files, err := tx.ListFiles(ctx, repository.FileFilter{ProjectID: projectID, Placement: domain.PlacementUnsorted})
	if err != nil {
		return 0, err
	}
	organized := 0
	for _, file := range files {
		folder, ok, err := bucketFolderTx(ctx, tx, projectID, file.FileType)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		file.FolderID = &folder.ID
		file.Placement = domain.PlacementFolder
		if err := tx.UpdateFile(ctx, file); err != nil {
			return 0, err
		}
		organized++
	}
	return organized, nil
}

// MoveFileToFolder re-files unconditionally. A nil target puts the file at
// the project root, which auto-organize respects.
func (s *FileService) MoveFileToFolder(ctx context.Context, fileID string, target *string) (domain.ProjectFile, error) {
	var file domain.ProjectFile
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		file, err = tx.GetFile(ctx, fileID)
		if err != nil {
			return err
		}
		now := s.now()
		if target == nil {
			file.FolderID = nil
			file.Placement = domain.PlacementRoot
		} else {
			folder, err := folderInProject(ctx, tx, *target, file.ProjectID)
			if err != nil {
				return err
			}
			file.FolderID = &folder.ID
			file.Placement = domain.PlacementFolder
		}
		file.MovedAt = &now
		return tx.UpdateFile(ctx, file)
	})
	if err != nil {
		return domain.ProjectFile{}, err
	}
	s.publish(ctx, domain.ChangeFiles, file.ProjectID, "", file.ID)
	return file, nil
}

// SyncMessageFilesToProject catalogues file attachments that have no
// project file yet. New entries are unsorted.
func (s *FileService) SyncMessageFilesToProject(ctx context.Context, projectID string) (int, error) {
	var synced int
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetProject(ctx, projectID); err != nil {
			return err
		}
		var err error
		synced, err = syncMessageFilesTx(ctx, tx, projectID)
		return err
	})
	if err != nil {
		return 0, err
	}
	if synced > 0 {
		commonlog.Infof("event=project_files action=sync_messages status=ok project_id=%s synced=%d", projectID, synced)
		s.publish(ctx, domain.ChangeFiles, projectID, "", "")
	}
	return synced, nil
}

func syncMessageFilesTx(ctx context.Context, tx repository.Tx, projectID string) (int, error) {
	msgs, err := tx.ListFileMessages(ctx, projectID)
	if err != nil {
		return 0, err
	}
	synced := 0
	for _, m := range msgs {
		exists, err := tx.FileExistsForMessage(ctx, m.ID)
		if err != nil {
			return 0, err
		}
		if exists {
			continue
		}
		file := domain.ProjectFile{
			ID:         newID(),
			ProjectID:  projectID,
			Placement:  domain.PlacementUnsorted,
			StorageID:  *m.FileID,
			FileName:   derefOr(m.FileName, "attachment"),
			FileType:   derefOr(m.FileType, "application/octet-stream"),
			MessageID:  ptr(m.ID),
			Tags:       []string{},
			UploadedBy: m.Author,
			UploadedAt: m.CreatedAt,
		}
		if m.FileSize != nil {
			file.FileSize = *m.FileSize
		}
		if err := tx.InsertFile(ctx, file); err != nil {
			return 0, err
		}
		synced++
	}
	return synced, nil
}

func derefOr(v *string, fallback string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return fallback
	}
	return *v
}

// SetupProjectFileSystem is the lazy bootstrap run on project views: default
// folders, then message sync, then auto-organize, in one transaction.
func (s *FileService) SetupProjectFileSystem(ctx context.Context, projectID string, createdBy domain.Role) (SetupResult, error) {
	startedAt := time.Now()
	var res SetupResult
	err := s.inTxRetry(ctx, func(tx repository.Tx) error {
		var err error
		if res.FoldersCreated, err = setupDefaultFoldersTx(ctx, tx, s.now(), projectID, createdBy); err != nil {
			return err
		}
		if res.FilesSynced, err = syncMessageFilesTx(ctx, tx, projectID); err != nil {
			return err
		}
		res.FilesOrganized, err = autoOrganizeTx(ctx, tx, projectID)
		return err
	})
	logOutcome("project_files", "setup", startedAt, err, fmt.Sprintf("project_id=%s folders_created=%d synced=%d organized=%d", projectID, res.FoldersCreated, res.FilesSynced, res.FilesOrganized))
	if err != nil {
		return SetupResult{}, err
	}
	if res.FoldersCreated > 0 {
		s.publish(ctx, domain.ChangeFolders, projectID, "", "")
	}
	if res.FilesSynced+res.FilesOrganized > 0 {
		s.publish(ctx, domain.ChangeFiles, projectID, "", "")
	}
	return res, nil
}

func (s *FileService) CreateFolder(ctx context.Context, input CreateFolderInput) (domain.Folder, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return domain.Folder{}, invalid("name is required")
	}
	if !input.CreatedBy.Valid() {
		return domain.Folder{}, invalid("created_by must be client or developer")
	}
	folder := domain.Folder{
		ID:        newID(),
		ProjectID: input.ProjectID,
		ParentID:  input.ParentID,
		Name:      name,
		Color:     strings.TrimSpace(input.Color),
		Icon:      strings.TrimSpace(input.Icon),
		CreatedBy: input.CreatedBy,
		CreatedAt: s.now(),
	}
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetProject(ctx, input.ProjectID); err != nil {
			return err
		}
		if input.ParentID != nil {
			if _, err := folderInProject(ctx, tx, *input.ParentID, input.ProjectID); err != nil {
				return err
			}
		}
		return tx.InsertFolder(ctx, folder)
	})
	if err != nil {
		return domain.Folder{}, err
	}
	s.publish(ctx, domain.ChangeFolders, folder.ProjectID, "", folder.ID)
	return folder, nil
}

// DeleteFolder removes the folder and its subfolders. Files inside any of
// them become unsorted. It returns the number of files released.
func (s *FileService) DeleteFolder(ctx context.Context, folderID string) (int64, error) {
	var (
		released int64
		folder   domain.Folder
	)
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		folder, err = tx.GetFolder(ctx, folderID)
		if err != nil {
			return err
		}
		all, err := tx.ListFolders(ctx, folder.ProjectID)
		if err != nil {
			return err
		}
		children := map[string][]string{}
		for _, f := range all {
			if f.ParentID != nil {
				children[*f.ParentID] = append(children[*f.ParentID], f.ID)
			}
		}

		var remove func(id string) error
		remove = func(id string) error {
			for _, child := range children[id] {
				if err := remove(child); err != nil {
					return err
				}
			}
			n, err := tx.UnsortFilesInFolder(ctx, id)
			if err != nil {
				return err
			}
			released += n
			return tx.DeleteFolder(ctx, id)
		}
		return remove(folderID)
	})
	if err != nil {
		return 0, err
	}
	s.publish(ctx, domain.ChangeFolders, folder.ProjectID, "", folder.ID)
	if released > 0 {
		s.publish(ctx, domain.ChangeFiles, folder.ProjectID, "", "")
	}
	return released, nil
}

func (s *FileService) ListFolders(ctx context.Context, projectID string) ([]domain.Folder, error) {
	var items []domain.Folder
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetProject(ctx, projectID); err != nil {
			return err
		}
		var err error
		items, err = tx.ListFolders(ctx, projectID)
		return err
	})
	return items, err
}

func (s *FileService) ListFiles(ctx context.Context, projectID string, folderID *string, placement domain.Placement) ([]domain.ProjectFile, error) {
	var items []domain.ProjectFile
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetProject(ctx, projectID); err != nil {
			return err
		}
		var err error
		items, err = tx.ListFiles(ctx, repository.FileFilter{ProjectID: projectID, FolderID: folderID, Placement: placement})
		return err
	})
	return items, err
}

func (s *FileService) UpdateFileTags(ctx context.Context, fileID string, tags []string) (domain.ProjectFile, error) {
	var file domain.ProjectFile
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		file, err = tx.GetFile(ctx, fileID)
		if err != nil {
			return err
		}
		file.Tags = dedupeAndTrim(tags)
		return tx.UpdateFile(ctx, file)
	})
	if err != nil {
		return domain.ProjectFile{}, err
	}
	s.publish(ctx, domain.ChangeFiles, file.ProjectID, "", file.ID)
	return file, nil
}

// DeleteFile drops the catalogue row, then removes the stored object and its
// thumbnail best effort.
func (s *FileService) DeleteFile(ctx context.Context, fileID string) error {
	var file domain.ProjectFile
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		file, err = tx.GetFile(ctx, fileID)
		if err != nil {
			return err
		}
		return tx.DeleteFile(ctx, fileID)
	})
	if err != nil {
		return err
	}
	keys := []string{file.StorageID}
	if file.ThumbnailID != nil {
		keys = append(keys, *file.ThumbnailID)
	}
	removeObjects(ctx, s.objects, keys)
	s.publish(ctx, domain.ChangeFiles, file.ProjectID, "", file.ID)
	return nil
}

func removeObjects(ctx context.Context, objects ObjectStore, keys []string) {
	if objects == nil {
		return
	}
	for _, key := range keys {
		if err := objects.Remove(ctx, key); err != nil {
			commonlog.Warnf("event=object_storage action=remove status=failed object_key=%s error=%v", key, err)
		}
	}
}
