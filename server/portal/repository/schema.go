package repository

// Schema is applied at startup; every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS clients (
    client_id   TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    email       TEXT NULL,
    language    TEXT NOT NULL DEFAULT 'en',
    tech_level  INT NOT NULL DEFAULT 3 CHECK (tech_level BETWEEN 1 AND 5),
    timezone    TEXT NOT NULL DEFAULT 'UTC',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_clients_name ON clients(name);

CREATE TABLE IF NOT EXISTS projects (
    project_id   TEXT PRIMARY KEY,
    client_id    TEXT NOT NULL REFERENCES clients(client_id),
    name         TEXT NOT NULL,
    description  TEXT NULL,
    project_type TEXT NOT NULL CHECK (project_type IN ('presentation','cards','lead_gen','website','other')),
    status       TEXT NOT NULL CHECK (status IN ('not_started','in_progress','review','complete','paused')),
    priority     TEXT NOT NULL CHECK (priority IN ('low','medium','high','urgent')),
    icon         TEXT NOT NULL DEFAULT '',
    color        TEXT NOT NULL DEFAULT '',
    deadline     TIMESTAMPTZ NULL,
    is_archived  BOOLEAN NOT NULL DEFAULT FALSE,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS ix_projects_client ON projects(client_id);

CREATE TABLE IF NOT EXISTS threads (
    thread_id              TEXT PRIMARY KEY,
    project_id             TEXT NOT NULL REFERENCES projects(project_id),
    title                  TEXT NOT NULL,
    status                 TEXT NOT NULL CHECK (status IN ('new','acknowledged','in_progress','resolved','closed')),
    priority               TEXT NOT NULL CHECK (priority IN ('normal','urgent')),
    created_by             TEXT NOT NULL CHECK (created_by IN ('client','developer')),
    is_archived            BOOLEAN NOT NULL DEFAULT FALSE,
    last_activity          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    unread_count_client    INT NOT NULL DEFAULT 0 CHECK (unread_count_client >= 0),
    unread_count_developer INT NOT NULL DEFAULT 0 CHECK (unread_count_developer >= 0),
    created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS ix_threads_project ON threads(project_id);
CREATE INDEX IF NOT EXISTS ix_threads_last_activity ON threads(last_activity DESC);

CREATE TABLE IF NOT EXISTS messages (
    message_id          TEXT PRIMARY KEY,
    seq                 BIGSERIAL,
    thread_id           TEXT NOT NULL REFERENCES threads(thread_id),
    author              TEXT NOT NULL CHECK (author IN ('client','developer')),
    content             TEXT NOT NULL,
    message_type        TEXT NOT NULL CHECK (message_type IN ('text','system','status_update','file')),
    is_private          BOOLEAN NOT NULL DEFAULT FALSE,
    is_edited           BOOLEAN NOT NULL DEFAULT FALSE,
    edited_at           TIMESTAMPTZ NULL,
    is_deleted          BOOLEAN NOT NULL DEFAULT FALSE,
    deleted_at          TIMESTAMPTZ NULL,
    original_content    TEXT NULL,
    original_language   TEXT NULL,
    translated_content  TEXT NULL,
    target_language     TEXT NULL,
    translation_enabled BOOLEAN NOT NULL DEFAULT FALSE,
    file_id             TEXT NULL,
    file_name           TEXT NULL,
    file_type           TEXT NULL,
    file_size           BIGINT NULL,
    file_url            TEXT NULL,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS ix_messages_thread ON messages(thread_id, created_at, seq);

CREATE TABLE IF NOT EXISTS folders (
    folder_id  TEXT PRIMARY KEY,
    project_id TEXT NOT NULL REFERENCES projects(project_id),
    parent_id  TEXT NULL REFERENCES folders(folder_id),
    name       TEXT NOT NULL,
    color      TEXT NOT NULL DEFAULT '',
    icon       TEXT NOT NULL DEFAULT '',
    created_by TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS ix_folders_project ON folders(project_id);
CREATE INDEX IF NOT EXISTS ix_folders_parent ON folders(parent_id);
CREATE UNIQUE INDEX IF NOT EXISTS ux_folders_root_name ON folders(project_id, name) WHERE parent_id IS NULL;

CREATE TABLE IF NOT EXISTS project_files (
    file_id      TEXT PRIMARY KEY,
    project_id   TEXT NOT NULL REFERENCES projects(project_id),
    folder_id    TEXT NULL REFERENCES folders(folder_id),
    placement    TEXT NOT NULL CHECK (placement IN ('unsorted','root','folder')),
    storage_id   TEXT NOT NULL,
    thumbnail_id TEXT NULL,
    file_name    TEXT NOT NULL,
    file_type    TEXT NOT NULL,
    file_size    BIGINT NOT NULL DEFAULT 0,
    message_id   TEXT NULL,
    tags         TEXT[] NOT NULL DEFAULT '{}',
    uploaded_by  TEXT NOT NULL,
    uploaded_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    moved_at     TIMESTAMPTZ NULL
);
CREATE INDEX IF NOT EXISTS ix_project_files_project ON project_files(project_id);
CREATE INDEX IF NOT EXISTS ix_project_files_folder ON project_files(folder_id);
CREATE UNIQUE INDEX IF NOT EXISTS ux_project_files_message ON project_files(message_id) WHERE message_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS notifications (
    notification_id TEXT PRIMARY KEY,
    kind            TEXT NOT NULL,
    recipient       TEXT NOT NULL,
    message         TEXT NOT NULL,
    thread_id       TEXT NULL,
    project_id      TEXT NULL,
    status          TEXT NOT NULL CHECK (status IN ('pending','sent','failed')),
    attempts        INT NOT NULL DEFAULT 0,
    last_error      TEXT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    sent_at         TIMESTAMPTZ NULL
);
CREATE INDEX IF NOT EXISTS ix_notifications_status ON notifications(status, created_at);
CREATE INDEX IF NOT EXISTS ix_notifications_thread ON notifications(thread_id);
CREATE INDEX IF NOT EXISTS ix_notifications_project ON notifications(project_id);

CREATE TABLE IF NOT EXISTS feedback (
    feedback_id TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    content     TEXT NOT NULL,
    priority    TEXT NOT NULL DEFAULT 'normal',
    status      TEXT NOT NULL DEFAULT 'pending',
    response    TEXT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS legacy_feedback (
    feedback_id        TEXT PRIMARY KEY,
    title              TEXT NOT NULL,
    content            TEXT NOT NULL,
    priority           TEXT NOT NULL,
    status             TEXT NOT NULL,
    response           TEXT NULL,
    created_at         TIMESTAMPTZ NOT NULL,
    migrated_thread_id TEXT NOT NULL,
    migrated_at        TIMESTAMPTZ NOT NULL
);
`
