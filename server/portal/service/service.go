package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	commonlog "portal_server/server/common/log"
	"portal_server/server/portal/domain"
	"portal_server/server/portal/repository"
	"portal_server/server/translate"
)

// Dispatcher receives the ids of notification rows committed as pending.
type Dispatcher interface {
	Enqueue(ctx context.Context, ids ...string)
}

type Translator interface {
	Translate(ctx context.Context, text, source, target string) translate.Result
}

// ObjectStore is the file storage boundary. Keys are opaque and stable;
// download URLs expire and are minted on every read.
type ObjectStore interface {
	PresignUpload(ctx context.Context, objectKey string) (string, error)
	PresignDownload(ctx context.Context, objectKey string) (string, error)
	Remove(ctx context.Context, objectKey string) error
	MakeThumbnail(ctx context.Context, objectKey string) (string, error)
}

type noopDispatcher struct{}

func (noopDispatcher) Enqueue(context.Context, ...string) {}

// core carries what every service needs: the store, the change feed and a
// clock.
type core struct {
	store repository.Store
	feed  Feed
	now   func() time.Time
}

func newCore(store repository.Store, feed Feed) core {
	if feed == nil {
		feed = NewLocalFeed()
	}
	return core{store: store, feed: feed, now: func() time.Time { return time.Now().UTC() }}
}

func (c core) publish(ctx context.Context, kind, projectID, threadID, entityID string) {
	c.feed.Publish(ctx, domain.Change{
		Kind:      kind,
		ProjectID: projectID,
		ThreadID:  threadID,
		EntityID:  entityID,
		At:        c.now(),
	})
}

// inTxRetry runs fn in a transaction, once more if the first attempt lost a
// unique-key race. The lazy folder bootstrap is the usual loser.
func (c core) inTxRetry(ctx context.Context, fn func(tx repository.Tx) error) error {
	err := c.store.InTx(ctx, fn)
	if errors.Is(err, domain.ErrConflict) {
		err = c.store.InTx(ctx, fn)
	}
	return err
}

func newID() string {
	return uuid.NewString()
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, fmt.Sprintf(format, args...))
}

func ptr[T any](v T) *T {
	return &v
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func dedupeAndTrim(items []string) []string {
	result := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, item := range items {
		value := strings.TrimSpace(item)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	return result
}

func logOutcome(event, action string, started time.Time, err error, fields string) {
	if err != nil {
		commonlog.Errorf("event=%s action=%s status=failed latency_ms=%d %s error=%v", event, action, time.Since(started).Milliseconds(), fields, err)
		return
	}
	commonlog.Infof("event=%s action=%s status=ok latency_ms=%d %s", event, action, time.Since(started).Milliseconds(), fields)
}
