package service

import (
	"context"
	"encoding/json"
	"sync"

	"portal_server/server/common/infra/cache"
	commonlog "portal_server/server/common/log"
	"portal_server/server/portal/domain"
)

// Feed delivers committed changes to live subscribers. A subscription ends
// and its channel closes when ctx is cancelled.
type Feed interface {
	Publish(ctx context.Context, change domain.Change)
	Subscribe(ctx context.Context, projectID string) (<-chan domain.Change, error)
}

type LocalFeed struct {
	mu   sync.RWMutex
	next int
	subs map[int]*localSub
}

type localSub struct {
	projectID string
	ch        chan domain.Change
}

func NewLocalFeed() *LocalFeed {
	return &LocalFeed{subs: map[int]*localSub{}}
}

func (f *LocalFeed) Publish(_ context.Context, change domain.Change) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sub := range f.subs {
		if !change.Matches(sub.projectID) {
			continue
		}
		select {
		case sub.ch <- change:
		default:
			commonlog.Warnf("event=live_feed action=drop status=slow_consumer kind=%s project_id=%s", change.Kind, change.ProjectID)
		}
	}
}

func (f *LocalFeed) Subscribe(ctx context.Context, projectID string) (<-chan domain.Change, error) {
	sub := &localSub{projectID: projectID, ch: make(chan domain.Change, 64)}
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = sub
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
		close(sub.ch)
	}()
	return sub.ch, nil
}

func (f *LocalFeed) subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// RedisFeed shares changes between every process subscribed to the same
// redis channel.
type RedisFeed struct {
	pubsub *cache.PubSub
}

func NewRedisFeed(pubsub *cache.PubSub) *RedisFeed {
	return &RedisFeed{pubsub: pubsub}
}

func (f *RedisFeed) Publish(ctx context.Context, change domain.Change) {
	if err := f.pubsub.Publish(ctx, change); err != nil {
		commonlog.Errorf("event=live_feed action=publish status=failed kind=%s project_id=%s error=%v", change.Kind, change.ProjectID, err)
	}
}

func (f *RedisFeed) Subscribe(ctx context.Context, projectID string) (<-chan domain.Change, error) {
	raw, err := f.pubsub.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan domain.Change, 64)
	go func() {
		defer close(out)
		for payload := range raw {
			var change domain.Change
			if err := json.Unmarshal(payload, &change); err != nil {
				continue
			}
			if !change.Matches(projectID) {
				continue
			}
			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
