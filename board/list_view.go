package board

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"noticeboard/models"
)

// ListView is the page listing all posts. It keeps its collection in sync
// with the backend through a table wide subscription.
type ListView struct {
	svc        DataService
	subscriber *Subscriber
	notes      *Notifications

	mu       sync.Mutex
	rec      *Reconciler
	handle    *Handle
	state     models.ConnectivityState
	ctx       context.Context
	cancel    context.CancelFunc
	unmounted bool
	onChange  func()
}

func NewListView(svc DataService, feed ChangeFeed, notes *Notifications) *ListView {
	return &ListView{
		svc:        svc,
		subscriber: NewSubscriber(feed, notes),
		notes:      notes,
		rec:        NewReconciler(),
		state:      models.Connecting,
	}
}

// OnChange registers a callback invoked after the posts or the connectivity
// state changed. It runs without the view lock held.
func (v *ListView) OnChange(fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onChange = fn
}

// Mount opens the subscription and performs the initial fetch. A failed
// subscription leaves the view working without live updates; only a failed
// fetch is returned.
func (v *ListView) Mount(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	v.mu.Lock()
	v.ctx, v.cancel = ctx, cancel
	v.mu.Unlock()

	handle, err := v.subscriber.Open(ctx, models.TableScope(), v.applyEvent, v.stateChanged)
	if err == nil {
		v.mu.Lock()
		v.handle = handle
		v.mu.Unlock()
	}

	return v.Refresh(ctx)
}

// Unmount closes the subscription. Safe to call more than once.
func (v *ListView) Unmount() {
	v.mu.Lock()
	handle, cancel := v.handle, v.cancel
	v.unmounted = true
	v.mu.Unlock()

	// Stops a resync still in flight
	if cancel != nil {
		cancel()
	}
	if handle != nil {
		if err := handle.Close(); err != nil {
			log.WithError(err).Warn("Error closing list subscription")
		}
	}
}

// Refresh replaces the collection with the backend's current posts. On error
// the collection is left as it was.
func (v *ListView) Refresh(ctx context.Context) error {
	v.mu.Lock()
	v.rec.BeginRefetch()
	v.mu.Unlock()

	posts, err := v.svc.ListPosts(ctx)

	v.mu.Lock()
	if err != nil {
		v.rec.AbortRefetch()
		unmounted := v.unmounted
		v.mu.Unlock()

		fetchErr := &FetchError{Op: "list posts", Err: err}
		if unmounted {
			log.WithError(err).Debug("Fetch finished after unmount")
			return fetchErr
		}
		log.WithError(err).Warn("Error fetching posts")
		v.notes.Push(describe("Could not load posts", err), models.SeverityWarning)
		return fetchErr
	}
	v.rec.CompleteRefetch(posts)
	count := v.rec.Len()
	v.mu.Unlock()

	log.WithFields(log.Fields{
		"count": count,
	}).Debug("Fetched posts")
	v.changed()
	return nil
}

// Delete removes a post the user already confirmed. The collection is not
// touched directly: after a successful delete of a visible post the view
// refetches, otherwise the feed delete event takes care of it.
func (v *ListView) Delete(ctx context.Context, id int64) error {
	if err := v.svc.DeletePost(ctx, id); err != nil {
		mutErr := &MutationError{Op: "delete", PostId: id, Err: err}
		log.WithError(err).WithField("id", id).Warn("Error deleting post")
		v.notes.Push(describe("Could not delete post", err), models.SeverityWarning)
		return mutErr
	}

	v.notes.Push(fmt.Sprintf("Post %d deleted", id), models.SeveritySuccess)

	v.mu.Lock()
	visible := v.rec.Contains(id)
	v.mu.Unlock()

	if visible {
		return v.Refresh(ctx)
	}
	return nil
}

// Posts returns the reconciled collection, newest first
func (v *ListView) Posts() []models.Post {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rec.Posts()
}

func (v *ListView) State() models.ConnectivityState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func (v *ListView) applyEvent(evt models.ChangeEvent) {
	v.mu.Lock()
	changed := v.rec.Apply(evt)
	v.mu.Unlock()

	if !changed {
		return
	}

	switch evt.Type {
	case models.EventInsert:
		v.notes.Push(fmt.Sprintf("New post %q by %s", evt.Post.Title, evt.Post.Author), models.SeverityInfo)
	case models.EventUpdate:
		v.notes.Push(fmt.Sprintf("Post %q was updated", evt.Post.Title), models.SeverityInfo)
	case models.EventDelete:
		v.notes.Push(fmt.Sprintf("Post %d was deleted", evt.Post.Id), models.SeverityInfo)
	}
	v.changed()
}

func (v *ListView) stateChanged(prev, next models.ConnectivityState) {
	v.mu.Lock()
	v.state = next
	ctx, unmounted := v.ctx, v.unmounted
	v.mu.Unlock()

	v.changed()

	// Events may have been missed while the subscription was down
	if prev == models.Disconnected && next == models.Connected && ctx != nil && !unmounted {
		go func() {
			if err := v.Refresh(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Warn("Resync after reconnect failed")
			}
		}()
	}
}

func (v *ListView) changed() {
	v.mu.Lock()
	fn, unmounted := v.onChange, v.unmounted
	v.mu.Unlock()

	if fn != nil && !unmounted {
		fn()
	}
}
