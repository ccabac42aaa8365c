package board

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	log "github.com/sirupsen/logrus"

	"noticeboard/models"
)

// DetailView shows a single post and follows its updates. When the post is
// deleted by anyone the view navigates back to the list.
type DetailView struct {
	id         int64
	svc        DataService
	subscriber *Subscriber
	notes      *Notifications
	nav        Navigator

	mu       sync.Mutex
	post     *models.Post
	handle   *Handle
	state    models.ConnectivityState
	left     bool
	onChange func()
}

func NewDetailView(id int64, svc DataService, feed ChangeFeed, notes *Notifications, nav Navigator) *DetailView {
	return &DetailView{
		id:         id,
		svc:        svc,
		subscriber: NewSubscriber(feed, notes),
		notes:      notes,
		nav:        nav,
		state:      models.Connecting,
	}
}

func (v *DetailView) OnChange(fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onChange = fn
}

// Mount subscribes to updates and deletes of the post and loads it
func (v *DetailView) Mount(ctx context.Context) error {
	scope := models.PostScope(v.id, models.EventUpdate, models.EventDelete)
	handle, err := v.subscriber.Open(ctx, scope, v.applyEvent, v.stateChanged)
	if err == nil {
		v.mu.Lock()
		v.handle = handle
		v.mu.Unlock()
	}

	return v.load(ctx)
}

func (v *DetailView) Unmount() {
	v.mu.Lock()
	handle := v.handle
	v.mu.Unlock()

	if handle != nil {
		if err := handle.Close(); err != nil {
			log.WithError(err).Warn("Error closing post subscription")
		}
	}
}

// Post returns the loaded post. ok is false while the post is not loaded or
// could not be found.
func (v *DetailView) Post() (post models.Post, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.post == nil {
		return models.Post{}, false
	}
	return *v.post, true
}

func (v *DetailView) State() models.ConnectivityState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Delete removes the post the user already confirmed and goes back to the
// list, which refetches on its own mount.
func (v *DetailView) Delete(ctx context.Context) error {
	if err := v.svc.DeletePost(ctx, v.id); err != nil {
		log.WithError(err).WithField("id", v.id).Warn("Error deleting post")
		v.notes.Push(describe("Could not delete post", err), models.SeverityWarning)
		return &MutationError{Op: "delete", PostId: v.id, Err: err}
	}
	v.notes.Push(fmt.Sprintf("Post %d deleted", v.id), models.SeveritySuccess)
	v.leave()
	return nil
}

func (v *DetailView) load(ctx context.Context) error {
	post, err := v.svc.GetPost(ctx, v.id)
	if err != nil {
		var apiErr *models.APIError
		// A missing table also comes back as 404
		if !IsMissingTable(err) && errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			log.WithField("id", v.id).Info("Post not found")
			v.notes.Push(fmt.Sprintf("Post %d not found", v.id), models.SeverityWarning)
		} else {
			log.WithError(err).WithField("id", v.id).Warn("Error fetching post")
			v.notes.Push(describe("Could not load post", err), models.SeverityWarning)
		}
		v.changed()
		return &FetchError{Op: fmt.Sprintf("get post %d", v.id), Err: err}
	}

	v.mu.Lock()
	v.post = &post
	v.mu.Unlock()
	v.changed()
	return nil
}

func (v *DetailView) applyEvent(evt models.ChangeEvent) {
	if evt.Post.Id != v.id {
		return
	}

	switch evt.Type {
	case models.EventUpdate:
		post := evt.Post
		v.mu.Lock()
		v.post = &post
		v.mu.Unlock()
		v.notes.Push("This post was updated", models.SeverityInfo)
		v.changed()
	case models.EventDelete:
		v.notes.Push("This post was deleted", models.SeverityWarning)
		v.leave()
	}
}

// leave navigates to the list once, whichever of the user's own delete or the
// feed's delete event comes first.
func (v *DetailView) leave() {
	v.mu.Lock()
	if v.left {
		v.mu.Unlock()
		return
	}
	v.left = true
	v.post = nil
	v.mu.Unlock()

	v.nav.Navigate(ListRoute())
}

func (v *DetailView) stateChanged(prev, next models.ConnectivityState) {
	v.mu.Lock()
	v.state = next
	v.mu.Unlock()
	v.changed()
}

func (v *DetailView) changed() {
	v.mu.Lock()
	fn := v.onChange
	v.mu.Unlock()

	if fn != nil {
		fn()
	}
}
