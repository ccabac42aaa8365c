package board

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"noticeboard/models"
)

// Editor backs the write and edit pages. Saving never touches any view's
// collection; list views pick the change up from the feed or on mount.
type Editor struct {
	id    int64
	svc   DataService
	notes *Notifications
	nav   Navigator
	now   func() time.Time
}

// NewEditor returns an editor for a new post
func NewEditor(svc DataService, notes *Notifications, nav Navigator) *Editor {
	return &Editor{svc: svc, notes: notes, nav: nav, now: time.Now}
}

// NewEditEditor returns an editor for an existing post
func NewEditEditor(id int64, svc DataService, notes *Notifications, nav Navigator) *Editor {
	return &Editor{id: id, svc: svc, notes: notes, nav: nav, now: time.Now}
}

func (e *Editor) IsEdit() bool {
	return e.id != 0
}

// Load fetches the post being edited so the form can be prefilled
func (e *Editor) Load(ctx context.Context) (models.Post, error) {
	if !e.IsEdit() {
		return models.Post{}, nil
	}
	post, err := e.svc.GetPost(ctx, e.id)
	if err != nil {
		log.WithError(err).WithField("id", e.id).Warn("Error fetching post for edit")
		e.notes.Push(describe("Could not load post", err), models.SeverityWarning)
		return models.Post{}, &FetchError{Op: fmt.Sprintf("get post %d", e.id), Err: err}
	}
	return post, nil
}

// Submit creates or updates the post from the form values and navigates to
// the list on success. On failure the form values are left to the caller.
func (e *Editor) Submit(ctx context.Context, form models.Post) (models.Post, error) {
	op := "create"
	if e.IsEdit() {
		op = "update"
	}

	if err := form.Validate(); err != nil {
		e.notes.Push(describe("Please fill in the form", err), models.SeverityWarning)
		return models.Post{}, &MutationError{Op: op, PostId: e.id, Err: err}
	}

	input := models.Post{
		Title:   form.Title,
		Content: form.Content,
		Author:  form.Author,
	}

	var saved models.Post
	var err error
	if e.IsEdit() {
		now := e.now().UTC()
		input.UpdatedAt = &now
		saved, err = e.svc.UpdatePost(ctx, e.id, input)
	} else {
		saved, err = e.svc.CreatePost(ctx, input)
	}

	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"op": op,
			"id": e.id,
		}).Warn("Error saving post")
		e.notes.Push(describe("Could not save post", err), models.SeverityWarning)
		return models.Post{}, &MutationError{Op: op, PostId: e.id, Err: err}
	}

	if e.IsEdit() {
		e.notes.Push(fmt.Sprintf("Post %q updated", saved.Title), models.SeveritySuccess)
	} else {
		e.notes.Push(fmt.Sprintf("Post %q created", saved.Title), models.SeveritySuccess)
	}
	e.nav.Navigate(ListRoute())
	return saved, nil
}
