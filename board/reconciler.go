package board

import (
	"slices"

	"github.com/samber/lo"

	"noticeboard/models"
)

// Reconciler owns the posts collection of a list view. Feed events and user
// driven refetches are applied to the same collection so that both paths
// converge without losing or duplicating posts.
//
// A Reconciler is not safe for concurrent use; the owning view serializes
// access to it.
type Reconciler struct {
	posts []models.Post

	// Number of refetches in flight. While non-zero every applied change is
	// also journaled so it can be replayed onto the incoming snapshot.
	refetching int
	journal    []models.ChangeEvent
}

func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// Posts returns a copy of the collection
func (r *Reconciler) Posts() []models.Post {
	return append([]models.Post(nil), r.posts...)
}

func (r *Reconciler) Len() int {
	return len(r.posts)
}

// Contains reports whether a post with the id is in the collection
func (r *Reconciler) Contains(id int64) bool {
	return r.indexOf(id) >= 0
}

// Apply dispatches a change event to the matching apply operation and reports
// whether the collection changed.
func (r *Reconciler) Apply(evt models.ChangeEvent) bool {
	if r.refetching > 0 {
		r.journal = append(r.journal, evt)
	}
	return r.apply(evt)
}

// ApplyInsert prepends the post unless a post with the same id is present
func (r *Reconciler) ApplyInsert(post models.Post) bool {
	return r.Apply(models.ChangeEvent{Type: models.EventInsert, Post: post})
}

// ApplyUpdate replaces the post with the same id in place
func (r *Reconciler) ApplyUpdate(post models.Post) bool {
	return r.Apply(models.ChangeEvent{Type: models.EventUpdate, Post: post})
}

// ApplyDelete removes the post with the id if present
func (r *Reconciler) ApplyDelete(id int64) bool {
	return r.Apply(models.ChangeEvent{Type: models.EventDelete, Post: models.Post{Id: id}})
}

// BeginRefetch marks the start of a full fetch. Changes applied until the
// matching CompleteRefetch or AbortRefetch are replayed onto the snapshot.
func (r *Reconciler) BeginRefetch() {
	r.refetching++
}

// CompleteRefetch replaces the collection with a fresh snapshot ordered by
// creation time, newest first, then replays changes observed while the fetch
// was in flight.
func (r *Reconciler) CompleteRefetch(snapshot []models.Post) {
	posts := lo.UniqBy(snapshot, func(p models.Post) int64 { return p.Id })
	slices.SortStableFunc(posts, func(a, b models.Post) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	r.posts = posts

	for _, evt := range r.journal {
		r.apply(evt)
	}
	r.finishRefetch()
}

// AbortRefetch ends a failed fetch, leaving the collection unchanged
func (r *Reconciler) AbortRefetch() {
	r.finishRefetch()
}

func (r *Reconciler) finishRefetch() {
	if r.refetching > 0 {
		r.refetching--
	}
	if r.refetching == 0 {
		r.journal = nil
	}
}

func (r *Reconciler) apply(evt models.ChangeEvent) bool {
	switch evt.Type {
	case models.EventInsert:
		if r.indexOf(evt.Post.Id) >= 0 {
			return false
		}
		r.posts = slices.Insert(r.posts, 0, evt.Post)
		return true
	case models.EventUpdate:
		idx := r.indexOf(evt.Post.Id)
		if idx < 0 {
			return false
		}
		r.posts[idx] = evt.Post
		return true
	case models.EventDelete:
		idx := r.indexOf(evt.Post.Id)
		if idx < 0 {
			return false
		}
		r.posts = slices.Delete(r.posts, idx, idx+1)
		return true
	}
	return false
}

func (r *Reconciler) indexOf(id int64) int {
	_, idx, _ := lo.FindIndexOf(r.posts, func(p models.Post) bool { return p.Id == id })
	return idx
}
