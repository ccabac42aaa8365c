// Package board holds the client side of the bulletin board: the views, the
// reconciliation of a locally held post list against the change feed, and the
// notification queue that surfaces status messages to the user.
//
// The backend is reached through two interfaces, DataService and ChangeFeed,
// which the client package implements over HTTP and websockets.
package board

import (
	"context"
	"fmt"

	"noticeboard/models"
)

// DataService performs queries and mutations against the backend
type DataService interface {
	// ListPosts returns all posts ordered by creation time, newest first
	ListPosts(ctx context.Context) ([]models.Post, error)
	GetPost(ctx context.Context, id int64) (models.Post, error)
	// CreatePost inserts a post. The backend assigns the id and creation time.
	CreatePost(ctx context.Context, post models.Post) (models.Post, error)
	// UpdatePost overwrites title, content, author and updated_at of a post
	UpdatePost(ctx context.Context, id int64, post models.Post) (models.Post, error)
	DeletePost(ctx context.Context, id int64) error
}

// ChangeFeed opens live subscriptions to row changes
type ChangeFeed interface {
	Subscribe(ctx context.Context, scope models.Scope) (Subscription, error)
}

// Subscription is a live handle returned by ChangeFeed.Subscribe. Both
// channels are closed once the subscription is closed. Close must be safe to
// call more than once.
type Subscription interface {
	Events() <-chan models.ChangeEvent
	Status() <-chan models.SubscriptionStatus
	Close() error
}

type RouteKind int

const (
	RouteList RouteKind = iota
	RouteDetail
	RouteWrite
	RouteEdit
)

// Route identifies a page of the board
type Route struct {
	Kind   RouteKind
	PostId int64
}

func ListRoute() Route           { return Route{Kind: RouteList} }
func DetailRoute(id int64) Route { return Route{Kind: RouteDetail, PostId: id} }
func WriteRoute() Route          { return Route{Kind: RouteWrite} }
func EditRoute(id int64) Route   { return Route{Kind: RouteEdit, PostId: id} }

func (r Route) Path() string {
	switch r.Kind {
	case RouteDetail:
		return fmt.Sprintf("/board/%d", r.PostId)
	case RouteWrite:
		return "/board/write"
	case RouteEdit:
		return fmt.Sprintf("/board/edit/%d", r.PostId)
	default:
		return "/board"
	}
}

// Navigator moves the user to another page. Views call it from feed
// callbacks, so implementations must not block on the calling view.
type Navigator interface {
	Navigate(route Route)
}

type NavigatorFunc func(route Route)

func (f NavigatorFunc) Navigate(route Route) { f(route) }
