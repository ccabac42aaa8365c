package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Table is the name of the posts table on the backend
const Table = "board_posts"

var ErrInvalidPost = errors.New("invalid post")

// Post is a single bulletin board entry
type Post struct {
	Id        int64      `json:"id,omitempty"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Author    string     `json:"author"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Validate checks the fields a user has to fill in
func (p Post) Validate() error {
	var missing []string
	if strings.TrimSpace(p.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(p.Content) == "" {
		missing = append(missing, "content")
	}
	if strings.TrimSpace(p.Author) == "" {
		missing = append(missing, "author")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidPost, strings.Join(missing, ", "))
	}
	return nil
}

// EventType is the kind of row change carried by the change feed
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// ChangeEvent fired when a row in the posts table changes.
// Post holds the new values for inserts and updates. For deletes only
// Post.Id is guaranteed to be set.
type ChangeEvent struct {
	Type EventType `json:"type"`
	Post Post      `json:"record"`
}

// Scope selects which rows a subscription receives
type Scope struct {
	// PostId limits the scope to a single post. Zero means the whole table.
	PostId int64
	// Events filters the event types. Empty means all of them.
	Events []EventType
}

func TableScope(events ...EventType) Scope {
	return Scope{Events: events}
}

func PostScope(id int64, events ...EventType) Scope {
	return Scope{PostId: id, Events: events}
}

// Topic is the channel name used on the wire for the scope
func (s Scope) Topic() string {
	if s.PostId == 0 {
		return Table
	}
	return fmt.Sprintf("board_post_%d", s.PostId)
}

// Filter renders the row filter, e.g. "id=eq.3"
func (s Scope) Filter() string {
	if s.PostId == 0 {
		return ""
	}
	return fmt.Sprintf("id=eq.%d", s.PostId)
}

// Wants reports whether the event type passes the scope's event filter
func (s Scope) Wants(t EventType) bool {
	if len(s.Events) == 0 {
		return true
	}
	for _, e := range s.Events {
		if e == t {
			return true
		}
	}
	return false
}

// Matches reports whether the change event belongs to the scope
func (s Scope) Matches(evt ChangeEvent) bool {
	if !s.Wants(evt.Type) {
		return false
	}
	return s.PostId == 0 || s.PostId == evt.Post.Id
}

// ParseFilter parses a filter produced by Scope.Filter. An empty filter
// means the whole table.
func ParseFilter(filter string) (int64, error) {
	if filter == "" {
		return 0, nil
	}
	value, ok := strings.CutPrefix(filter, "id=eq.")
	if !ok {
		return 0, fmt.Errorf("unsupported filter %q", filter)
	}
	var id int64
	if _, err := fmt.Sscanf(value, "%d", &id); err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id in filter %q", filter)
	}
	return id, nil
}

// SubscriptionStatus is reported by the change feed for an open subscription
type SubscriptionStatus string

const (
	StatusSubscribed   SubscriptionStatus = "SUBSCRIBED"
	StatusChannelError SubscriptionStatus = "CHANNEL_ERROR"
	StatusClosed       SubscriptionStatus = "CLOSED"
)

// ConnectivityState of a single open subscription as seen by a view
type ConnectivityState string

const (
	Connecting   ConnectivityState = "connecting"
	Connected    ConnectivityState = "connected"
	Disconnected ConnectivityState = "disconnected"
)

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Notification is a short lived status message shown to the user
type Notification struct {
	Id        string    `json:"id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"createdAt"`
}

// APIError is the error body returned by the data service
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (code %s)", e.Message, e.Code)
	}
	return e.Message
}
