package board

import (
	"errors"
	"fmt"
	"strings"

	"noticeboard/models"
)

// MissingTableGuidance is shown instead of a generic failure when the backend
// reports that the posts table is missing.
const MissingTableGuidance = `the board_posts table does not exist, run "noticeboard migrate" against the backend database to create it`

// FetchError is returned when a query against the data service fails
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// MutationError is returned when an insert, update or delete is rejected
type MutationError struct {
	Op     string
	PostId int64
	Err    error
}

func (e *MutationError) Error() string {
	if e.PostId != 0 {
		return fmt.Sprintf("%s post %d: %v", e.Op, e.PostId, e.Err)
	}
	return fmt.Sprintf("%s post: %v", e.Op, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// SubscriptionError describes a change feed subscription that failed to
// establish or was dropped.
type SubscriptionError struct {
	Topic  string
	Status models.SubscriptionStatus
	Err    error
}

func (e *SubscriptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("subscription %s: %s: %v", e.Topic, e.Status, e.Err)
	}
	return fmt.Sprintf("subscription %s: %s", e.Topic, e.Status)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// IsMissingTable reports whether err signals that the posts table does not
// exist on the backend.
func IsMissingTable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *models.APIError
	if errors.As(err, &apiErr) {
		return strings.Contains(apiErr.Message, "does not exist")
	}
	return strings.Contains(err.Error(), "does not exist")
}

// describe turns an error into the text of a user facing notification
func describe(prefix string, err error) string {
	if IsMissingTable(err) {
		return MissingTableGuidance
	}
	var apiErr *models.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Message != "":
			return prefix + ": " + apiErr.Message
		case apiErr.Details != "":
			return prefix + ": " + apiErr.Details
		case apiErr.Code != "":
			return prefix + ": code " + apiErr.Code
		}
	}
	return prefix + ": " + err.Error()
}
