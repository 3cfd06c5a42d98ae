package interfaces

import (
	"errors"
	"fmt"

	"github.com/bobmcallan/capscan/internal/models"
)

// Error kinds shared by the market client and its callers. Match with errors.Is.
var (
	// ErrAuth: bad credentials or unreachable auth endpoint. Fatal to a run.
	ErrAuth = errors.New("authentication failed")
	// ErrSessionExpired: the API rejected the session tokens mid-run.
	ErrSessionExpired = errors.New("session expired")
	// ErrCategoryFetch: a category listing could not be fetched.
	ErrCategoryFetch = errors.New("category fetch failed")
	// ErrDetailFetch: a single-instrument lookup failed or was malformed.
	ErrDetailFetch = errors.New("detail fetch failed")
	// ErrRefreshInProgress: a refresh was requested while one is running.
	ErrRefreshInProgress = errors.New("refresh already in progress")
)

// AuthError describes a failed session creation or keep-alive.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, ErrAuth)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrAuth, e.Err)
}

func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAuth}
	}
	return []error{ErrAuth, e.Err}
}

// CategoryFetchError describes a failed category listing.
type CategoryFetchError struct {
	Category models.Category
	Err      error
}

func (e *CategoryFetchError) Error() string {
	return fmt.Sprintf("%v (%s): %v", ErrCategoryFetch, e.Category, e.Err)
}

func (e *CategoryFetchError) Unwrap() []error {
	return []error{ErrCategoryFetch, e.Err}
}

// DetailFetchError describes a failed or malformed instrument lookup.
type DetailFetchError struct {
	Epic string
	Err  error
}

func (e *DetailFetchError) Error() string {
	return fmt.Sprintf("%v (%s): %v", ErrDetailFetch, e.Epic, e.Err)
}

func (e *DetailFetchError) Unwrap() []error {
	return []error{ErrDetailFetch, e.Err}
}
