package services

import "errors"

var (
	// Fetch chain
	ErrPostNotFound          = errors.New("post not found")
	ErrRateLimited           = errors.New("provider rate limit reached")
	ErrEngagementUnavailable = errors.New("engagement data unavailable, try again later")
	errPrimarySkipped        = errors.New("primary API skipped")

	// Posts
	ErrAlreadySubmitted = errors.New("post already submitted")
	ErrAuthorMismatch   = errors.New("post was not written by the submitting account")
	ErrContentBlocked   = errors.New("post content was blocked")
	ErrUserBanned       = errors.New("user is banned")
	ErrNotPostOwner     = errors.New("only the post owner or an admin can do this")
	ErrInvalidPostState = errors.New("post is not in a state that allows this")

	// Points
	ErrInsufficientPoints = errors.New("not enough points for this debit")

	// Lookups
	ErrUserNotFound  = errors.New("user not found")
	ErrQuestNotFound = errors.New("quest not found")
	ErrPostMissing   = errors.New("post does not exist")

	// Quests
	ErrQuestNotClaimable   = errors.New("quest is not completed yet")
	ErrQuestAlreadyClaimed = errors.New("quest already claimed")
	ErrQuestExists         = errors.New("a quest with this code already exists")

	// Admin
	ErrSnapshotDisabled = errors.New("snapshot storage is not configured")
)

// BlockedError carries the validator verdict back to the caller.
type BlockedError struct {
	Result ValidationResult
}

func (e *BlockedError) Error() string { return ErrContentBlocked.Error() + ": " + e.Result.Reason }
func (e *BlockedError) Unwrap() error { return ErrContentBlocked }
