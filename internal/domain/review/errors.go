package review

import "errors"

var (
	ErrReviewNotFound  = errors.New("review not found")
	ErrDuplicateReview = errors.New("a review was already submitted for this request")
	ErrInvalidState    = errors.New("reviews can only be submitted for completed requests")
	ErrInvalidRating   = errors.New("rating must be an integer between 1 and 5")
	ErrCommentTooLong  = errors.New("comment must be at most 500 characters")
)
