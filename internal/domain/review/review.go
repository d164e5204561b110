package review

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const MaxCommentLength = 500

type Review struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`

	// One review per request.
	RequestID uuid.UUID `gorm:"column:request_id;type:uuid;not null;uniqueIndex" json:"request_id"`
	PatientID uuid.UUID `gorm:"column:patient_id;type:uuid;not null;index" json:"patient_id"`
	DoctorID  uuid.UUID `gorm:"column:doctor_id;type:uuid;not null;index" json:"doctor_id"`

	Rating  int    `gorm:"column:rating;not null" json:"rating"`
	Comment string `gorm:"column:comment;type:varchar(2000)" json:"comment"`
}

func (Review) TableName() string {
	return "dispatch.reviews"
}

func ValidRating(r int) bool {
	return r >= 1 && r <= 5
}

func ValidComment(c string) bool {
	return utf8.RuneCountInString(c) <= MaxCommentLength
}

type SubmitReviewCommand struct {
	RequestID uuid.UUID
	PatientID uuid.UUID
	Rating    int
	Comment   string
}
