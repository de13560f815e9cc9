package models

import (
	"time"

	"gorm.io/gorm"
)

type CaretakerRelationship struct {
	gorm.Model

	UserID      uint       `gorm:"not null;uniqueIndex:idx_user_caretaker"`
	CaretakerID uint       `gorm:"not null;uniqueIndex:idx_user_caretaker"`
	EndDate     *time.Time `gorm:"index"`
	Reason      string
	Notes       string

	// Relationships
	User      User `gorm:"foreignKey:UserID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Caretaker User `gorm:"foreignKey:CaretakerID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}

// IsActive reports whether the relationship is still in effect at the given
// instant. A nil EndDate never expires.
func (r *CaretakerRelationship) IsActive(at time.Time) bool {
	return r.EndDate == nil || !r.EndDate.Before(at)
}
