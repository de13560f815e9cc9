package models

import "gorm.io/gorm"

type Comment struct {
	gorm.Model

	DocumentID uint   `gorm:"not null;index"`
	UserID     uint   `gorm:"not null;index"`
	Text       string `gorm:"not null"`

	// Relationships
	Document ProjectDocument `gorm:"foreignKey:DocumentID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	User     User            `gorm:"foreignKey:UserID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}
