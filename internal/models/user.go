package models

import "gorm.io/gorm"

type User struct {
	gorm.Model

	Name           string `gorm:"not null"`
	Email          string `gorm:"uniqueIndex;not null"`
	PasswordHash   string `gorm:"not null"`
	IsStaff        bool   `gorm:"default:false"`
	IsSuperuser    bool   `gorm:"default:false"`
	BusinessAreaID *uint  `gorm:"index"`

	// Relationships
	BusinessArea       *BusinessArea       `gorm:"foreignKey:BusinessAreaID;constraint:OnUpdate:Cascade,OnDelete:SET NULL"`
	ProjectMemberships []ProjectMembership `gorm:"foreignKey:UserID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Comments           []Comment           `gorm:"foreignKey:UserID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}
