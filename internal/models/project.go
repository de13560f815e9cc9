package models

import "gorm.io/gorm"

type Project struct {
	gorm.Model

	Title             string `gorm:"not null"`
	Description       string
	Status            string `gorm:"not null;default:active;index"`
	DeletionRequested bool   `gorm:"default:false"`
	BusinessAreaID    uint   `gorm:"not null;index"`

	// Relationships
	BusinessArea       BusinessArea        `gorm:"foreignKey:BusinessAreaID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	ProjectMemberships []ProjectMembership `gorm:"foreignKey:ProjectID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Documents          []ProjectDocument   `gorm:"foreignKey:ProjectID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}
