package models

import "gorm.io/gorm"

type BusinessArea struct {
	gorm.Model

	Name     string `gorm:"uniqueIndex;not null"`
	LeaderID *uint  `gorm:"index"`

	// Relationships
	Leader   *User     `gorm:"foreignKey:LeaderID;constraint:OnUpdate:Cascade,OnDelete:SET NULL"`
	Projects []Project `gorm:"foreignKey:BusinessAreaID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}
