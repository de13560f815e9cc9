package models

import "gorm.io/gorm"

type ProjectDocument struct {
	gorm.Model

	ProjectID  uint   `gorm:"not null;index"`
	Kind       string `gorm:"not null;index"` // "concept", "projectplan", "progressreport", "studentreport", "closure"
	Status     string `gorm:"not null;default:new;index"`
	CreatorID  uint   `gorm:"not null;index"`
	ModifierID uint   `gorm:"not null;index"`

	ProjectLeadApprovalGranted      bool `gorm:"default:false"`
	BusinessAreaLeadApprovalGranted bool `gorm:"default:false"`
	DirectorateApprovalGranted      bool `gorm:"default:false"`

	// Relationships
	Project  Project   `gorm:"foreignKey:ProjectID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Creator  User      `gorm:"foreignKey:CreatorID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Modifier User      `gorm:"foreignKey:ModifierID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Comments []Comment `gorm:"foreignKey:DocumentID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}
