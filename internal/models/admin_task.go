package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AdminTask struct {
	gorm.Model

	Action           string         `gorm:"not null;index"` // "deleteproject", "mergeuser", "setcaretaker"
	Status           string         `gorm:"not null;default:pending;index"`
	RequesterID      uint           `gorm:"not null;index"`
	ProjectID        *uint          `gorm:"index"`
	PrimaryUserID    *uint          `gorm:"index"`
	SecondaryUserIDs datatypes.JSON `gorm:"type:jsonb"` // ordered list of user ids
	Reason           string
	Notes            string
	EndDate          *time.Time

	// Relationships
	Requester   User     `gorm:"foreignKey:RequesterID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Project     *Project `gorm:"foreignKey:ProjectID;constraint:OnUpdate:Cascade,OnDelete:SET NULL"`
	PrimaryUser *User    `gorm:"foreignKey:PrimaryUserID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}

// SecondaryIDs decodes the jsonb id list. A corrupt column yields an empty
// slice rather than an error; tasks are only written through SetSecondaryIDs.
func (t *AdminTask) SecondaryIDs() []uint {
	if len(t.SecondaryUserIDs) == 0 {
		return nil
	}

	var ids []uint
	if err := json.Unmarshal(t.SecondaryUserIDs, &ids); err != nil {
		return nil
	}

	return ids
}

func (t *AdminTask) SetSecondaryIDs(ids []uint) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}

	t.SecondaryUserIDs = datatypes.JSON(raw)
	return nil
}
