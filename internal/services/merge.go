package services

import (
	"errors"

	"github.com/spms-dev/spms/internal/models"
	"github.com/spms-dev/spms/internal/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MergeUsers folds secondaryID's records into primary: project memberships
// (resolving role conflicts), document creator/modifier references and
// comments are re-parented, caretaker relationships involving the secondary
// are removed, and the secondary user is deleted. The caller supplies the
// transaction; the whole call commits or rolls back as one unit.
//
// The removed caretaker relationships are returned so the caller can clear
// the affected cache keys once the transaction commits.
func MergeUsers(tx *gorm.DB, audit *zap.Logger, primary *models.User, secondaryID uint) ([]models.CaretakerRelationship, error) {
	var secondary models.User

	if err := tx.First(&secondary, secondaryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "user", ID: secondaryID}
		}
		return nil, err
	}

	if secondary.ID == primary.ID {
		return nil, validationf("cannot merge user %d into themselves", secondary.ID)
	}

	var memberships []models.ProjectMembership

	if err := tx.Where("user_id = ?", secondary.ID).Find(&memberships).Error; err != nil {
		return nil, err
	}

	for _, membership := range memberships {
		var existing models.ProjectMembership

		err := tx.Where("project_id = ? AND user_id = ?", membership.ProjectID, primary.ID).
			First(&existing).Error

		switch {
		case err == nil:
			// Primary already belongs to this project: keep their row,
			// resolving the role conflict, and drop the secondary's.
			existing.Role = resolveRoleConflict(primary, existing.Role, membership.Role)
			existing.IsLeader = existing.IsLeader || membership.IsLeader

			if err := tx.Save(&existing).Error; err != nil {
				return nil, err
			}

			if err := tx.Unscoped().Delete(&membership).Error; err != nil {
				return nil, err
			}

			audit.Info("merged duplicate project membership",
				zap.Uint("project_id", membership.ProjectID),
				zap.Uint("primary_user_id", primary.ID),
				zap.String("role", existing.Role))

		case errors.Is(err, gorm.ErrRecordNotFound):
			// The pair index spans soft-deleted rows; purge any tombstone
			// the primary left in this project before re-pointing.
			if err := tx.Unscoped().
				Where("project_id = ? AND user_id = ? AND deleted_at IS NOT NULL", membership.ProjectID, primary.ID).
				Delete(&models.ProjectMembership{}).Error; err != nil {
				return nil, err
			}

			// Re-point the row. An ineligible role is carried over
			// unchanged; observed production behavior.
			membership.UserID = primary.ID

			if err := tx.Save(&membership).Error; err != nil {
				return nil, err
			}

		default:
			return nil, err
		}
	}

	if err := tx.Model(&models.ProjectDocument{}).
		Where("creator_id = ?", secondary.ID).
		Update("creator_id", primary.ID).Error; err != nil {
		return nil, err
	}

	if err := tx.Model(&models.ProjectDocument{}).
		Where("modifier_id = ?", secondary.ID).
		Update("modifier_id", primary.ID).Error; err != nil {
		return nil, err
	}

	if err := tx.Model(&models.Comment{}).
		Where("user_id = ?", secondary.ID).
		Update("user_id", primary.ID).Error; err != nil {
		return nil, err
	}

	// Caretaker relationships are owned by both referenced users and go
	// with the deleted one.
	var removed []models.CaretakerRelationship

	if err := tx.Where("user_id = ? OR caretaker_id = ?", secondary.ID, secondary.ID).
		Find(&removed).Error; err != nil {
		return nil, err
	}

	if len(removed) > 0 {
		if err := tx.Unscoped().Delete(&removed).Error; err != nil {
			return nil, err
		}
	}

	if err := tx.Delete(&secondary).Error; err != nil {
		return nil, err
	}

	audit.Info("merged user",
		zap.Uint("primary_user_id", primary.ID),
		zap.Uint("secondary_user_id", secondary.ID),
		zap.Int("memberships", len(memberships)),
		zap.Int("caretaker_relationships_removed", len(removed)))

	return removed, nil
}

// resolveRoleConflict picks the role kept when both users belong to the same
// project. Supervising always wins; otherwise the secondary's role is taken
// only when it is eligible for the primary's staff status.
func resolveRoleConflict(primary *models.User, primaryRole, secondaryRole string) string {
	if primaryRole == types.RoleSupervising || secondaryRole == types.RoleSupervising {
		return types.RoleSupervising
	}

	if roleEligible(primary, secondaryRole) {
		return secondaryRole
	}

	return primaryRole
}

func roleEligible(user *models.User, role string) bool {
	eligible := types.NonStaffRoles
	if user.IsStaff {
		eligible = types.StaffRoles
	}

	for _, candidate := range eligible {
		if candidate == role {
			return true
		}
	}

	return false
}
