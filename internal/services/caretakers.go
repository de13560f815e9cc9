package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/spms-dev/spms/internal/cache"
	"github.com/spms-dev/spms/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const relationshipCacheTTL = 5 * time.Minute

// CaretakerService owns CaretakerRelationship rows: policy-checked writes
// with synchronous cache invalidation, and cached lookups in both
// directions (who cares for a user, whom a user cares for).
type CaretakerService struct {
	db    *gorm.DB
	kv    cache.KV
	audit *zap.Logger
}

func NewCaretakerService(database *gorm.DB, kv cache.KV, audit *zap.Logger) *CaretakerService {
	return &CaretakerService{db: database, kv: kv, audit: audit}
}

type CreateRelationshipInput struct {
	UserID      uint
	CaretakerID uint
	Reason      string
	Notes       string
	EndDate     *time.Time
}

type UpdateRelationshipInput struct {
	Reason  *string
	Notes   *string
	EndDate *time.Time
	// ClearEndDate removes an existing end date; EndDate is ignored when set.
	ClearEndDate bool
}

func (s *CaretakerService) Create(ctx context.Context, input CreateRelationshipInput) (*models.CaretakerRelationship, error) {
	relationship, err := s.create(s.db, input)
	if err != nil {
		return nil, err
	}

	if err := s.invalidate(ctx, relationship.UserID, relationship.CaretakerID); err != nil {
		return nil, err
	}

	s.audit.Info("caretaker relationship created",
		zap.Uint("relationship_id", relationship.ID),
		zap.Uint("user_id", relationship.UserID),
		zap.Uint("caretaker_id", relationship.CaretakerID))

	return relationship, nil
}

// CreateInTx runs the same policy checks and insert inside the caller's
// transaction. The caller is responsible for calling InvalidateFor once the
// transaction commits.
func (s *CaretakerService) CreateInTx(tx *gorm.DB, input CreateRelationshipInput) (*models.CaretakerRelationship, error) {
	return s.create(tx, input)
}

func (s *CaretakerService) create(database *gorm.DB, input CreateRelationshipInput) (*models.CaretakerRelationship, error) {
	if input.UserID == input.CaretakerID {
		return nil, validationf("a user cannot be their own caretaker")
	}

	var user, caretaker models.User

	if err := database.First(&user, input.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "user", ID: input.UserID}
		}
		return nil, err
	}

	if err := database.First(&caretaker, input.CaretakerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "user", ID: input.CaretakerID}
		}
		return nil, err
	}

	var count int64

	if err := database.Model(&models.CaretakerRelationship{}).
		Where("user_id = ? AND caretaker_id = ?", input.UserID, input.CaretakerID).
		Count(&count).Error; err != nil {
		return nil, err
	}

	if count > 0 {
		return nil, validationf("user %d already has %d as a caretaker", input.UserID, input.CaretakerID)
	}

	// The proposed caretaker must not themselves be cared for; assigning
	// both directions would make delegation ambiguous.
	if err := database.Model(&models.CaretakerRelationship{}).
		Where("user_id = ?", input.CaretakerID).
		Where("end_date IS NULL OR end_date >= ?", time.Now()).
		Count(&count).Error; err != nil {
		return nil, err
	}

	if count > 0 {
		return nil, validationf("user %d has a caretaker of their own and cannot become one", input.CaretakerID)
	}

	relationship := models.CaretakerRelationship{
		UserID:      input.UserID,
		CaretakerID: input.CaretakerID,
		Reason:      input.Reason,
		Notes:       input.Notes,
		EndDate:     input.EndDate,
	}

	if err := database.Create(&relationship).Error; err != nil {
		return nil, err
	}

	return &relationship, nil
}

// InvalidateFor clears the lookup cache keys for both sides of a
// relationship written outside this service's own methods.
func (s *CaretakerService) InvalidateFor(ctx context.Context, userID, caretakerID uint) error {
	return s.invalidate(ctx, userID, caretakerID)
}

func (s *CaretakerService) Update(ctx context.Context, id uint, input UpdateRelationshipInput) (*models.CaretakerRelationship, error) {
	var relationship models.CaretakerRelationship

	if err := s.db.First(&relationship, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "caretaker relationship", ID: id}
		}
		return nil, err
	}

	updates := make(map[string]interface{})

	if input.Reason != nil {
		updates["reason"] = *input.Reason
	}

	if input.Notes != nil {
		updates["notes"] = *input.Notes
	}

	if input.ClearEndDate {
		updates["end_date"] = nil
	} else if input.EndDate != nil {
		updates["end_date"] = *input.EndDate
	}

	if len(updates) == 0 {
		return nil, validationf("no fields to update")
	}

	if err := s.db.Model(&relationship).Updates(updates).Error; err != nil {
		return nil, err
	}

	if err := s.invalidate(ctx, relationship.UserID, relationship.CaretakerID); err != nil {
		return nil, err
	}

	s.audit.Info("caretaker relationship updated",
		zap.Uint("relationship_id", relationship.ID))

	return &relationship, nil
}

func (s *CaretakerService) Delete(ctx context.Context, id uint) error {
	var relationship models.CaretakerRelationship

	if err := s.db.First(&relationship, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Resource: "caretaker relationship", ID: id}
		}
		return err
	}

	// The pair index spans soft-deleted rows, so a tombstone would block the
	// pair from ever being recreated. Removal is a hard delete.
	if err := s.db.Unscoped().Delete(&relationship).Error; err != nil {
		return err
	}

	if err := s.invalidate(ctx, relationship.UserID, relationship.CaretakerID); err != nil {
		return err
	}

	s.audit.Info("caretaker relationship deleted",
		zap.Uint("relationship_id", relationship.ID),
		zap.Uint("user_id", relationship.UserID),
		zap.Uint("caretaker_id", relationship.CaretakerID))

	return nil
}

// ActiveFor returns the relationships where user is cared for and the end
// date, if any, has not passed. Expiry is applied at read time.
func (s *CaretakerService) ActiveFor(ctx context.Context, userID uint) ([]models.CaretakerRelationship, error) {
	all, err := s.AllFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	active := make([]models.CaretakerRelationship, 0, len(all))

	for _, relationship := range all {
		if relationship.IsActive(now) {
			active = append(active, relationship)
		}
	}

	return active, nil
}

// AllFor returns every relationship where user is cared for, including
// expired ones, through the caretakers_{id} cache key.
func (s *CaretakerService) AllFor(ctx context.Context, userID uint) ([]models.CaretakerRelationship, error) {
	return s.cachedLookup(ctx, cache.CaretakersKey(userID), "user_id = ?", userID)
}

// CaringFor returns every relationship where user is the caretaker, through
// the caretaking_{id} cache key.
func (s *CaretakerService) CaringFor(ctx context.Context, userID uint) ([]models.CaretakerRelationship, error) {
	return s.cachedLookup(ctx, cache.CaretakingKey(userID), "caretaker_id = ?", userID)
}

func (s *CaretakerService) cachedLookup(ctx context.Context, key string, query string, userID uint) ([]models.CaretakerRelationship, error) {
	if raw, err := s.kv.Get(ctx, key); err == nil {
		var cached []models.CaretakerRelationship
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		// Undecodable entries fall through to the database.
	} else if !errors.Is(err, cache.ErrMiss) {
		s.audit.Warn("caretaker cache read failed", zap.String("key", key), zap.Error(err))
	}

	var relationships []models.CaretakerRelationship

	if err := s.db.Where(query, userID).Find(&relationships).Error; err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(relationships); err == nil {
		if err := s.kv.Set(ctx, key, raw, relationshipCacheTTL); err != nil {
			s.audit.Warn("caretaker cache write failed", zap.String("key", key), zap.Error(err))
		}
	}

	return relationships, nil
}

// invalidate clears both lookup keys for both users involved in a write.
func (s *CaretakerService) invalidate(ctx context.Context, userID, caretakerID uint) error {
	return s.kv.Delete(ctx,
		cache.CaretakersKey(userID),
		cache.CaretakingKey(userID),
		cache.CaretakersKey(caretakerID),
		cache.CaretakingKey(caretakerID),
	)
}
