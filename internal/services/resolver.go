package services

import (
	"context"
	"fmt"

	"github.com/spms-dev/spms/internal/models"
	"github.com/spms-dev/spms/internal/types"
	"gorm.io/gorm"
)

// maxChainDepth bounds the caretaker chain traversal. Chains anywhere near
// this deep indicate corrupted data, so the walk fails rather than truncates.
const maxChainDepth = 1000

// Resolver computes the transitive caretaker closure and classifies the
// cared-for users into organizational roles.
type Resolver struct {
	db         *gorm.DB
	caretakers *CaretakerService
}

func NewResolver(database *gorm.DB, caretakers *CaretakerService) *Resolver {
	return &Resolver{db: database, caretakers: caretakers}
}

// AllCaretakerAssignments walks caretaker_of edges starting from
// caretakerID and returns every relationship reachable through the chain.
// A shared visited set guarantees termination on cycles; each user's edges
// are fetched and emitted at most once per walk.
func (r *Resolver) AllCaretakerAssignments(ctx context.Context, caretakerID uint) ([]models.CaretakerRelationship, error) {
	type frame struct {
		userID uint
		depth  int
	}

	var assignments []models.CaretakerRelationship

	visited := make(map[uint]bool)
	stack := []frame{{userID: caretakerID, depth: 0}}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[current.userID] {
			continue
		}
		visited[current.userID] = true

		if current.depth >= maxChainDepth {
			return nil, fmt.Errorf("caretaker chain from user %d exceeds depth %d", caretakerID, maxChainDepth)
		}

		relationships, err := r.caretakers.CaringFor(ctx, current.userID)
		if err != nil {
			return nil, err
		}

		assignments = append(assignments, relationships...)

		// Push in reverse so cared-for users are visited in fetch order.
		for i := len(relationships) - 1; i >= 0; i-- {
			caredFor := relationships[i].UserID
			if !visited[caredFor] {
				stack = append(stack, frame{userID: caredFor, depth: current.depth + 1})
			}
		}
	}

	return assignments, nil
}

// RoleAnalysis classifies the cared-for users behind a set of assignments.
type RoleAnalysis struct {
	DirectorateFound bool
	BALeaderIDs      map[uint]bool
	ProjectLeadIDs   map[uint]bool
	TeamMemberIDs    map[uint]bool
}

// AnalyzeCaretakeeRoles batch-queries project memberships for every cared-for
// user in the assignment list, excluding closed projects, and checks each
// user for directorate membership and business-area leadership.
func (r *Resolver) AnalyzeCaretakeeRoles(ctx context.Context, assignments []models.CaretakerRelationship) (*RoleAnalysis, error) {
	analysis := &RoleAnalysis{
		BALeaderIDs:    make(map[uint]bool),
		ProjectLeadIDs: make(map[uint]bool),
		TeamMemberIDs:  make(map[uint]bool),
	}

	if len(assignments) == 0 {
		return analysis, nil
	}

	idSet := make(map[uint]bool, len(assignments))
	ids := make([]uint, 0, len(assignments))

	for _, assignment := range assignments {
		if !idSet[assignment.UserID] {
			idSet[assignment.UserID] = true
			ids = append(ids, assignment.UserID)
		}
	}

	leadIDs, err := r.membershipUserIDs(ctx, ids, true)
	if err != nil {
		return nil, err
	}

	for _, id := range leadIDs {
		analysis.ProjectLeadIDs[id] = true
	}

	memberIDs, err := r.membershipUserIDs(ctx, ids, false)
	if err != nil {
		return nil, err
	}

	for _, id := range memberIDs {
		analysis.TeamMemberIDs[id] = true
	}

	var users []models.User

	if err := r.db.WithContext(ctx).Preload("BusinessArea").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}

	userByID := make(map[uint]models.User, len(users))
	for _, user := range users {
		userByID[user.ID] = user
	}

	var ledAreaLeaderIDs []uint

	if err := r.db.WithContext(ctx).Model(&models.BusinessArea{}).
		Where("leader_id IN ?", ids).
		Pluck("leader_id", &ledAreaLeaderIDs).Error; err != nil {
		return nil, err
	}

	ledAreas := make(map[uint]bool, len(ledAreaLeaderIDs))
	for _, id := range ledAreaLeaderIDs {
		ledAreas[id] = true
	}

	for _, assignment := range assignments {
		user, ok := userByID[assignment.UserID]
		if !ok {
			continue
		}

		if user.IsSuperuser || (user.BusinessArea != nil && user.BusinessArea.Name == types.DirectorateAreaName) {
			analysis.DirectorateFound = true
		}

		if ledAreas[user.ID] {
			analysis.BALeaderIDs[user.ID] = true
		}
	}

	return analysis, nil
}

func (r *Resolver) membershipUserIDs(ctx context.Context, ids []uint, isLeader bool) ([]uint, error) {
	var userIDs []uint

	err := r.db.WithContext(ctx).Model(&models.ProjectMembership{}).
		Joins("JOIN projects ON projects.id = project_memberships.project_id").
		Where("project_memberships.user_id IN ?", ids).
		Where("project_memberships.is_leader = ?", isLeader).
		Where("projects.status NOT IN ?", types.ClosedProjectStatuses).
		Where("projects.deleted_at IS NULL").
		Pluck("project_memberships.user_id", &userIDs).Error

	if err != nil {
		return nil, err
	}

	return userIDs, nil
}
