package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/spms-dev/spms/internal/models"
	"github.com/spms-dev/spms/internal/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DocumentTask is one pending-approval document in a caretaker's task list.
type DocumentTask struct {
	ID           uint   `json:"id"`
	Kind         string `json:"kind"`
	Status       string `json:"status"`
	ProjectID    uint   `json:"project_id"`
	ProjectTitle string `json:"project_title"`
}

// Key identifies a document across per-role lists.
func (t DocumentTask) Key() string {
	return fmt.Sprintf("%d/%s", t.ID, t.Kind)
}

// DocumentTaskLists groups a caretaker's delegated approval work by the role
// of the user being cared for.
type DocumentTaskLists struct {
	All          []DocumentTask `json:"all"`
	Directorate  []DocumentTask `json:"directorate"`
	BusinessArea []DocumentTask `json:"ba"`
	ProjectLead  []DocumentTask `json:"lead"`
	TeamMember   []DocumentTask `json:"team"`
}

// Aggregator assembles per-role pending-document lists from a role analysis.
type Aggregator struct {
	db    *gorm.DB
	audit *zap.Logger
}

func NewAggregator(database *gorm.DB, audit *zap.Logger) *Aggregator {
	return &Aggregator{db: database, audit: audit}
}

// TasksFor builds the delegated task lists for the requesting user. The
// directorate list is suppressed when the requester is directorate or
// superuser themselves, since they already see those documents first-hand.
func (a *Aggregator) TasksFor(ctx context.Context, requesterID uint, analysis *RoleAnalysis) (*DocumentTaskLists, error) {
	lists := &DocumentTaskLists{
		All:          []DocumentTask{},
		Directorate:  []DocumentTask{},
		BusinessArea: []DocumentTask{},
		ProjectLead:  []DocumentTask{},
		TeamMember:   []DocumentTask{},
	}

	suppressDirectorate, err := a.requesterIsDirectorate(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	if analysis.DirectorateFound && !suppressDirectorate {
		lists.Directorate, err = a.pendingDocuments(ctx, func(query *gorm.DB) *gorm.DB {
			return query.
				Where("project_documents.business_area_lead_approval_granted = ?", true).
				Where("project_documents.directorate_approval_granted = ?", false)
		})
		if err != nil {
			return nil, err
		}
	}

	if len(analysis.BALeaderIDs) > 0 {
		var areaIDs []uint

		if err := a.db.WithContext(ctx).Model(&models.BusinessArea{}).
			Where("leader_id IN ?", setToSlice(analysis.BALeaderIDs)).
			Pluck("id", &areaIDs).Error; err != nil {
			return nil, err
		}

		if len(areaIDs) > 0 {
			lists.BusinessArea, err = a.pendingDocuments(ctx, func(query *gorm.DB) *gorm.DB {
				return query.
					Where("project_documents.project_lead_approval_granted = ?", true).
					Where("project_documents.business_area_lead_approval_granted = ?", false).
					Where("projects.business_area_id IN ?", areaIDs)
			})
			if err != nil {
				return nil, err
			}
		}
	}

	if len(analysis.ProjectLeadIDs) > 0 {
		projectIDs, err := a.membershipProjectIDs(ctx, setToSlice(analysis.ProjectLeadIDs), true)
		if err != nil {
			return nil, err
		}

		if len(projectIDs) > 0 {
			lists.ProjectLead, err = a.pendingDocuments(ctx, leadGate(projectIDs))
			if err != nil {
				return nil, err
			}
		}
	}

	if len(analysis.TeamMemberIDs) > 0 {
		projectIDs, err := a.membershipProjectIDs(ctx, setToSlice(analysis.TeamMemberIDs), false)
		if err != nil {
			return nil, err
		}

		if len(projectIDs) > 0 {
			// Same approval gate as the project-lead list. The duplication
			// is observed production behavior, kept pending product
			// clarification.
			lists.TeamMember, err = a.pendingDocuments(ctx, leadGate(projectIDs))
			if err != nil {
				return nil, err
			}
		}
	}

	lists.All = a.merge(lists.Directorate, lists.BusinessArea, lists.ProjectLead, lists.TeamMember)

	return lists, nil
}

// leadGate restricts to documents still awaiting project-lead approval in
// the given projects.
func leadGate(projectIDs []uint) func(*gorm.DB) *gorm.DB {
	return func(query *gorm.DB) *gorm.DB {
		return query.
			Where("project_documents.project_lead_approval_granted = ?", false).
			Where("project_documents.project_id IN ?", projectIDs)
	}
}

func (a *Aggregator) pendingDocuments(ctx context.Context, gate func(*gorm.DB) *gorm.DB) ([]DocumentTask, error) {
	var tasks []DocumentTask

	query := a.db.WithContext(ctx).Model(&models.ProjectDocument{}).
		Select("project_documents.id AS id, project_documents.kind AS kind, project_documents.status AS status, project_documents.project_id AS project_id, projects.title AS project_title").
		Joins("JOIN projects ON projects.id = project_documents.project_id").
		Where("project_documents.status <> ?", types.DocumentApproved).
		Where("projects.status NOT IN ?", types.ClosedProjectStatuses).
		Where("projects.deleted_at IS NULL").
		Order("project_documents.id")

	if err := gate(query).Scan(&tasks).Error; err != nil {
		return nil, err
	}

	if tasks == nil {
		tasks = []DocumentTask{}
	}

	return tasks, nil
}

func (a *Aggregator) membershipProjectIDs(ctx context.Context, userIDs []uint, isLeader bool) ([]uint, error) {
	var projectIDs []uint

	err := a.db.WithContext(ctx).Model(&models.ProjectMembership{}).
		Where("user_id IN ?", userIDs).
		Where("is_leader = ?", isLeader).
		Distinct().
		Pluck("project_id", &projectIDs).Error

	if err != nil {
		return nil, err
	}

	return projectIDs, nil
}

// merge flattens the per-role lists into one, dropping later occurrences of
// the same (id, kind) pair; input order is preserved. Entries missing an id
// or kind are skipped with a warning.
func (a *Aggregator) merge(lists ...[]DocumentTask) []DocumentTask {
	merged := []DocumentTask{}
	seen := make(map[string]bool)

	for _, list := range lists {
		for _, task := range list {
			if task.ID == 0 || task.Kind == "" {
				a.audit.Warn("skipping malformed document task",
					zap.Uint("id", task.ID),
					zap.String("kind", task.Kind))
				continue
			}

			if seen[task.Key()] {
				continue
			}

			seen[task.Key()] = true
			merged = append(merged, task)
		}
	}

	return merged
}

func (a *Aggregator) requesterIsDirectorate(ctx context.Context, requesterID uint) (bool, error) {
	var requester models.User

	err := a.db.WithContext(ctx).Preload("BusinessArea").First(&requester, requesterID).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, &NotFoundError{Resource: "user", ID: requesterID}
	}

	if err != nil {
		return false, err
	}

	if requester.IsSuperuser {
		return true, nil
	}

	return requester.BusinessArea != nil && requester.BusinessArea.Name == types.DirectorateAreaName, nil
}

func setToSlice(set map[uint]bool) []uint {
	ids := make([]uint, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}

	return ids
}
