package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spms-dev/spms/internal/models"
	"github.com/spms-dev/spms/internal/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Actor is the authenticated user driving a workflow operation.
type Actor struct {
	ID          uint
	IsStaff     bool
	IsSuperuser bool
}

func (a Actor) isAdmin() bool {
	return a.IsSuperuser
}

// Workflow is the admin-task state machine: it validates submissions,
// transitions PENDING tasks to their terminal states, and performs the
// approved side effect (project deletion, user merge, caretaker creation)
// inside the same transaction as the status change.
type Workflow struct {
	db         *gorm.DB
	caretakers *CaretakerService
	audit      *zap.Logger
}

func NewWorkflow(database *gorm.DB, caretakers *CaretakerService, audit *zap.Logger) *Workflow {
	return &Workflow{db: database, caretakers: caretakers, audit: audit}
}

type DeleteProjectInput struct {
	ProjectID uint
	Reason    string
}

type MergeUsersInput struct {
	PrimaryUserID    uint
	SecondaryUserIDs []uint
	Reason           string
}

type SetCaretakerInput struct {
	UserID      uint
	CaretakerID uint
	Reason      string
	Notes       string
	EndDate     *time.Time
}

// SubmitDeleteProject records a deletion request and flags the project as
// deletion-requested immediately, so it is visibly marked while the request
// is outstanding.
func (w *Workflow) SubmitDeleteProject(ctx context.Context, actor Actor, input DeleteProjectInput) (*models.AdminTask, error) {
	if input.ProjectID == 0 {
		return nil, validationf("project is required")
	}

	if input.Reason == "" {
		return nil, validationf("a reason is required to request project deletion")
	}

	var project models.Project

	if err := w.db.First(&project, input.ProjectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "project", ID: input.ProjectID}
		}
		return nil, err
	}

	var count int64

	if err := w.db.Model(&models.AdminTask{}).
		Where("action = ? AND status = ? AND project_id = ?",
			types.ActionDeleteProject, types.TaskPending, input.ProjectID).
		Count(&count).Error; err != nil {
		return nil, err
	}

	if count > 0 {
		return nil, validationf("a pending deletion request already exists for project %d", input.ProjectID)
	}

	projectID := input.ProjectID
	task := models.AdminTask{
		Action:      types.ActionDeleteProject,
		Status:      types.TaskPending,
		RequesterID: actor.ID,
		ProjectID:   &projectID,
		Reason:      input.Reason,
	}

	err := w.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&task).Error; err != nil {
			return err
		}

		return tx.Model(&project).Update("deletion_requested", true).Error
	})

	if err != nil {
		return nil, err
	}

	w.audit.Info("task submitted",
		zap.Uint("task_id", task.ID),
		zap.String("action", task.Action),
		zap.Uint("requester_id", actor.ID),
		zap.Uint("project_id", input.ProjectID))

	return &task, nil
}

// SubmitMergeUsers records a request to fold the secondary users into the
// primary one.
func (w *Workflow) SubmitMergeUsers(ctx context.Context, actor Actor, input MergeUsersInput) (*models.AdminTask, error) {
	if input.PrimaryUserID == 0 {
		return nil, validationf("a primary user is required")
	}

	if len(input.SecondaryUserIDs) == 0 {
		return nil, validationf("at least one secondary user is required")
	}

	if err := w.requireUsers(input.PrimaryUserID, input.SecondaryUserIDs); err != nil {
		return nil, err
	}

	for _, id := range input.SecondaryUserIDs {
		if id == input.PrimaryUserID {
			return nil, validationf("user %d cannot be merged into themselves", id)
		}
	}

	primaryID := input.PrimaryUserID
	task := models.AdminTask{
		Action:        types.ActionMergeUser,
		Status:        types.TaskPending,
		RequesterID:   actor.ID,
		PrimaryUserID: &primaryID,
		Reason:        input.Reason,
	}

	if err := task.SetSecondaryIDs(input.SecondaryUserIDs); err != nil {
		return nil, err
	}

	if err := w.db.Create(&task).Error; err != nil {
		return nil, err
	}

	w.audit.Info("task submitted",
		zap.Uint("task_id", task.ID),
		zap.String("action", task.Action),
		zap.Uint("requester_id", actor.ID),
		zap.Uint("primary_user_id", primaryID),
		zap.Uints("secondary_user_ids", input.SecondaryUserIDs))

	return &task, nil
}

// SubmitSetCaretaker records a request for CaretakerID to become UserID's
// caretaker. The proposed caretaker approves or declines it via Respond.
func (w *Workflow) SubmitSetCaretaker(ctx context.Context, actor Actor, input SetCaretakerInput) (*models.AdminTask, error) {
	if input.UserID == 0 {
		return nil, validationf("a user is required")
	}

	if input.CaretakerID == 0 {
		return nil, validationf("a proposed caretaker is required")
	}

	if input.UserID == input.CaretakerID {
		return nil, validationf("a user cannot be their own caretaker")
	}

	if input.EndDate != nil && dateOf(*input.EndDate).Before(dateOf(time.Now())) {
		return nil, validationf("end date %s is in the past", dateOf(*input.EndDate).Format("2006-01-02"))
	}

	if err := w.requireUsers(input.UserID, []uint{input.CaretakerID}); err != nil {
		return nil, err
	}

	pending, err := w.pendingSetCaretakerTasks(ctx)
	if err != nil {
		return nil, err
	}

	for _, existing := range pending {
		if existing.PrimaryUserID != nil && *existing.PrimaryUserID == input.UserID {
			return nil, validationf("user %d already has a pending caretaker request", input.UserID)
		}
	}

	var count int64

	if err := w.db.Model(&models.CaretakerRelationship{}).
		Where("user_id = ? AND caretaker_id = ?", input.UserID, input.CaretakerID).
		Count(&count).Error; err != nil {
		return nil, err
	}

	if count > 0 {
		return nil, validationf("user %d already has %d as a caretaker", input.UserID, input.CaretakerID)
	}

	primaryID := input.UserID
	task := models.AdminTask{
		Action:        types.ActionSetCaretaker,
		Status:        types.TaskPending,
		RequesterID:   actor.ID,
		PrimaryUserID: &primaryID,
		Reason:        input.Reason,
		Notes:         input.Notes,
		EndDate:       input.EndDate,
	}

	if err := task.SetSecondaryIDs([]uint{input.CaretakerID}); err != nil {
		return nil, err
	}

	if err := w.db.Create(&task).Error; err != nil {
		return nil, err
	}

	w.audit.Info("task submitted",
		zap.Uint("task_id", task.ID),
		zap.String("action", task.Action),
		zap.Uint("requester_id", actor.ID),
		zap.Uint("user_id", input.UserID),
		zap.Uint("caretaker_id", input.CaretakerID))

	return &task, nil
}

// Approve executes a pending task. Requires admin; the proposed caretaker of
// a setcaretaker task goes through Respond instead. The status flip, the
// side effect, and the FULFILLED write share one transaction: either all of
// it commits or the task stays PENDING.
func (w *Workflow) Approve(ctx context.Context, actor Actor, taskID uint) (*models.AdminTask, error) {
	if !actor.isAdmin() {
		return nil, permissionf("only administrators may approve tasks")
	}

	return w.approve(ctx, actor, taskID)
}

// Reject declines a pending task and reverses any submission-time side
// effect. Requires admin.
func (w *Workflow) Reject(ctx context.Context, actor Actor, taskID uint) (*models.AdminTask, error) {
	if !actor.isAdmin() {
		return nil, permissionf("only administrators may reject tasks")
	}

	return w.close(ctx, actor, taskID, types.TaskRejected, nil)
}

// Cancel withdraws a pending task. Allowed for the requester or an admin;
// the reversal is identical to Reject, only the resulting status differs.
func (w *Workflow) Cancel(ctx context.Context, actor Actor, taskID uint) (*models.AdminTask, error) {
	requesterCheck := func(task *models.AdminTask) error {
		if !actor.isAdmin() && task.RequesterID != actor.ID {
			return permissionf("only the requester or an administrator may cancel a task")
		}
		return nil
	}

	return w.close(ctx, actor, taskID, types.TaskCancelled, requesterCheck)
}

// Respond lets the proposed caretaker of a setcaretaker task approve or
// decline it themselves.
func (w *Workflow) Respond(ctx context.Context, actor Actor, taskID uint, accept bool) (*models.AdminTask, error) {
	var task models.AdminTask

	if err := w.db.First(&task, taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "task", ID: taskID}
		}
		return nil, err
	}

	if task.Action != types.ActionSetCaretaker {
		return nil, validationf("only caretaker requests can be responded to")
	}

	if task.Status != types.TaskPending {
		return nil, validationf("task %d has already been processed", taskID)
	}

	secondary := task.SecondaryIDs()

	if !actor.isAdmin() && (len(secondary) == 0 || secondary[0] != actor.ID) {
		return nil, permissionf("only the proposed caretaker may respond to this request")
	}

	if accept {
		return w.approve(ctx, actor, taskID)
	}

	return w.close(ctx, actor, taskID, types.TaskRejected, nil)
}

// approve performs the guarded PENDING→APPROVED flip, the side effect, and
// the final FULFILLED write in one transaction.
func (w *Workflow) approve(ctx context.Context, actor Actor, taskID uint) (*models.AdminTask, error) {
	var task models.AdminTask
	var removedRelationships []models.CaretakerRelationship
	var createdRelationship *models.CaretakerRelationship

	err := w.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&task, taskID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "task", ID: taskID}
			}
			return err
		}

		// Status-guarded flip: a concurrent approval finds zero rows here
		// and fails, so the side effect runs at most once.
		flip := tx.Model(&models.AdminTask{}).
			Where("id = ? AND status = ?", taskID, types.TaskPending).
			Update("status", types.TaskApproved)

		if flip.Error != nil {
			return flip.Error
		}

		if flip.RowsAffected == 0 {
			return validationf("task %d has already been processed", taskID)
		}

		updates := map[string]interface{}{"status": types.TaskFulfilled}

		switch task.Action {
		case types.ActionDeleteProject:
			notes, err := w.deleteProject(tx, &task)
			if err != nil {
				return err
			}
			updates["project_id"] = nil
			updates["notes"] = notes

		case types.ActionMergeUser:
			removed, err := w.mergeUsers(tx, &task)
			if err != nil {
				return err
			}
			removedRelationships = removed

		case types.ActionSetCaretaker:
			created, err := w.assignCaretaker(tx, &task)
			if err != nil {
				return err
			}
			createdRelationship = created

		default:
			return validationf("unknown task action %q", task.Action)
		}

		return tx.Model(&task).Updates(updates).Error
	})

	if err != nil {
		return nil, err
	}

	if err := w.db.First(&task, taskID).Error; err != nil {
		return nil, err
	}

	// The transaction has committed; clear stale caretaker lookups.
	if createdRelationship != nil {
		if err := w.caretakers.InvalidateFor(ctx, createdRelationship.UserID, createdRelationship.CaretakerID); err != nil {
			w.audit.Warn("cache invalidation failed after approval", zap.Error(err))
		}
	}

	for _, relationship := range removedRelationships {
		if err := w.caretakers.InvalidateFor(ctx, relationship.UserID, relationship.CaretakerID); err != nil {
			w.audit.Warn("cache invalidation failed after approval", zap.Error(err))
		}
	}

	w.audit.Info("task approved",
		zap.Uint("task_id", task.ID),
		zap.String("action", task.Action),
		zap.Uint("actor_id", actor.ID))

	return &task, nil
}

// deleteProject removes the task's project and returns the human-readable
// note recorded on the task.
func (w *Workflow) deleteProject(tx *gorm.DB, task *models.AdminTask) (string, error) {
	if task.ProjectID == nil {
		return "", validationf("task %d no longer references a project", task.ID)
	}

	project, err := DeleteProjectCascade(tx, *task.ProjectID)
	if err != nil {
		return "", err
	}

	w.audit.Info("project deleted",
		zap.Uint("project_id", project.ID),
		zap.String("title", project.Title),
		zap.Uint("task_id", task.ID))

	return fmt.Sprintf("Deleted project %q (id %d)", project.Title, project.ID), nil
}

// DeleteProjectCascade removes a project together with its documents, their
// comments, and its memberships, inside the caller's transaction. Returns
// the deleted project as it was.
func DeleteProjectCascade(tx *gorm.DB, projectID uint) (*models.Project, error) {
	var project models.Project

	if err := tx.First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "project", ID: projectID}
		}
		return nil, err
	}

	var documentIDs []uint

	if err := tx.Model(&models.ProjectDocument{}).
		Where("project_id = ?", project.ID).
		Pluck("id", &documentIDs).Error; err != nil {
		return nil, err
	}

	if len(documentIDs) > 0 {
		if err := tx.Where("document_id IN ?", documentIDs).Delete(&models.Comment{}).Error; err != nil {
			return nil, err
		}

		if err := tx.Where("id IN ?", documentIDs).Delete(&models.ProjectDocument{}).Error; err != nil {
			return nil, err
		}
	}

	if err := tx.Where("project_id = ?", project.ID).Delete(&models.ProjectMembership{}).Error; err != nil {
		return nil, err
	}

	if err := tx.Delete(&project).Error; err != nil {
		return nil, err
	}

	return &project, nil
}

func (w *Workflow) mergeUsers(tx *gorm.DB, task *models.AdminTask) ([]models.CaretakerRelationship, error) {
	if task.PrimaryUserID == nil {
		return nil, validationf("task %d no longer references a primary user", task.ID)
	}

	var primary models.User

	if err := tx.First(&primary, *task.PrimaryUserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "user", ID: *task.PrimaryUserID}
		}
		return nil, err
	}

	var removed []models.CaretakerRelationship

	for _, secondaryID := range task.SecondaryIDs() {
		relationships, err := MergeUsers(tx, w.audit, &primary, secondaryID)
		if err != nil {
			return nil, err
		}

		removed = append(removed, relationships...)
	}

	return removed, nil
}

func (w *Workflow) assignCaretaker(tx *gorm.DB, task *models.AdminTask) (*models.CaretakerRelationship, error) {
	if task.PrimaryUserID == nil {
		return nil, validationf("task %d no longer references a user", task.ID)
	}

	secondary := task.SecondaryIDs()

	if len(secondary) == 0 {
		return nil, validationf("task %d has no proposed caretaker", task.ID)
	}

	return w.caretakers.CreateInTx(tx, CreateRelationshipInput{
		UserID:      *task.PrimaryUserID,
		CaretakerID: secondary[0],
		Reason:      task.Reason,
		Notes:       task.Notes,
		EndDate:     task.EndDate,
	})
}

// close moves a pending task to REJECTED or CANCELLED, reversing the
// submission-time side effect of a deletion request.
func (w *Workflow) close(ctx context.Context, actor Actor, taskID uint, status string, check func(*models.AdminTask) error) (*models.AdminTask, error) {
	var task models.AdminTask

	err := w.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&task, taskID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "task", ID: taskID}
			}
			return err
		}

		if check != nil {
			if err := check(&task); err != nil {
				return err
			}
		}

		flip := tx.Model(&models.AdminTask{}).
			Where("id = ? AND status = ?", taskID, types.TaskPending).
			Update("status", status)

		if flip.Error != nil {
			return flip.Error
		}

		if flip.RowsAffected == 0 {
			return validationf("task %d has already been processed", taskID)
		}

		if task.Action == types.ActionDeleteProject && task.ProjectID != nil {
			if err := tx.Model(&models.Project{}).
				Where("id = ?", *task.ProjectID).
				Update("deletion_requested", false).Error; err != nil {
				return err
			}
		}

		task.Status = status
		return nil
	})

	if err != nil {
		return nil, err
	}

	w.audit.Info("task closed",
		zap.Uint("task_id", task.ID),
		zap.String("action", task.Action),
		zap.String("status", status),
		zap.Uint("actor_id", actor.ID))

	return &task, nil
}

// AutoCancelExpired sweeps pending setcaretaker tasks whose end date has
// passed, at date granularity. It is invoked lazily from the read paths
// that list or consult pending tasks, never from a background job.
func (w *Workflow) AutoCancelExpired(ctx context.Context) error {
	today := dateOf(time.Now())

	var expired []models.AdminTask

	err := w.db.
		Where("action = ? AND status = ?", types.ActionSetCaretaker, types.TaskPending).
		Where("end_date IS NOT NULL AND end_date < ?", today).
		Find(&expired).Error

	if err != nil {
		return err
	}

	for _, task := range expired {
		note := fmt.Sprintf("Auto-cancelled: expired on %s", dateOf(*task.EndDate).Format("2006-01-02"))

		notes := task.Notes
		if notes != "" {
			notes += "\n"
		}
		notes += note

		err := w.db.Model(&models.AdminTask{}).
			Where("id = ? AND status = ?", task.ID, types.TaskPending).
			Updates(map[string]interface{}{"status": types.TaskCancelled, "notes": notes}).Error

		if err != nil {
			return err
		}

		w.audit.Info("task auto-cancelled",
			zap.Uint("task_id", task.ID),
			zap.Time("end_date", *task.EndDate))
	}

	return nil
}

// ListPending returns pending tasks, oldest first, sweeping expired
// caretaker requests beforehand. With a user filter, only tasks naming that
// user among the secondary ids are returned.
func (w *Workflow) ListPending(ctx context.Context, secondaryUserID *uint) ([]models.AdminTask, error) {
	if err := w.AutoCancelExpired(ctx); err != nil {
		return nil, err
	}

	var tasks []models.AdminTask

	if err := w.db.Where("status = ?", types.TaskPending).Order("id").Find(&tasks).Error; err != nil {
		return nil, err
	}

	if secondaryUserID == nil {
		return tasks, nil
	}

	filtered := make([]models.AdminTask, 0, len(tasks))

	for _, task := range tasks {
		for _, id := range task.SecondaryIDs() {
			if id == *secondaryUserID {
				filtered = append(filtered, task)
				break
			}
		}
	}

	return filtered, nil
}

// CaretakerCheck is the per-user caretaker status summary.
type CaretakerCheck struct {
	CaretakerObject              *models.CaretakerRelationship `json:"caretaker_object"`
	CaretakerRequestObject       *models.AdminTask             `json:"caretaker_request_object"`
	BecomeCaretakerRequestObject *models.AdminTask             `json:"become_caretaker_request_object"`
}

// CheckCaretakerStatus reports whether the user currently has a caretaker,
// has a pending request for one, or is themselves the proposed caretaker on
// someone else's pending request. Sweeps expired requests first.
func (w *Workflow) CheckCaretakerStatus(ctx context.Context, userID uint) (*CaretakerCheck, error) {
	if err := w.AutoCancelExpired(ctx); err != nil {
		return nil, err
	}

	check := &CaretakerCheck{}

	active, err := w.caretakers.ActiveFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	if len(active) > 0 {
		relationship := active[0]
		check.CaretakerObject = &relationship
	}

	pending, err := w.pendingSetCaretakerTasks(ctx)
	if err != nil {
		return nil, err
	}

	for i := range pending {
		task := pending[i]

		if check.CaretakerRequestObject == nil && task.PrimaryUserID != nil && *task.PrimaryUserID == userID {
			check.CaretakerRequestObject = &task
			continue
		}

		if check.BecomeCaretakerRequestObject == nil {
			for _, id := range task.SecondaryIDs() {
				if id == userID {
					check.BecomeCaretakerRequestObject = &task
					break
				}
			}
		}
	}

	return check, nil
}

func (w *Workflow) pendingSetCaretakerTasks(ctx context.Context) ([]models.AdminTask, error) {
	var tasks []models.AdminTask

	err := w.db.
		Where("action = ? AND status = ?", types.ActionSetCaretaker, types.TaskPending).
		Order("id").
		Find(&tasks).Error

	if err != nil {
		return nil, err
	}

	return tasks, nil
}

func (w *Workflow) requireUsers(primaryID uint, secondaryIDs []uint) error {
	ids := append([]uint{primaryID}, secondaryIDs...)

	for _, id := range ids {
		var user models.User

		if err := w.db.First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "user", ID: id}
			}
			return err
		}
	}

	return nil
}

// dateOf truncates a timestamp to its calendar date in local time.
func dateOf(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
