package handlers

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spms-dev/spms/internal/models"
	"github.com/spms-dev/spms/internal/services"
	"github.com/spms-dev/spms/internal/types"
	"github.com/spms-dev/spms/internal/utils"
)

type CreateTaskRequest struct {
	Action         string `json:"action" binding:"required"`
	Project        uint   `json:"project"`
	PrimaryUser    uint   `json:"primary_user"`
	SecondaryUsers []uint `json:"secondary_users"`
	Reason         string `json:"reason"`
	Notes          string `json:"notes"`
	EndDate        string `json:"end_date"` // "2006-01-02"
}

type RespondTaskRequest struct {
	Action string `json:"action" binding:"required"` // "approve" or "reject"
}

type TaskResponse struct {
	ID               uint    `json:"id"`
	Action           string  `json:"action"`
	Status           string  `json:"status"`
	RequesterID      uint    `json:"requester_id"`
	ProjectID        *uint   `json:"project_id"`
	PrimaryUserID    *uint   `json:"primary_user_id"`
	SecondaryUserIDs []uint  `json:"secondary_user_ids"`
	Reason           string  `json:"reason"`
	Notes            string  `json:"notes"`
	EndDate          *string `json:"end_date"`
	CreatedAt        string  `json:"created_at"`
}

func taskResponse(task *models.AdminTask) TaskResponse {
	response := TaskResponse{
		ID:               task.ID,
		Action:           task.Action,
		Status:           task.Status,
		RequesterID:      task.RequesterID,
		ProjectID:        task.ProjectID,
		PrimaryUserID:    task.PrimaryUserID,
		SecondaryUserIDs: task.SecondaryIDs(),
		Reason:           task.Reason,
		Notes:            task.Notes,
		CreatedAt:        task.CreatedAt.Format(time.RFC3339),
	}

	if task.EndDate != nil {
		endDate := task.EndDate.Format("2006-01-02")
		response.EndDate = &endDate
	}

	return response
}

func CreateTask(ctx *gin.Context) {
	currentUser, err := utils.GetCurrentUser(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var body CreateTaskRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var endDate *time.Time

	if body.EndDate != "" {
		parsed, err := time.ParseInLocation("2006-01-02", body.EndDate, time.Local)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be formatted as YYYY-MM-DD"})
			return
		}
		endDate = &parsed
	}

	actor := actorFrom(currentUser)

	var task *models.AdminTask

	switch body.Action {
	case types.ActionDeleteProject:
		task, err = workflowService.SubmitDeleteProject(ctx, actor, services.DeleteProjectInput{
			ProjectID: body.Project,
			Reason:    body.Reason,
		})

	case types.ActionMergeUser:
		task, err = workflowService.SubmitMergeUsers(ctx, actor, services.MergeUsersInput{
			PrimaryUserID:    body.PrimaryUser,
			SecondaryUserIDs: body.SecondaryUsers,
			Reason:           body.Reason,
		})

	case types.ActionSetCaretaker:
		var caretakerID uint
		if len(body.SecondaryUsers) > 0 {
			caretakerID = body.SecondaryUsers[0]
		}

		task, err = workflowService.SubmitSetCaretaker(ctx, actor, services.SetCaretakerInput{
			UserID:      body.PrimaryUser,
			CaretakerID: caretakerID,
			Reason:      body.Reason,
			Notes:       body.Notes,
			EndDate:     endDate,
		})

	default:
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Unknown task action"})
		return
	}

	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	notifyTaskSubmitted(task)

	ctx.JSON(http.StatusCreated, taskResponse(task))
}

func ApproveTask(ctx *gin.Context) {
	driveTask(ctx, func(actor services.Actor, taskID uint) (*models.AdminTask, error) {
		return workflowService.Approve(ctx, actor, taskID)
	})
}

func RejectTask(ctx *gin.Context) {
	driveTask(ctx, func(actor services.Actor, taskID uint) (*models.AdminTask, error) {
		return workflowService.Reject(ctx, actor, taskID)
	})
}

func CancelTask(ctx *gin.Context) {
	driveTask(ctx, func(actor services.Actor, taskID uint) (*models.AdminTask, error) {
		return workflowService.Cancel(ctx, actor, taskID)
	})
}

func RespondTask(ctx *gin.Context) {
	var body RespondTaskRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if body.Action != "approve" && body.Action != "reject" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "action must be approve or reject"})
		return
	}

	driveTask(ctx, func(actor services.Actor, taskID uint) (*models.AdminTask, error) {
		return workflowService.Respond(ctx, actor, taskID, body.Action == "approve")
	})
}

// driveTask shares the param parsing, auth and response shape of the four
// state-machine endpoints.
func driveTask(ctx *gin.Context, operation func(services.Actor, uint) (*models.AdminTask, error)) {
	currentUser, err := utils.GetCurrentUser(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	taskID, err := strconv.ParseUint(ctx.Param("task_id"), 10, 32)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid task ID"})
		return
	}

	task, err := operation(actorFrom(currentUser), uint(taskID))

	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	notifyTaskResolved(task)
	BroadcastTaskEvent(task.Action, task.ID, task.Status)

	ctx.JSON(http.StatusAccepted, taskResponse(task))
}

func ListPendingTasks(ctx *gin.Context) {
	if _, err := utils.GetCurrentUser(ctx); err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var secondaryUserID *uint

	if rawID := ctx.Query("user_id"); rawID != "" {
		parsed, err := strconv.ParseUint(rawID, 10, 32)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user_id"})
			return
		}
		id := uint(parsed)
		secondaryUserID = &id
	}

	tasks, err := workflowService.ListPending(ctx, secondaryUserID)

	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	response := make([]TaskResponse, 0, len(tasks))

	for i := range tasks {
		response = append(response, taskResponse(&tasks[i]))
	}

	ctx.JSON(http.StatusOK, response)
}

func notifyTaskSubmitted(task *models.AdminTask) {
	if err := services.SendTaskSubmittedNotification(task); err != nil {
		log.Printf("Failed to send task submitted notification: %v", err)
	}

	BroadcastTaskEvent(task.Action, task.ID, task.Status)
}

func notifyTaskResolved(task *models.AdminTask) {
	if task.Status == types.TaskPending {
		return
	}

	if err := services.SendTaskResolvedNotification(task); err != nil {
		log.Printf("Failed to send task resolved notification: %v", err)
	}
}
