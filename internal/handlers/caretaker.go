package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spms-dev/spms/internal/services"
	"github.com/spms-dev/spms/internal/utils"
)

type CreateCaretakerRequest struct {
	User      uint   `json:"user" binding:"required"`
	Caretaker uint   `json:"caretaker" binding:"required"`
	Reason    string `json:"reason"`
	Notes     string `json:"notes"`
	EndDate   string `json:"end_date"` // "2006-01-02"
}

type UpdateCaretakerRequest struct {
	Reason       *string `json:"reason"`
	Notes        *string `json:"notes"`
	EndDate      string  `json:"end_date"`
	ClearEndDate bool    `json:"clear_end_date"`
}

// CheckCaretakerStatus reports the current user's caretaker situation:
// their active caretaker, any pending request for one, and any pending
// request naming them as someone's caretaker.
func CheckCaretakerStatus(ctx *gin.Context) {
	currentUser, err := utils.GetCurrentUser(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	check, err := workflowService.CheckCaretakerStatus(ctx, currentUser.ID)

	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, check)
}

// CaretakerTasks returns the document-approval lists delegated to a
// caretaker through the transitive caretaking chain.
func CaretakerTasks(ctx *gin.Context) {
	currentUser, err := utils.GetCurrentUser(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	caretakerID, err := strconv.ParseUint(ctx.Param("caretaker_id"), 10, 32)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid caretaker ID"})
		return
	}

	assignments, err := resolverService.AllCaretakerAssignments(ctx, uint(caretakerID))

	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	analysis, err := resolverService.AnalyzeCaretakeeRoles(ctx, assignments)

	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	lists, err := aggregatorService.TasksFor(ctx, currentUser.ID, analysis)

	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, lists)
}

// CreateCaretaker lets an administrator create a relationship directly,
// bypassing the request workflow.
func CreateCaretaker(ctx *gin.Context) {
	currentUser, err := utils.GetCurrentUser(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	if !currentUser.IsSuperuser {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "Administrator access required"})
		return
	}

	var body CreateCaretakerRequest

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

	relationship, err := caretakerService.Create(ctx, services.CreateRelationshipInput{
		UserID:      body.User,
		CaretakerID: body.Caretaker,
		Reason:      body.Reason,
		Notes:       body.Notes,
		EndDate:     endDate,
	})

	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, relationship)
}

func UpdateCaretaker(ctx *gin.Context) {
	currentUser, err := utils.GetCurrentUser(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	if !currentUser.IsSuperuser {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "Administrator access required"})
		return
	}

	relationshipID, err := strconv.ParseUint(ctx.Param("id"), 10, 32)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid relationship ID"})
		return
	}

	var body UpdateCaretakerRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	input := services.UpdateRelationshipInput{
		Reason:       body.Reason,
		Notes:        body.Notes,
		ClearEndDate: body.ClearEndDate,
	}

	if body.EndDate != "" {
		parsed, err := time.ParseInLocation("2006-01-02", body.EndDate, time.Local)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be formatted as YYYY-MM-DD"})
			return
		}
		input.EndDate = &parsed
	}

	relationship, err := caretakerService.Update(ctx, uint(relationshipID), input)

	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, relationship)
}

func DeleteCaretaker(ctx *gin.Context) {
	currentUser, err := utils.GetCurrentUser(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	if !currentUser.IsSuperuser {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "Administrator access required"})
		return
	}

	relationshipID, err := strconv.ParseUint(ctx.Param("id"), 10, 32)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid relationship ID"})
		return
	}

	if err := caretakerService.Delete(ctx, uint(relationshipID)); err != nil {
		respondServiceError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}
