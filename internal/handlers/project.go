package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/spms-dev/spms/db"
	"github.com/spms-dev/spms/internal/models"
	"github.com/spms-dev/spms/internal/services"
	"github.com/spms-dev/spms/internal/types"
	"github.com/spms-dev/spms/internal/utils"
	"gorm.io/gorm"
)

type CreateProjectRequest struct {
	Title        string `json:"title" binding:"required"`
	Description  string `json:"description"`
	BusinessArea uint   `json:"business_area" binding:"required"`
}

type UpdateProjectRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

type GetProjectResponse struct {
	ID                uint   `json:"id"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	Status            string `json:"status"`
	DeletionRequested bool   `json:"deletion_requested"`
	BusinessAreaID    uint   `json:"business_area_id"`
}

func projectResponse(project *models.Project) GetProjectResponse {
	return GetProjectResponse{
		ID:                project.ID,
		Title:             project.Title,
		Description:       project.Description,
		Status:            project.Status,
		DeletionRequested: project.DeletionRequested,
		BusinessAreaID:    project.BusinessAreaID,
	}
}

func CreateProject(ctx *gin.Context) {
	var body CreateProjectRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var area models.BusinessArea

	if err := db.DB.First(&area, body.BusinessArea).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Business area not found"})
		} else {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve business area"})
		}
		return
	}

	project := models.Project{
		Title:          body.Title,
		Description:    body.Description,
		Status:         types.ProjectActive,
		BusinessAreaID: area.ID,
	}

	// The creator becomes the supervising leader of the new project.
	err = db.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&project).Error; err != nil {
			return err
		}

		membership := models.ProjectMembership{
			UserID:    userID,
			ProjectID: project.ID,
			Role:      types.RoleSupervising,
			IsLeader:  true,
		}

		return tx.Create(&membership).Error
	})

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create project"})
		return
	}

	ctx.JSON(http.StatusCreated, projectResponse(&project))
}

func ListProjects(ctx *gin.Context) {
	currentUser, err := utils.GetCurrentUser(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var projects []models.Project

	query := db.DB

	// Non-admins only see projects they belong to.
	if !currentUser.IsSuperuser {
		query = query.
			Joins("JOIN project_memberships ON project_memberships.project_id = projects.id").
			Where("project_memberships.user_id = ?", currentUser.ID).
			Where("project_memberships.deleted_at IS NULL")
	}

	if err := query.Find(&projects).Error; err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve projects"})
		return
	}

	response := make([]GetProjectResponse, 0, len(projects))

	for i := range projects {
		response = append(response, projectResponse(&projects[i]))
	}

	ctx.JSON(http.StatusOK, response)
}

func UpdateProject(ctx *gin.Context) {
	currentUser, err := utils.GetCurrentUser(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var body UpdateProjectRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var project models.Project
	projectID := ctx.Param("project_id")

	if err := db.DB.First(&project, "id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		} else {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve project"})
		}
		return
	}

	if !currentUser.IsSuperuser && !isProjectLeader(currentUser.ID, project.ID) {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "Only project leaders may update a project"})
		return
	}

	if body.Title != "" {
		project.Title = body.Title
	}

	if body.Description != "" {
		project.Description = body.Description
	}

	if body.Status != "" {
		project.Status = body.Status
	}

	if err := db.DB.Save(&project).Error; err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update project"})
		return
	}

	ctx.JSON(http.StatusOK, projectResponse(&project))
}

// DeleteProject is the direct path for administrators; everyone else
// submits a deletion task instead.
func DeleteProject(ctx *gin.Context) {
	currentUser, err := utils.GetCurrentUser(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	if !currentUser.IsSuperuser {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "Administrator access required"})
		return
	}

	projectID, err := strconv.ParseUint(ctx.Param("project_id"), 10, 32)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid project ID"})
		return
	}

	err = db.DB.Transaction(func(tx *gorm.DB) error {
		_, err := services.DeleteProjectCascade(tx, uint(projectID))
		return err
	})

	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func isProjectLeader(userID, projectID uint) bool {
	var count int64

	err := db.DB.Model(&models.ProjectMembership{}).
		Where("user_id = ? AND project_id = ? AND is_leader = ?", userID, projectID, true).
		Count(&count).Error

	return err == nil && count > 0
}
