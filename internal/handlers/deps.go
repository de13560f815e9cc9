package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spms-dev/spms/internal/middleware"
	"github.com/spms-dev/spms/internal/services"
)

var (
	workflowService   *services.Workflow
	caretakerService  *services.CaretakerService
	resolverService   *services.Resolver
	aggregatorService *services.Aggregator
)

// Configure wires the service layer into the handler package. Called once
// from main before the router is built.
func Configure(workflow *services.Workflow, caretakers *services.CaretakerService, resolver *services.Resolver, aggregator *services.Aggregator) {
	workflowService = workflow
	caretakerService = caretakers
	resolverService = resolver
	aggregatorService = aggregator
}

func actorFrom(user middleware.AuthenticatedUser) services.Actor {
	return services.Actor{
		ID:          user.ID,
		IsStaff:     user.IsStaff,
		IsSuperuser: user.IsSuperuser,
	}
}

// respondServiceError translates the service error taxonomy to HTTP codes.
func respondServiceError(ctx *gin.Context, err error) {
	var validationErr *services.ValidationError
	var notFoundErr *services.NotFoundError
	var permissionErr *services.PermissionError

	switch {
	case errors.As(err, &validationErr):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Message})
	case errors.As(err, &notFoundErr):
		ctx.JSON(http.StatusNotFound, gin.H{"error": notFoundErr.Error()})
	case errors.As(err, &permissionErr):
		ctx.JSON(http.StatusForbidden, gin.H{"error": permissionErr.Message})
	default:
		log.Printf("Unexpected service error: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
