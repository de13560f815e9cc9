package types

import (
	"os"
	"strings"
)

const ContextUserKey = "user"

// Task actions.
const (
	ActionDeleteProject = "deleteproject"
	ActionMergeUser     = "mergeuser"
	ActionSetCaretaker  = "setcaretaker"
)

// Task statuses.
const (
	TaskPending   = "pending"
	TaskApproved  = "approved"
	TaskRejected  = "rejected"
	TaskCancelled = "cancelled"
	TaskFulfilled = "fulfilled"
)

// Project statuses.
const (
	ProjectActive     = "active"
	ProjectCompleted  = "completed"
	ProjectTerminated = "terminated"
	ProjectSuspended  = "suspended"
)

// ClosedProjectStatuses are excluded from caretaker role analysis and
// document task aggregation.
var ClosedProjectStatuses = []string{ProjectCompleted, ProjectTerminated, ProjectSuspended}

// Document statuses.
const (
	DocumentNew        = "new"
	DocumentInApproval = "inapproval"
	DocumentApproved   = "approved"
	DocumentRevising   = "revising"
)

// Membership roles.
const (
	RoleSupervising          = "supervising"
	RoleResearch             = "research"
	RoleTechnical            = "technical"
	RoleExternalCollaborator = "externalcol"
	RoleExternalPeer         = "externalpeer"
	RoleAcademicSupervisor   = "academicsuper"
	RoleStudent              = "student"
	RoleConsulted            = "consulted"
	RoleGroup                = "group"
)

// StaffRoles are the roles a staff user may hold after a merge; NonStaffRoles
// the same for non-staff users.
var (
	StaffRoles    = []string{RoleResearch, RoleTechnical}
	NonStaffRoles = []string{
		RoleExternalCollaborator,
		RoleExternalPeer,
		RoleAcademicSupervisor,
		RoleStudent,
		RoleConsulted,
		RoleGroup,
	}
)

// DirectorateAreaName is the business area whose members hold
// directorate-level document approval visibility.
const DirectorateAreaName = "Directorate"

type UserResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
}

var (
	// Default allowed origins for development
	defaultOrigins = []string{
		"http://localhost:3000",
		"http://localhost:5173",
	}

	AllowedOrigins = initAllowedOrigins()
)

func initAllowedOrigins() []string {
	origins := make([]string, len(defaultOrigins))
	copy(origins, defaultOrigins)

	if clientURL := os.Getenv("CLIENT_URL"); clientURL != "" {
		origins = append(origins, clientURL)
	}

	if allowedOrigins := os.Getenv("ALLOWED_ORIGINS"); allowedOrigins != "" {
		envOrigins := strings.Split(allowedOrigins, ",")
		for _, origin := range envOrigins {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}

	return origins
}
