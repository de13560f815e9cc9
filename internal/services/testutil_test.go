package services_test

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/spms-dev/spms/internal/cache"
	"github.com/spms-dev/spms/internal/models"
	"github.com/spms-dev/spms/internal/services"
	"github.com/spms-dev/spms/internal/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := database.DB()
	require.NoError(t, err)
	// A single connection keeps every query on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)

	err = database.AutoMigrate(
		&models.User{},
		&models.BusinessArea{},
		&models.Project{},
		&models.ProjectMembership{},
		&models.ProjectDocument{},
		&models.Comment{},
		&models.CaretakerRelationship{},
		&models.AdminTask{},
	)
	require.NoError(t, err)

	return database
}

type testEnv struct {
	db         *gorm.DB
	kv         cache.KV
	caretakers *services.CaretakerService
	workflow   *services.Workflow
	resolver   *services.Resolver
	aggregator *services.Aggregator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	database := newTestDB(t)
	kv := cache.NewMemory()
	audit := zap.NewNop()

	caretakers := services.NewCaretakerService(database, kv, audit)

	return &testEnv{
		db:         database,
		kv:         kv,
		caretakers: caretakers,
		workflow:   services.NewWorkflow(database, caretakers, audit),
		resolver:   services.NewResolver(database, caretakers),
		aggregator: services.NewAggregator(database, audit),
	}
}

func mustUser(t *testing.T, database *gorm.DB, name string, opts ...func(*models.User)) *models.User {
	t.Helper()

	user := &models.User{
		Name:         name,
		Email:        name + "@example.org",
		PasswordHash: "x",
	}

	for _, opt := range opts {
		opt(user)
	}

	require.NoError(t, database.Create(user).Error)
	return user
}

func asStaff(user *models.User) {
	user.IsStaff = true
}

func asSuperuser(user *models.User) {
	user.IsSuperuser = true
}

func inArea(areaID uint) func(*models.User) {
	return func(user *models.User) {
		user.BusinessAreaID = &areaID
	}
}

func mustArea(t *testing.T, database *gorm.DB, name string, leaderID *uint) *models.BusinessArea {
	t.Helper()

	area := &models.BusinessArea{Name: name, LeaderID: leaderID}
	require.NoError(t, database.Create(area).Error)
	return area
}

func mustProject(t *testing.T, database *gorm.DB, title string, areaID uint, status string) *models.Project {
	t.Helper()

	project := &models.Project{
		Title:          title,
		Status:         status,
		BusinessAreaID: areaID,
	}
	require.NoError(t, database.Create(project).Error)
	return project
}

func mustMembership(t *testing.T, database *gorm.DB, userID, projectID uint, role string, isLeader bool) *models.ProjectMembership {
	t.Helper()

	membership := &models.ProjectMembership{
		UserID:    userID,
		ProjectID: projectID,
		Role:      role,
		IsLeader:  isLeader,
	}
	require.NoError(t, database.Create(membership).Error)
	return membership
}

func mustDocument(t *testing.T, database *gorm.DB, projectID, creatorID uint, kind string, opts ...func(*models.ProjectDocument)) *models.ProjectDocument {
	t.Helper()

	document := &models.ProjectDocument{
		ProjectID:  projectID,
		Kind:       kind,
		Status:     types.DocumentInApproval,
		CreatorID:  creatorID,
		ModifierID: creatorID,
	}

	for _, opt := range opts {
		opt(document)
	}

	require.NoError(t, database.Create(document).Error)
	return document
}

func mustRelationship(t *testing.T, database *gorm.DB, userID, caretakerID uint, endDate *time.Time) *models.CaretakerRelationship {
	t.Helper()

	relationship := &models.CaretakerRelationship{
		UserID:      userID,
		CaretakerID: caretakerID,
		EndDate:     endDate,
	}
	require.NoError(t, database.Create(relationship).Error)
	return relationship
}

func adminActor(user *models.User) services.Actor {
	return services.Actor{ID: user.ID, IsStaff: user.IsStaff, IsSuperuser: true}
}

func userActor(user *models.User) services.Actor {
	return services.Actor{ID: user.ID, IsStaff: user.IsStaff, IsSuperuser: user.IsSuperuser}
}

func daysFromNow(days int) *time.Time {
	date := time.Now().AddDate(0, 0, days)
	return &date
}
