package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/spms-dev/spms/db"
	"github.com/spms-dev/spms/internal/auth"
	"github.com/spms-dev/spms/internal/cache"
	"github.com/spms-dev/spms/internal/handlers"
	"github.com/spms-dev/spms/internal/models"
	"github.com/spms-dev/spms/internal/router"
	"github.com/spms-dev/spms/internal/services"
	"github.com/spms-dev/spms/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)
	t.Setenv("JWT_SECRET", "test-secret")
	require.NoError(t, auth.InitJWTSecret())

	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	db.DB = database
	require.NoError(t, db.MigrateDatabase())

	kv := cache.NewMemory()
	audit := zap.NewNop()
	caretakers := services.NewCaretakerService(database, kv, audit)
	handlers.Configure(
		services.NewWorkflow(database, caretakers, audit),
		caretakers,
		services.NewResolver(database, caretakers),
		services.NewAggregator(database, audit),
	)

	return router.NewRouter()
}

func createUser(t *testing.T, name string, superuser bool) *models.User {
	t.Helper()

	user := &models.User{
		Name:         name,
		Email:        name + "@example.org",
		PasswordHash: "x",
		IsSuperuser:  superuser,
	}
	require.NoError(t, db.DB.Create(user).Error)
	return user
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, user *models.User, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var payload *bytes.Buffer

	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewBuffer(raw)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	request := httptest.NewRequest(method, path, payload)
	request.Header.Set("Content-Type", "application/json")

	if user != nil {
		token, err := auth.GenerateJWT(user)
		require.NoError(t, err)
		request.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, request)
	return recorder
}

func TestTaskEndpointsRequireAuth(t *testing.T) {
	engine := newTestServer(t)

	recorder := doJSON(t, engine, http.MethodGet, "/api/tasks/pending", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestCaretakerRequestLifecycle(t *testing.T) {
	engine := newTestServer(t)

	alex := createUser(t, "alex", false)
	blair := createUser(t, "blair", false)

	recorder := doJSON(t, engine, http.MethodPost, "/api/tasks", alex, gin.H{
		"action":          types.ActionSetCaretaker,
		"primary_user":    alex.ID,
		"secondary_users": []uint{blair.ID},
		"reason":          "sabbatical",
	})
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	var created struct {
		ID     uint   `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &created))
	assert.Equal(t, types.TaskPending, created.Status)

	// The proposed caretaker sees the request in their pending list.
	recorder = doJSON(t, engine, http.MethodGet,
		fmt.Sprintf("/api/tasks/pending?user_id=%d", blair.ID), blair, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var pending []struct {
		ID uint `json:"id"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, created.ID, pending[0].ID)

	recorder = doJSON(t, engine, http.MethodPost,
		fmt.Sprintf("/api/tasks/%d/respond", created.ID), blair, gin.H{"action": "approve"})
	require.Equal(t, http.StatusAccepted, recorder.Code, recorder.Body.String())

	var resolved struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resolved))
	assert.Equal(t, types.TaskFulfilled, resolved.Status)

	var relationship models.CaretakerRelationship
	require.NoError(t, db.DB.
		Where("user_id = ? AND caretaker_id = ?", alex.ID, blair.ID).
		First(&relationship).Error)
	assert.Equal(t, "sabbatical", relationship.Reason)

	// A second response hits the status guard.
	recorder = doJSON(t, engine, http.MethodPost,
		fmt.Sprintf("/api/tasks/%d/respond", created.ID), blair, gin.H{"action": "approve"})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestApproveForbiddenForNonAdmin(t *testing.T) {
	engine := newTestServer(t)

	requester := createUser(t, "requester", false)
	admin := createUser(t, "admin", true)

	area := models.BusinessArea{Name: "Genomics"}
	require.NoError(t, db.DB.Create(&area).Error)
	project := models.Project{Title: "Reef survey", Status: types.ProjectActive, BusinessAreaID: area.ID}
	require.NoError(t, db.DB.Create(&project).Error)

	recorder := doJSON(t, engine, http.MethodPost, "/api/tasks", requester, gin.H{
		"action":  types.ActionDeleteProject,
		"project": project.ID,
		"reason":  "duplicate entry",
	})
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	var created struct {
		ID uint `json:"id"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &created))

	recorder = doJSON(t, engine, http.MethodPost,
		fmt.Sprintf("/api/tasks/%d/approve", created.ID), requester, nil)
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	recorder = doJSON(t, engine, http.MethodPost,
		fmt.Sprintf("/api/tasks/%d/approve", created.ID), admin, nil)
	require.Equal(t, http.StatusAccepted, recorder.Code, recorder.Body.String())

	var count int64
	require.NoError(t, db.DB.Model(&models.Project{}).Where("id = ?", project.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCaretakerCheckEndpoint(t *testing.T) {
	engine := newTestServer(t)

	alex := createUser(t, "alex", false)
	blair := createUser(t, "blair", false)

	require.NoError(t, db.DB.Create(&models.CaretakerRelationship{
		UserID:      alex.ID,
		CaretakerID: blair.ID,
	}).Error)

	recorder := doJSON(t, engine, http.MethodGet, "/api/caretakers/check", alex, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var check struct {
		CaretakerObject *struct {
			CaretakerID uint
		} `json:"caretaker_object"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &check))
	require.NotNil(t, check.CaretakerObject)
	assert.Equal(t, blair.ID, check.CaretakerObject.CaretakerID)
}
