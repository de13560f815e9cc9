package services_test

import (
	"testing"

	"github.com/spms-dev/spms/internal/models"
	"github.com/spms-dev/spms/internal/services"
	"github.com/spms-dev/spms/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMergeUsersRepointsRecords(t *testing.T) {
	env := newTestEnv(t)

	primary := mustUser(t, env.db, "primary")
	secondary := mustUser(t, env.db, "secondary")
	other := mustUser(t, env.db, "other")
	area := mustArea(t, env.db, "Genomics", nil)
	project := mustProject(t, env.db, "Reef survey", area.ID, types.ProjectActive)

	mustMembership(t, env.db, secondary.ID, project.ID, types.RoleResearch, false)
	document := mustDocument(t, env.db, project.ID, secondary.ID, "concept")
	require.NoError(t, env.db.Create(&models.Comment{
		DocumentID: document.ID,
		UserID:     secondary.ID,
		Text:       "draft comment",
	}).Error)
	mustRelationship(t, env.db, secondary.ID, other.ID, nil)

	removed, err := services.MergeUsers(env.db, zap.NewNop(), primary, secondary.ID)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, secondary.ID, removed[0].UserID)

	var membership models.ProjectMembership
	require.NoError(t, env.db.Where("project_id = ?", project.ID).First(&membership).Error)
	assert.Equal(t, primary.ID, membership.UserID)
	assert.Equal(t, types.RoleResearch, membership.Role)

	var storedDocument models.ProjectDocument
	require.NoError(t, env.db.First(&storedDocument, document.ID).Error)
	assert.Equal(t, primary.ID, storedDocument.CreatorID)
	assert.Equal(t, primary.ID, storedDocument.ModifierID)

	var comment models.Comment
	require.NoError(t, env.db.Where("document_id = ?", document.ID).First(&comment).Error)
	assert.Equal(t, primary.ID, comment.UserID)

	var count int64
	require.NoError(t, env.db.Model(&models.CaretakerRelationship{}).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, env.db.Model(&models.User{}).Where("id = ?", secondary.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestMergeUsersResolvesRoleConflicts(t *testing.T) {
	cases := []struct {
		name          string
		primaryStaff  bool
		primaryRole   string
		secondaryRole string
		want          string
	}{
		{
			name:          "supervising on primary wins",
			primaryRole:   types.RoleSupervising,
			secondaryRole: types.RoleResearch,
			want:          types.RoleSupervising,
		},
		{
			name:          "supervising on secondary wins",
			primaryRole:   types.RoleStudent,
			secondaryRole: types.RoleSupervising,
			want:          types.RoleSupervising,
		},
		{
			name:          "eligible secondary role taken for staff",
			primaryStaff:  true,
			primaryRole:   types.RoleResearch,
			secondaryRole: types.RoleTechnical,
			want:          types.RoleTechnical,
		},
		{
			name:          "staff primary keeps role over non-staff secondary role",
			primaryStaff:  true,
			primaryRole:   types.RoleResearch,
			secondaryRole: types.RoleStudent,
			want:          types.RoleResearch,
		},
		{
			name:          "non-staff primary keeps role over staff secondary role",
			primaryRole:   types.RoleStudent,
			secondaryRole: types.RoleTechnical,
			want:          types.RoleStudent,
		},
		{
			name:          "eligible secondary role taken for non-staff",
			primaryRole:   types.RoleStudent,
			secondaryRole: types.RoleConsulted,
			want:          types.RoleConsulted,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)

			opts := []func(*models.User){}
			if tc.primaryStaff {
				opts = append(opts, asStaff)
			}

			primary := mustUser(t, env.db, "primary", opts...)
			secondary := mustUser(t, env.db, "secondary")
			area := mustArea(t, env.db, "Genomics", nil)
			project := mustProject(t, env.db, "Reef survey", area.ID, types.ProjectActive)

			mustMembership(t, env.db, primary.ID, project.ID, tc.primaryRole, false)
			mustMembership(t, env.db, secondary.ID, project.ID, tc.secondaryRole, true)

			_, err := services.MergeUsers(env.db, zap.NewNop(), primary, secondary.ID)
			require.NoError(t, err)

			var memberships []models.ProjectMembership
			require.NoError(t, env.db.Where("project_id = ?", project.ID).Find(&memberships).Error)
			require.Len(t, memberships, 1)
			assert.Equal(t, primary.ID, memberships[0].UserID)
			assert.Equal(t, tc.want, memberships[0].Role)
			assert.True(t, memberships[0].IsLeader)
		})
	}
}

func TestMergeUsersRepointsOverFormerMembership(t *testing.T) {
	env := newTestEnv(t)

	primary := mustUser(t, env.db, "primary")
	secondary := mustUser(t, env.db, "secondary")
	area := mustArea(t, env.db, "Genomics", nil)
	project := mustProject(t, env.db, "Reef survey", area.ID, types.ProjectActive)

	// The primary once belonged to this project; only the tombstone remains.
	former := mustMembership(t, env.db, primary.ID, project.ID, types.RoleResearch, false)
	require.NoError(t, env.db.Delete(former).Error)

	mustMembership(t, env.db, secondary.ID, project.ID, types.RoleTechnical, true)

	_, err := services.MergeUsers(env.db, zap.NewNop(), primary, secondary.ID)
	require.NoError(t, err)

	var memberships []models.ProjectMembership
	require.NoError(t, env.db.Where("project_id = ?", project.ID).Find(&memberships).Error)
	require.Len(t, memberships, 1)
	assert.Equal(t, primary.ID, memberships[0].UserID)
	assert.Equal(t, types.RoleTechnical, memberships[0].Role)
}

func TestMergeUsersSelfMergeFails(t *testing.T) {
	env := newTestEnv(t)

	primary := mustUser(t, env.db, "primary")

	_, err := services.MergeUsers(env.db, zap.NewNop(), primary, primary.ID)

	var validationErr *services.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestMergeUsersUnknownSecondary(t *testing.T) {
	env := newTestEnv(t)

	primary := mustUser(t, env.db, "primary")

	_, err := services.MergeUsers(env.db, zap.NewNop(), primary, 9999)

	var notFoundErr *services.NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
}

func TestMergeUsersRemovesBothRelationshipDirections(t *testing.T) {
	env := newTestEnv(t)

	primary := mustUser(t, env.db, "primary")
	secondary := mustUser(t, env.db, "secondary")
	caredFor := mustUser(t, env.db, "caredFor")
	caretaker := mustUser(t, env.db, "caretaker")

	mustRelationship(t, env.db, secondary.ID, caretaker.ID, nil)
	mustRelationship(t, env.db, caredFor.ID, secondary.ID, nil)

	removed, err := services.MergeUsers(env.db, zap.NewNop(), primary, secondary.ID)
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	var count int64
	require.NoError(t, env.db.Model(&models.CaretakerRelationship{}).Count(&count).Error)
	assert.Zero(t, count)
}
