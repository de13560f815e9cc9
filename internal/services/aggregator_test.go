package services_test

import (
	"context"
	"testing"

	"github.com/spms-dev/spms/internal/models"
	"github.com/spms-dev/spms/internal/services"
	"github.com/spms-dev/spms/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func awaitingDirectorate(document *models.ProjectDocument) {
	document.ProjectLeadApprovalGranted = true
	document.BusinessAreaLeadApprovalGranted = true
}

func awaitingBusinessArea(document *models.ProjectDocument) {
	document.ProjectLeadApprovalGranted = true
}

func approved(document *models.ProjectDocument) {
	document.Status = types.DocumentApproved
	document.ProjectLeadApprovalGranted = true
	document.BusinessAreaLeadApprovalGranted = true
	document.DirectorateApprovalGranted = true
}

func taskIDs(tasks []services.DocumentTask) []uint {
	ids := make([]uint, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	return ids
}

func TestTasksForDirectorate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	requester := mustUser(t, env.db, "requester")
	creator := mustUser(t, env.db, "creator")
	area := mustArea(t, env.db, "Genomics", nil)
	project := mustProject(t, env.db, "Reef survey", area.ID, types.ProjectActive)
	closed := mustProject(t, env.db, "Old survey", area.ID, types.ProjectTerminated)

	ready := mustDocument(t, env.db, project.ID, creator.ID, "concept", awaitingDirectorate)
	mustDocument(t, env.db, project.ID, creator.ID, "projectplan", awaitingBusinessArea)
	mustDocument(t, env.db, project.ID, creator.ID, "closure", approved)
	mustDocument(t, env.db, closed.ID, creator.ID, "concept", awaitingDirectorate)

	lists, err := env.aggregator.TasksFor(ctx, requester.ID, &services.RoleAnalysis{
		DirectorateFound: true,
		BALeaderIDs:      map[uint]bool{},
		ProjectLeadIDs:   map[uint]bool{},
		TeamMemberIDs:    map[uint]bool{},
	})
	require.NoError(t, err)

	require.Len(t, lists.Directorate, 1)
	assert.Equal(t, ready.ID, lists.Directorate[0].ID)
	assert.Equal(t, "concept", lists.Directorate[0].Kind)
	assert.Equal(t, "Reef survey", lists.Directorate[0].ProjectTitle)
	assert.Equal(t, []uint{ready.ID}, taskIDs(lists.All))
	assert.Empty(t, lists.BusinessArea)
	assert.Empty(t, lists.ProjectLead)
	assert.Empty(t, lists.TeamMember)
}

func TestTasksForSuppressesDirectorateForDirectorateRequester(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	directorate := mustArea(t, env.db, types.DirectorateAreaName, nil)
	requester := mustUser(t, env.db, "requester", inArea(directorate.ID))
	creator := mustUser(t, env.db, "creator")
	area := mustArea(t, env.db, "Genomics", nil)
	project := mustProject(t, env.db, "Reef survey", area.ID, types.ProjectActive)
	mustDocument(t, env.db, project.ID, creator.ID, "concept", awaitingDirectorate)

	lists, err := env.aggregator.TasksFor(ctx, requester.ID, &services.RoleAnalysis{
		DirectorateFound: true,
		BALeaderIDs:      map[uint]bool{},
		ProjectLeadIDs:   map[uint]bool{},
		TeamMemberIDs:    map[uint]bool{},
	})
	require.NoError(t, err)

	assert.Empty(t, lists.Directorate)
	assert.Empty(t, lists.All)
}

func TestTasksForSuppressesDirectorateForSuperuser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	requester := mustUser(t, env.db, "requester", asSuperuser)
	creator := mustUser(t, env.db, "creator")
	area := mustArea(t, env.db, "Genomics", nil)
	project := mustProject(t, env.db, "Reef survey", area.ID, types.ProjectActive)
	mustDocument(t, env.db, project.ID, creator.ID, "concept", awaitingDirectorate)

	lists, err := env.aggregator.TasksFor(ctx, requester.ID, &services.RoleAnalysis{
		DirectorateFound: true,
		BALeaderIDs:      map[uint]bool{},
		ProjectLeadIDs:   map[uint]bool{},
		TeamMemberIDs:    map[uint]bool{},
	})
	require.NoError(t, err)

	assert.Empty(t, lists.Directorate)
}

func TestTasksForBusinessArea(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	requester := mustUser(t, env.db, "requester")
	creator := mustUser(t, env.db, "creator")
	areaLeader := mustUser(t, env.db, "areaLeader")
	area := mustArea(t, env.db, "Genomics", &areaLeader.ID)
	otherArea := mustArea(t, env.db, "Chemistry", nil)
	project := mustProject(t, env.db, "Reef survey", area.ID, types.ProjectActive)
	otherProject := mustProject(t, env.db, "Catalyst study", otherArea.ID, types.ProjectActive)

	ready := mustDocument(t, env.db, project.ID, creator.ID, "projectplan", awaitingBusinessArea)
	// Already past the business-area gate.
	mustDocument(t, env.db, project.ID, creator.ID, "concept", awaitingDirectorate)
	// Other areas are out of scope for this leader.
	mustDocument(t, env.db, otherProject.ID, creator.ID, "projectplan", awaitingBusinessArea)

	lists, err := env.aggregator.TasksFor(ctx, requester.ID, &services.RoleAnalysis{
		BALeaderIDs:    map[uint]bool{areaLeader.ID: true},
		ProjectLeadIDs: map[uint]bool{},
		TeamMemberIDs:  map[uint]bool{},
	})
	require.NoError(t, err)

	require.Len(t, lists.BusinessArea, 1)
	assert.Equal(t, ready.ID, lists.BusinessArea[0].ID)
	assert.Equal(t, []uint{ready.ID}, taskIDs(lists.All))
}

func TestTasksForLeadAndTeamDeduplicated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	requester := mustUser(t, env.db, "requester")
	lead := mustUser(t, env.db, "lead")
	member := mustUser(t, env.db, "member")
	area := mustArea(t, env.db, "Genomics", nil)
	project := mustProject(t, env.db, "Reef survey", area.ID, types.ProjectActive)

	mustMembership(t, env.db, lead.ID, project.ID, types.RoleResearch, true)
	mustMembership(t, env.db, member.ID, project.ID, types.RoleTechnical, false)

	pending := mustDocument(t, env.db, project.ID, lead.ID, "progressreport")

	lists, err := env.aggregator.TasksFor(ctx, requester.ID, &services.RoleAnalysis{
		BALeaderIDs:    map[uint]bool{},
		ProjectLeadIDs: map[uint]bool{lead.ID: true},
		TeamMemberIDs:  map[uint]bool{member.ID: true},
	})
	require.NoError(t, err)

	// The document shows in both per-role lists but only once overall.
	assert.Equal(t, []uint{pending.ID}, taskIDs(lists.ProjectLead))
	assert.Equal(t, []uint{pending.ID}, taskIDs(lists.TeamMember))
	assert.Equal(t, []uint{pending.ID}, taskIDs(lists.All))
}

func TestTasksForSkipsMalformedEntries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	requester := mustUser(t, env.db, "requester")
	creator := mustUser(t, env.db, "creator")
	area := mustArea(t, env.db, "Genomics", nil)
	project := mustProject(t, env.db, "Reef survey", area.ID, types.ProjectActive)

	valid := mustDocument(t, env.db, project.ID, creator.ID, "concept", awaitingDirectorate)
	// A row missing its kind still matches the per-role query but is dropped
	// from the combined list.
	mustDocument(t, env.db, project.ID, creator.ID, "", awaitingDirectorate)

	lists, err := env.aggregator.TasksFor(ctx, requester.ID, &services.RoleAnalysis{
		DirectorateFound: true,
		BALeaderIDs:      map[uint]bool{},
		ProjectLeadIDs:   map[uint]bool{},
		TeamMemberIDs:    map[uint]bool{},
	})
	require.NoError(t, err)

	assert.Len(t, lists.Directorate, 2)
	assert.Equal(t, []uint{valid.ID}, taskIDs(lists.All))
}

func TestTasksForUnknownRequester(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.aggregator.TasksFor(context.Background(), 9999, &services.RoleAnalysis{
		BALeaderIDs:    map[uint]bool{},
		ProjectLeadIDs: map[uint]bool{},
		TeamMemberIDs:  map[uint]bool{},
	})

	var notFoundErr *services.NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
}
