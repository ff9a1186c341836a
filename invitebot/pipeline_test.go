package invitebot

import (
	"context"
	"testing"
	"time"

	"github.com/creasury/invitebot/internal/domain/contest"
	"github.com/creasury/invitebot/internal/domain/mock"
	"github.com/creasury/invitebot/internal/domain/ranking"
	"github.com/creasury/invitebot/internal/domain/stages"
	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	pipelineGuild = snowflake.ID(1)
	firstStage    = "Stage 1"
	secondStage   = "Stage 2"
)

type fakeMembers struct {
	ids   []snowflake.ID
	count int
}

func (f fakeMembers) RankedMemberIDs(snowflake.ID) []snowflake.ID { return f.ids }
func (f fakeMembers) MemberCount(snowflake.ID) int                { return f.count }

type fakeArchive struct {
	stage   *models.Stage
	ranking *models.StageRanking
}

func (f *fakeArchive) ArchiveRanking(_ context.Context, stage *models.Stage, ranking *models.StageRanking) (string, error) {
	f.stage, f.ranking = stage, ranking
	return "key", nil
}

func setupPipeline(t *testing.T, members fakeMembers) (*mock.Store, *stages.Controller, *mock.MockNotifier, *Pipeline, *models.Stage) {
	t.Helper()
	ctx := context.Background()
	store := mock.NewStore()
	for i, id := range []string{firstStage, secondStage} {
		require.NoError(t, store.Stages().Define(ctx, &models.Stage{
			ID:      id,
			GuildID: pipelineGuild,
			Order:   i,
			Levels:  models.Levels{1: {MinPoints: 1}, 2: {MinPoints: 2}},
			Goals:   models.Goals{MemberCount: 3},
		}))
	}

	clk := time.Date(2022, 1, 1, 9, 0, 0, 0, time.UTC)
	controller := stages.NewController(store, time.Hour).WithClock(func() time.Time { return clk })
	t.Cleanup(controller.Stop)
	stage, err := controller.StartStage(ctx, firstStage, pipelineGuild)
	require.NoError(t, err)

	for id, points := range map[snowflake.ID]int{10: 3, 11: 1} {
		_, err := store.Counters().Increment(ctx, id, pipelineGuild, models.StageCounter(firstStage, models.FieldPoints), points)
		require.NoError(t, err)
	}

	notifier := mock.NewMockNotifier(gomock.NewController(t))
	p := NewPipeline(notifier, ranking.NewEngine(store, 8), controller, members)
	return store, controller, notifier, p, stage
}

func TestPipeline_OnProcessedJoin(t *testing.T) {
	store, controller, notifier, p, stage := setupPipeline(t, fakeMembers{ids: []snowflake.ID{10, 11, 12}, count: 3})
	ctx := context.Background()

	gomock.InOrder(
		notifier.EXPECT().Log(pipelineGuild, "Global counter totalInvites of <@10> updated to 4"),
		notifier.EXPECT().Invite(pipelineGuild, "<@12> has joined the Creasury community!"),
		notifier.EXPECT().Invite(pipelineGuild, gomock.Any()),
		notifier.EXPECT().Log(pipelineGuild, gomock.Any()),
	)

	p.OnProcessed(ctx, &models.MembershipEvent{GuildID: pipelineGuild, Type: models.EventJoin, UserID: 12}, &contest.Outcome{
		Stage:    stage,
		Message:  "<@12> has joined the Creasury community!",
		LogLines: []string{"Global counter totalInvites of <@10> updated to 4"},
	})

	saved, err := store.Rankings().Get(ctx, firstStage, pipelineGuild)
	require.NoError(t, err)
	require.NotNil(t, saved)
	require.NotNil(t, saved.Find(10))
	assert.Equal(t, 1, saved.Find(10).Position)
	assert.True(t, controller.Armed(pipelineGuild))
}

func TestPipeline_OnProcessedLeaveSkipsGoal(t *testing.T) {
	_, controller, notifier, p, stage := setupPipeline(t, fakeMembers{ids: []snowflake.ID{10, 11}, count: 5})

	notifier.EXPECT().Invite(pipelineGuild, "<@12> has left the Creasury community.")
	p.OnProcessed(context.Background(), &models.MembershipEvent{GuildID: pipelineGuild, Type: models.EventLeave, UserID: 12}, &contest.Outcome{
		Stage:   stage,
		Message: "<@12> has left the Creasury community.",
	})
	assert.False(t, controller.Armed(pipelineGuild))
}

func TestPipeline_OnProcessedWithoutStage(t *testing.T) {
	store, _, notifier, p, _ := setupPipeline(t, fakeMembers{count: 5})

	notifier.EXPECT().Log(pipelineGuild, "No active stage found, won't award any stage points.")
	p.OnProcessed(context.Background(), &models.MembershipEvent{GuildID: pipelineGuild, Type: models.EventJoin}, &contest.Outcome{
		LogLines: []string{"No active stage found, won't award any stage points."},
	})

	saved, err := store.Rankings().Get(context.Background(), firstStage, pipelineGuild)
	require.NoError(t, err)
	assert.Nil(t, saved)
}

func TestPipeline_OnSwitchArchivesFinalRanking(t *testing.T) {
	_, controller, notifier, p, stage := setupPipeline(t, fakeMembers{ids: []snowflake.ID{10, 11}, count: 2})
	archive := &fakeArchive{}
	p.WithArchive(archive)

	notifier.EXPECT().Invite(pipelineGuild, gomock.Any())
	notifier.EXPECT().Log(pipelineGuild, "Ended stage **Stage 1**, started stage **Stage 2**")

	next, err := controller.SwitchStage(context.Background(), stage)
	require.NoError(t, err)
	require.NotNil(t, next)

	require.NotNil(t, archive.stage)
	assert.Equal(t, firstStage, archive.stage.ID)
	assert.True(t, archive.stage.Ended)
	require.NotNil(t, archive.ranking)
	assert.Len(t, archive.ranking.Rankings, 2)
}
