package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/creasury/invitebot/internal/domain/contest"
	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/disgoorg/snowflake/v2"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
)

const defaultCacheSize = 64

// Engine recomputes and serves stage leaderboards.
type Engine struct {
	store contest.Store
	cache *lru.Cache
	group singleflight.Group
	now   func() time.Time
}

func NewEngine(store contest.Store, cacheSize int) *Engine {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, _ := lru.New(cacheSize)
	return &Engine{
		store: store,
		cache: cache,
		now:   time.Now,
	}
}

func cacheKey(stageID string, guildID snowflake.ID) string {
	return guildID.String() + "/" + stageID
}

// Recompute rebuilds the leaderboard of stage from the points of memberIDs
// and persists it. Calls for the same stage that overlap share one
// computation; a caller that joined a computation already in flight runs
// one more so its result reflects everything committed before the call.
func (e *Engine) Recompute(ctx context.Context, stage *models.Stage, memberIDs []snowflake.ID) (*models.StageRanking, error) {
	key := cacheKey(stage.ID, stage.GuildID)
	run := func() (any, error) {
		return e.compute(ctx, stage, memberIDs)
	}

	v, err, shared := e.group.Do(key, run)
	if err == nil && shared {
		v, err, _ = e.group.Do(key, run)
	}
	if err != nil {
		return nil, err
	}
	return v.(*models.StageRanking), nil
}

func (e *Engine) compute(ctx context.Context, stage *models.Stage, memberIDs []snowflake.ID) (*models.StageRanking, error) {
	start := time.Now()

	points, err := e.store.Counters().GetMany(ctx, stage.GuildID, models.StageCounter(stage.ID, models.FieldPoints), memberIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get stage points: %w", err)
	}

	seen := make(map[snowflake.ID]struct{}, len(memberIDs))
	rankings := make([]models.Ranking, 0, len(memberIDs))
	for _, id := range memberIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		rankings = append(rankings, models.Ranking{ID: id, Points: points[id]})
	}

	if err := e.resolveTies(ctx, stage, rankings); err != nil {
		return nil, err
	}
	Sort(rankings)
	AssignLevels(rankings, stage.Levels)
	for i := range rankings {
		rankings[i].Position = i + 1
	}

	ranking := &models.StageRanking{
		StageID:   stage.ID,
		GuildID:   stage.GuildID,
		Rankings:  rankings,
		UpdatedAt: e.now().UTC(),
	}
	if err := e.store.Rankings().Save(ctx, ranking); err != nil {
		return nil, fmt.Errorf("failed to save rankings: %w", err)
	}
	e.cache.Add(cacheKey(stage.ID, stage.GuildID), ranking)

	slog.Debug("Rankings computed",
		slog.String("type", "stage"),
		slog.String("stage_id", stage.ID),
		slog.Int("members", len(rankings)),
		slog.Duration("took", time.Since(start)),
	)
	return ranking, nil
}

// resolveTies attaches tie-break timestamps to every member that shares its
// point total with somebody else. Nobody reaches zero points through a join,
// so zero-point members are left without one.
func (e *Engine) resolveTies(ctx context.Context, stage *models.Stage, rankings []models.Ranking) error {
	count := make(map[int]int)
	for _, r := range rankings {
		count[r.Points]++
	}
	for i := range rankings {
		r := &rankings[i]
		if count[r.Points] < 2 || r.Points <= 0 {
			continue
		}
		ts, err := e.store.Events().LastReachedScore(ctx, stage.GuildID, stage.ID, r.ID, r.Points)
		if err != nil {
			return fmt.Errorf("failed to get tie-break timestamp: %w", err)
		}
		if ts != nil {
			t := ts.UTC()
			r.Timestamp = &t
		}
	}
	return nil
}

// Sort orders rankings by points, then by who reached them first. Members
// without a timestamp come after those with one, and the user id settles
// whatever is left.
func Sort(rankings []models.Ranking) {
	sort.SliceStable(rankings, func(i, j int) bool {
		a, b := rankings[i], rankings[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		switch {
		case a.Timestamp != nil && b.Timestamp != nil:
			if !a.Timestamp.Equal(*b.Timestamp) {
				return a.Timestamp.Before(*b.Timestamp)
			}
		case a.Timestamp != nil:
			return true
		case b.Timestamp != nil:
			return false
		}
		return a.ID < b.ID
	})
}

// L2CutoffIndex is the last index that may hold level 2, or -1 when there
// are too few level 2 candidates to award it at all.
func L2CutoffIndex(rankings []models.Ranking, levels models.Levels) int {
	var l1, l2 int
	for _, r := range rankings {
		if r.Points >= levels.MinPoints(1) {
			l1++
		}
		if r.Points >= levels.MinPoints(2) {
			l2++
		}
	}
	if l2 <= 3 {
		return -1
	}
	return min(2+(l1-3)/3, l2-1)
}

// AssignLevels sets the level of sorted rankings. The top three places are
// reserved for levels 5, 4 and 3.
func AssignLevels(rankings []models.Ranking, levels models.Levels) {
	cutoff := L2CutoffIndex(rankings, levels)
	for i := range rankings {
		p := rankings[i].Points
		switch {
		case i == 0 && p >= levels.MinPoints(5):
			rankings[i].Level = 5
		case i == 1 && p >= levels.MinPoints(4):
			rankings[i].Level = 4
		case i == 2 && p >= levels.MinPoints(3):
			rankings[i].Level = 3
		case i <= cutoff && p >= levels.MinPoints(2):
			rankings[i].Level = 2
		case p >= levels.MinPoints(1):
			rankings[i].Level = 1
		default:
			rankings[i].Level = 0
		}
	}
}

// Rankings returns the persisted leaderboard of a stage, or nil.
func (e *Engine) Rankings(ctx context.Context, stageID string, guildID snowflake.ID) (*models.StageRanking, error) {
	key := cacheKey(stageID, guildID)
	if v, ok := e.cache.Get(key); ok {
		return v.(*models.StageRanking), nil
	}

	ranking, err := e.store.Rankings().Get(ctx, stageID, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to get rankings: %w", err)
	}
	if ranking != nil {
		e.cache.Add(key, ranking)
	}
	return ranking, nil
}

// MemberRanking returns the leaderboard entry of a member, or nil.
func (e *Engine) MemberRanking(ctx context.Context, stageID string, guildID, userID snowflake.ID) (*models.Ranking, error) {
	ranking, err := e.Rankings(ctx, stageID, guildID)
	if err != nil || ranking == nil {
		return nil, err
	}
	entry := ranking.Find(userID)
	if entry == nil {
		return nil, nil
	}
	out := *entry
	return &out, nil
}

// NextLevelPointsDiff returns how many more points a member at level with
// points needs to move up one level. Levels above 1 are capped by rank, so
// the member has to beat the weakest current holder of the next level.
func NextLevelPointsDiff(level, points int, rankings []models.Ranking, levels models.Levels) int {
	if level >= 5 {
		return 0
	}
	next := level + 1
	target := levels.MinPoints(next)
	if next > 1 {
		weakest := -1
		for _, r := range rankings {
			if r.Level == next && (weakest < 0 || r.Points < weakest) {
				weakest = r.Points
			}
		}
		if weakest >= 0 {
			target = max(target, weakest+1)
		}
	}
	return max(target-points, 1)
}
