package migration

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/disgoorg/snowflake/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var counterFields = map[string]models.CounterField{
	string(models.FieldTotalInvites):   models.FieldTotalInvites,
	string(models.FieldRegularInvites): models.FieldRegularInvites,
	string(models.FieldRegularLeaves):  models.FieldRegularLeaves,
	string(models.FieldFakeInvites):    models.FieldFakeInvites,
	string(models.FieldFakeLeaves):     models.FieldFakeLeaves,
	string(models.FieldRejoins):        models.FieldRejoins,
	string(models.FieldPoints):         models.FieldPoints,
}

func parseID(s string) (snowflake.ID, error) {
	if s == "" {
		return 0, fmt.Errorf("empty id")
	}
	id, err := snowflake.Parse(s)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return id, nil
}

func userID(u *LegacyUser) snowflake.ID {
	if u == nil || u.ID == "" {
		return 0
	}
	id, err := snowflake.Parse(u.ID)
	if err != nil {
		return 0
	}
	return id
}

// convertTime accepts BSON dates, epoch milliseconds and RFC 3339 strings.
func convertTime(v any) *time.Time {
	var t time.Time
	switch x := v.(type) {
	case primitive.DateTime:
		t = x.Time()
	case time.Time:
		t = x
	case int64:
		t = time.UnixMilli(x)
	case int32:
		t = time.UnixMilli(int64(x))
	case float64:
		t = time.UnixMilli(int64(x))
	case string:
		parsed, err := time.Parse(time.RFC3339, x)
		if err != nil {
			return nil
		}
		t = parsed
	default:
		return nil
	}
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	case int:
		return x, true
	}
	return 0, false
}

func ConvertMember(lm LegacyMember) (*models.Member, error) {
	uid, err := parseID(lm.ID)
	if err != nil {
		return nil, fmt.Errorf("member: %w", err)
	}
	gid, err := parseID(lm.GuildID)
	if err != nil {
		return nil, fmt.Errorf("member %s guild: %w", lm.ID, err)
	}

	member := &models.Member{
		UserID:            uid,
		GuildID:           gid,
		InviterID:         userID(lm.Inviter),
		OriginalInviterID: userID(lm.OriginalInviter),
		Fake:              lm.Fake,
		Removed:           lm.Removed,
		RemoveTimestamp:   convertTime(lm.RemoveTimestamp),
		UpdatedAt:         time.Now().UTC(),
	}
	if t := convertTime(lm.InviteTimestamp); t != nil {
		member.InviteTimestamp = *t
	}
	member.OriginalInviteTimestamp = member.InviteTimestamp
	if t := convertTime(lm.OriginalInviteTimestamp); t != nil {
		member.OriginalInviteTimestamp = *t
	}
	// members recorded before originalInviter existed were invited once
	if member.OriginalInviterID == 0 {
		member.OriginalInviterID = member.InviterID
	}
	return member, nil
}

// ConvertCounters flattens a memberCounters document. The "global" key holds
// global counters, every other sub document is a stage keyed by its id.
func ConvertCounters(doc bson.M) ([]*models.MemberCounter, error) {
	idStr, _ := doc["id"].(string)
	guildStr, _ := doc["guildId"].(string)
	uid, err := parseID(idStr)
	if err != nil {
		return nil, fmt.Errorf("counters: %w", err)
	}
	gid, err := parseID(guildStr)
	if err != nil {
		return nil, fmt.Errorf("counters %s guild: %w", idStr, err)
	}

	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := time.Now().UTC()
	var counters []*models.MemberCounter
	for _, key := range keys {
		sub, ok := asDocument(doc[key])
		if !ok {
			continue
		}
		scope, stageID := models.ScopeStage, key
		if key == "global" {
			scope, stageID = models.ScopeGlobal, ""
		}
		names := make([]string, 0, len(sub))
		for name := range sub {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			field, ok := counterFields[name]
			if !ok {
				continue
			}
			value, ok := toInt(sub[name])
			if !ok {
				continue
			}
			counters = append(counters, &models.MemberCounter{
				UserID:    uid,
				GuildID:   gid,
				Scope:     scope,
				StageID:   stageID,
				Field:     field,
				Value:     value,
				UpdatedAt: now,
			})
		}
	}
	return counters, nil
}

func asDocument(v any) (bson.M, bool) {
	switch x := v.(type) {
	case bson.M:
		return x, true
	case map[string]any:
		return bson.M(x), true
	case bson.D:
		return x.Map(), true
	}
	return nil, false
}

func ConvertStage(ls LegacyStage) (*models.Stage, error) {
	if ls.ID == "" {
		return nil, fmt.Errorf("stage without id")
	}
	gid, err := parseID(ls.GuildID)
	if err != nil {
		return nil, fmt.Errorf("stage %s guild: %w", ls.ID, err)
	}

	stage := &models.Stage{
		ID:         ls.ID,
		GuildID:    gid,
		Order:      ls.Order,
		RewardName: ls.RewardName,
		Levels:     models.Levels{},
		Goals:      models.Goals{MemberCount: ls.Goals.MemberCount},
		Active:     ls.Active,
		Started:    ls.Started,
		Ended:      ls.Ended,
		StartedAt:  convertTime(ls.StartedAt),
		EndedAt:    convertTime(ls.EndedAt),
		EndTime:    convertTime(ls.EndTime),
		CreatedAt:  time.Now().UTC(),
	}
	for key, level := range ls.Levels {
		n, err := strconv.Atoi(key)
		if err != nil || n < 1 || n > 5 {
			return nil, fmt.Errorf("stage %s: invalid level %q", ls.ID, key)
		}
		stage.Levels[n] = models.Level{MinPoints: level.MinPoints}
	}

	if stage.Rewards.Pending, err = convertRewards(ls.ID, ls.Rewards.Pending); err != nil {
		return nil, err
	}
	if stage.Rewards.Distributed, err = convertRewards(ls.ID, ls.Rewards.Distributed); err != nil {
		return nil, err
	}
	if stage.Rewards.Unclaimed, err = convertRewards(ls.ID, ls.Rewards.Unclaimed); err != nil {
		return nil, err
	}
	if stage.Rewards.Pending == nil {
		stage.Rewards.Pending = models.RewardsByLevel{}
	}
	return stage, nil
}

func convertRewards(stageID string, in map[string][]LegacyReward) (models.RewardsByLevel, error) {
	if in == nil {
		return nil, nil
	}
	out := make(models.RewardsByLevel, len(in))
	for key, rewards := range in {
		level, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("stage %s: invalid reward level %q", stageID, key)
		}
		list := make([]models.Reward, 0, len(rewards))
		for _, r := range rewards {
			dist, err := models.ParseDistribution(r.Distribution)
			if err != nil {
				return nil, fmt.Errorf("stage %s reward %s: %w", stageID, r.ID, err)
			}
			reward := models.Reward{
				ID:           r.ID,
				Type:         r.Type,
				Distribution: dist,
				Supply:       r.Supply,
			}
			for _, w := range r.Winners {
				id, err := parseID(w)
				if err != nil {
					return nil, fmt.Errorf("stage %s reward %s winner: %w", stageID, r.ID, err)
				}
				reward.Winners = append(reward.Winners, id)
			}
			list = append(list, reward)
		}
		out[level] = list
	}
	return out, nil
}
