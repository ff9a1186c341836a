package invites

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
)

type Invite struct {
	Code      string
	InviterID snowflake.ID
	Uses      int
	MaxUses   int
}

// Source lists the current invites of a guild.
type Source interface {
	GuildInvites(guildID snowflake.ID) ([]Invite, error)
}

// RestSource reads invites through the Discord REST API. The bot needs the
// Manage Guild permission for it.
type RestSource struct {
	Rest rest.Client
}

// GuildInvites decodes the guild invite endpoint into extended invites
// itself, since rest.Invites drops the use counts.
func (s RestSource) GuildInvites(guildID snowflake.ID) ([]Invite, error) {
	var invites []discord.ExtendedInvite
	if err := s.Rest.Do(rest.GetGuildInvites.Compile(nil, guildID), nil, &invites); err != nil {
		return nil, err
	}
	out := make([]Invite, 0, len(invites))
	for _, inv := range invites {
		out = append(out, fromExtended(inv))
	}
	return out, nil
}

func fromExtended(inv discord.ExtendedInvite) Invite {
	out := Invite{Code: inv.Code, Uses: inv.Uses, MaxUses: inv.MaxUses}
	if inv.Inviter != nil {
		out.InviterID = inv.Inviter.ID
	}
	return out
}

// Tracker remembers how often every invite of a guild was used, so the
// invite behind a join can be found by comparing use counts.
type Tracker struct {
	source Source

	mu     sync.Mutex
	guilds map[snowflake.ID]map[string]Invite
}

func NewTracker(source Source) *Tracker {
	return &Tracker{
		source: source,
		guilds: make(map[snowflake.ID]map[string]Invite),
	}
}

// Snapshot replaces the known invites of a guild with the current ones.
func (t *Tracker) Snapshot(guildID snowflake.ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.refreshLocked(guildID)
	return err
}

func (t *Tracker) refreshLocked(guildID snowflake.ID) (map[string]Invite, error) {
	current, err := t.source.GuildInvites(guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to get invites of guild %s: %w", guildID, err)
	}
	byCode := make(map[string]Invite, len(current))
	for _, inv := range current {
		byCode[inv.Code] = inv
	}
	previous := t.guilds[guildID]
	t.guilds[guildID] = byCode
	return previous, nil
}

// Add records an invite created while the bot is running.
func (t *Tracker) Add(guildID snowflake.ID, inv Invite) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.guilds[guildID] == nil {
		t.guilds[guildID] = make(map[string]Invite)
	}
	t.guilds[guildID][inv.Code] = inv
}

func (t *Tracker) Remove(guildID snowflake.ID, code string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.guilds[guildID], code)
}

// ResolveInviter finds who invited the member that just joined. It returns
// zero when no single invite explains the join, for example when two
// members joined at once or the member came through the vanity URL.
func (t *Tracker) ResolveInviter(guildID snowflake.ID) (snowflake.ID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	previous, err := t.refreshLocked(guildID)
	if err != nil {
		return 0, err
	}
	current := t.guilds[guildID]

	var candidates []Invite
	for code, inv := range current {
		if inv.Uses > previous[code].Uses {
			candidates = append(candidates, inv)
		}
	}
	// a limited invite disappears with its last use
	for code, inv := range previous {
		if _, ok := current[code]; !ok && inv.MaxUses > 0 && inv.Uses+1 >= inv.MaxUses {
			candidates = append(candidates, inv)
		}
	}

	if len(candidates) != 1 {
		slog.Warn("Could not resolve inviter",
			slog.String("type", "event"),
			slog.String("guild_id", guildID.String()),
			slog.Int("candidates", len(candidates)),
		)
		return 0, nil
	}
	return candidates[0].InviterID, nil
}
