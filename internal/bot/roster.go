package bot

import (
	"context"
	"errors"
	"fmt"

	"spiceguild/internal/config"
	"spiceguild/internal/modules/promotion"
	"spiceguild/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const memberPageSize = 1000

var _ promotion.Roster = (*Bot)(nil)

func (b *Bot) Guilds() []string {
	cfg := b.cfg.Current()
	if cfg.GuildID != "" {
		return []string{cfg.GuildID}
	}
	b.session.State.RLock()
	defer b.session.State.RUnlock()
	out := make([]string, 0, len(b.session.State.Guilds))
	for _, guild := range b.session.State.Guilds {
		if guild != nil {
			out = append(out, guild.ID)
		}
	}
	return out
}

func (b *Bot) RoleExists(guildID, roleID string) bool {
	role, err := b.session.State.Role(guildID, roleID)
	return err == nil && role != nil
}

// MembersWithRole pages through the member list over REST, so it sees members the gateway cache missed.
func (b *Bot) MembersWithRole(ctx context.Context, guildID, roleID string) ([]promotion.Candidate, error) {
	var out []promotion.Candidate
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		members, err := b.session.GuildMembers(guildID, after, memberPageSize)
		if err != nil {
			return nil, fmt.Errorf("list members: %w", err)
		}
		for _, member := range members {
			if member.User == nil || member.User.Bot || !hasRoleID(member.Roles, roleID) {
				continue
			}
			out = append(out, promotion.Candidate{
				GuildID:     guildID,
				UserID:      member.User.ID,
				DisplayName: displayName(member, nil),
				RoleIDs:     member.Roles,
			})
		}
		if len(members) < memberPageSize {
			return out, nil
		}
		after = members[len(members)-1].User.ID
	}
}

func hasRoleID(roles []string, roleID string) bool {
	for _, id := range roles {
		if id == roleID {
			return true
		}
	}
	return false
}

// SwapRoles grants addRoleID before revoking removeRoleID so a failure never leaves the member with neither.
func (b *Bot) SwapRoles(ctx context.Context, guildID, userID, removeRoleID, addRoleID string) error {
	err := swapRoles(
		func() error { return b.session.GuildMemberRoleAdd(guildID, userID, addRoleID) },
		func() error { return b.session.GuildMemberRoleRemove(guildID, userID, removeRoleID) },
	)
	var partial *partialSwapError
	if errors.As(err, &partial) {
		b.logger.Error("role swap half applied",
			zap.String("guild_id", guildID),
			zap.String("user_id", userID),
			zap.String("added_role_id", addRoleID),
			zap.String("kept_role_id", removeRoleID),
			zap.Error(partial.err))
	}
	return err
}

type partialSwapError struct {
	err error
}

func (e *partialSwapError) Error() string { return "remove role after add: " + e.err.Error() }

func (e *partialSwapError) Unwrap() error { return e.err }

func swapRoles(add, remove func() error) error {
	if err := add(); err != nil {
		return fmt.Errorf("add role: %w", err)
	}
	if err := remove(); err != nil {
		return &partialSwapError{err: err}
	}
	return nil
}

// NotifyPromotion congratulates by DM, falling back to the guild system channel.
func (b *Bot) NotifyPromotion(ctx context.Context, candidate promotion.Candidate, minutes, bonus int64) error {
	cfg := b.cfg.Current()
	embed := b.promotionEmbed(cfg, candidate, minutes, bonus)
	err := b.warnUser(candidate.UserID, embed)
	if err == nil {
		return nil
	}
	b.logger.Debug("promotion DM failed", zap.String("user_id", candidate.UserID), zap.Error(err))

	guild, gerr := b.session.State.Guild(candidate.GuildID)
	if gerr != nil || guild == nil || guild.SystemChannelID == "" {
		return err
	}
	_, err = b.session.ChannelMessageSendComplex(guild.SystemChannelID, &discordgo.MessageSend{
		Content: mention(candidate.UserID),
		Embeds:  []*discordgo.MessageEmbed{embed},
	})
	return err
}

func (b *Bot) promotionEmbed(cfg config.Config, candidate promotion.Candidate, minutes, bonus int64) *discordgo.MessageEmbed {
	desc := fmt.Sprintf("Congratulations %s, you are now a **member**!", candidate.DisplayName)
	fields := []*discordgo.MessageEmbedField{
		{Name: "Voice time", Value: utils.FormatMinutes(minutes), Inline: true},
		{Name: "Bonus", Value: spice(bonus), Inline: true},
	}
	return b.commandEmbed("🎉 Promotion", desc, cfg.Notifications.EmbedColors.Success, fields)
}
