package bot

import (
	"errors"
	"fmt"
	"strings"

	"spiceguild/internal/modules/economy"
	"spiceguild/internal/utils"

	"github.com/bwmarrin/discordgo"
)

// userArg resolves a user option, falling back to the caller when it is optional and absent.
func (c *commandContext) userArg(name string) (string, int64, error) {
	userID := c.args.ID(name)
	if userID == "" {
		userID = c.authorID()
	}
	id, err := utils.ParseSnowflake(userID)
	if err != nil {
		return "", 0, &usageError{usage: c.cmd.usage(c.cfg.Prefix), reason: "Invalid user."}
	}
	return userID, id, nil
}

func (c *commandContext) amountArg(name string) (int64, error) {
	amount, ok := c.args.Int(name)
	if !ok {
		return 0, &usageError{usage: c.cmd.usage(c.cfg.Prefix), reason: "Amount must be a whole number."}
	}
	if amount <= 0 {
		return 0, economy.ErrInvalidAmount
	}
	return amount, nil
}

func spice(amount int64) string {
	return utils.FormatNumber(amount) + " Spice"
}

func (b *Bot) handleBalance(c *commandContext) error {
	userID, id, err := c.userArg("user")
	if err != nil {
		return err
	}
	account, err := b.economy.Account(c.ctx, id)
	if err != nil {
		return err
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Balance", Value: spice(account.Balance), Inline: true},
		{Name: "Total earned", Value: spice(account.TotalEarned), Inline: true},
	}
	return c.reply(b.commandEmbed("💰 Spice balance", mention(userID), c.cfg.Notifications.EmbedColors.Info, fields))
}

func (b *Bot) handleLeaderboard(c *commandContext) error {
	accounts, err := b.economy.Leaderboard(c.ctx)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		return c.reply(b.commandEmbed("🏆 Spice leaderboard", "Nobody has any Spice yet.", c.cfg.Notifications.EmbedColors.Info, nil))
	}
	lines := make([]string, 0, len(accounts))
	for i, account := range accounts {
		lines = append(lines, fmt.Sprintf("%s %s · %s", rankLabel(i+1), mention(utils.FormatSnowflake(account.UserID)), spice(account.Balance)))
	}
	return c.reply(b.commandEmbed("🏆 Spice leaderboard", strings.Join(lines, "\n"), c.cfg.Notifications.EmbedColors.Info, nil))
}

func rankLabel(rank int) string {
	switch rank {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return fmt.Sprintf("**%d.**", rank)
	}
}

func (b *Bot) handleGive(c *commandContext) error {
	userID, id, err := c.userArg("user")
	if err != nil {
		return err
	}
	amount, err := c.amountArg("amount")
	if err != nil {
		return err
	}
	actor, _ := utils.ParseSnowflake(c.authorID())
	balance, err := b.economy.Grant(c.ctx, c.guildID, actor, id, amount)
	if err != nil {
		return err
	}
	desc := fmt.Sprintf("%s received **%s**.", mention(userID), spice(amount))
	fields := []*discordgo.MessageEmbedField{{Name: "New balance", Value: spice(balance), Inline: true}}
	return c.reply(b.commandEmbed("✅ Spice granted", desc, c.cfg.Notifications.EmbedColors.Success, fields))
}

func (b *Bot) handleTake(c *commandContext) error {
	userID, id, err := c.userArg("user")
	if err != nil {
		return err
	}
	amount, err := c.amountArg("amount")
	if err != nil {
		return err
	}
	actor, _ := utils.ParseSnowflake(c.authorID())
	balance, err := b.economy.Revoke(c.ctx, c.guildID, actor, id, amount)
	if errors.Is(err, economy.ErrInsufficientFunds) {
		return reject("Insufficient balance", "%s only has %s.", mention(userID), spice(balance))
	}
	if err != nil {
		return err
	}
	desc := fmt.Sprintf("**%s** taken from %s.", spice(amount), mention(userID))
	fields := []*discordgo.MessageEmbedField{{Name: "New balance", Value: spice(balance), Inline: true}}
	return c.reply(b.commandEmbed("✅ Spice removed", desc, c.cfg.Notifications.EmbedColors.Success, fields))
}

func (b *Bot) handleDaily(c *commandContext) error {
	id, err := utils.ParseSnowflake(c.authorID())
	if err != nil {
		return err
	}
	claim, err := b.economy.ClaimDaily(c.ctx, id)
	if errors.Is(err, economy.ErrAlreadyClaimed) {
		wait := claim.NextClaim.Sub(b.economy.Now())
		return reject("Already claimed", "You already claimed today's bonus. Come back in %s.", utils.FormatMinutes(int64(wait.Minutes())+1))
	}
	if err != nil {
		return err
	}
	desc := fmt.Sprintf("You received **%s**.", spice(c.cfg.Economy.DailyAmount))
	fields := []*discordgo.MessageEmbedField{{Name: "Balance", Value: spice(claim.Balance), Inline: true}}
	return c.reply(b.commandEmbed("🎁 Daily bonus", desc, c.cfg.Notifications.EmbedColors.Success, fields))
}
