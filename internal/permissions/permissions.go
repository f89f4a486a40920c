// Package permissions decides which members may run which commands.
package permissions

import (
	"sort"

	"spiceguild/internal/config"
)

// Capability identifiers that are not commands.
const (
	RageLockBypass = "rage_lock_bypass"
)

var (
	adminOnly     = []string{config.RoleAdmin}
	moderators    = []string{config.RoleAdmin, config.RoleModerator}
	raidOrganizer = []string{config.RoleAdmin, config.RoleModerator, config.RoleRaidLeader}
)

// defaults applies when command_permissions has no entry for a command.
var defaults = map[string][]string{
	"setup":            adminOnly,
	"set-temp-trigger": adminOnly,
	"give":             moderators,
	"take":             moderators,
	"event":            moderators,
	"assign-crawler":   moderators,
	"assign-carrier":   moderators,
	"event-edit":       moderators,
	"lock-voice":       moderators,
	"unlock-voice":     moderators,
	"rage-lock":        moderators,
	"unrage-lock":      moderators,
	"move-all":         moderators,
	"reply":            moderators,
	"close":            moderators,
	"force-promote":    moderators,
	"create-raid":      raidOrganizer,
	RageLockBypass:     raidOrganizer,
}

// DefaultRoles returns the built-in role names for command, or nil if it is open to everyone.
func DefaultRoles(command string) []string {
	return append([]string(nil), defaults[command]...)
}

// Restricted lists every command with a built-in requirement, sorted.
func Restricted() []string {
	out := make([]string, 0, len(defaults))
	for command := range defaults {
		out = append(out, command)
	}
	sort.Strings(out)
	return out
}

type Subject struct {
	UserID        string
	RoleIDs       []string
	Owner         bool
	Administrator bool
}

type Decision struct {
	Allowed bool
	// Required holds the role names that would have granted access.
	Required []string
}

type Level int

const (
	LevelNone Level = iota
	LevelRecruit
	LevelMember
	LevelRaidLeader
	LevelModerator
	LevelAdmin
	LevelOwner
)

func (l Level) String() string {
	switch l {
	case LevelRecruit:
		return config.RoleRecruit
	case LevelMember:
		return config.RoleMember
	case LevelRaidLeader:
		return config.RoleRaidLeader
	case LevelModerator:
		return config.RoleModerator
	case LevelAdmin:
		return config.RoleAdmin
	case LevelOwner:
		return "owner"
	default:
		return "none"
	}
}

var hierarchy = []struct {
	role  string
	level Level
}{
	{config.RoleAdmin, LevelAdmin},
	{config.RoleModerator, LevelModerator},
	{config.RoleRaidLeader, LevelRaidLeader},
	{config.RoleMember, LevelMember},
	{config.RoleRecruit, LevelRecruit},
}

type Checker struct {
	cfg *config.Manager
}

func NewChecker(cfg *config.Manager) *Checker {
	return &Checker{cfg: cfg}
}

// Required returns the role names needed for command under the current config.
func (c *Checker) Required(command string) []string {
	return required(c.cfg.Current(), command)
}

func required(cfg config.Config, command string) []string {
	if roles, ok := cfg.CommandPermissions[command]; ok && len(roles) > 0 {
		return append([]string(nil), roles...)
	}
	return DefaultRoles(command)
}

func (c *Checker) Check(subject Subject, command string) Decision {
	cfg := c.cfg.Current()
	roles := required(cfg, command)
	if len(roles) == 0 || subject.Owner || subject.Administrator {
		return Decision{Allowed: true, Required: roles}
	}
	for _, name := range roles {
		if hasRole(cfg, subject, name) {
			return Decision{Allowed: true, Required: roles}
		}
	}
	return Decision{Allowed: false, Required: roles}
}

// Level is the highest rung of the role ladder the subject holds.
func (c *Checker) Level(subject Subject) Level {
	if subject.Owner {
		return LevelOwner
	}
	cfg := c.cfg.Current()
	for _, rung := range hierarchy {
		if hasRole(cfg, subject, rung.role) {
			return rung.level
		}
	}
	if subject.Administrator {
		return LevelAdmin
	}
	return LevelNone
}

func hasRole(cfg config.Config, subject Subject, name string) bool {
	roleID := cfg.RoleID(name)
	if roleID == "" {
		return false
	}
	for _, id := range subject.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}
