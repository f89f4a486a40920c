// Package registry holds the sign-up rules for events and raids on top of the ledger store.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"spiceguild/internal/clock"
	"spiceguild/internal/storage"

	"github.com/oklog/ulid/v2"
)

var (
	ErrUnknownEvent      = errors.New("unknown event")
	ErrUnknownReaction   = errors.New("reaction is not a sign-up role")
	ErrPrivilegedRole    = errors.New("role can only be assigned by a moderator")
	ErrNotAssignable     = errors.New("role is not assigned by moderators")
	ErrAlreadyRegistered = errors.New("already registered")
	ErrInvalidRoleIndex  = errors.New("invalid role number")
	ErrMissingActivity   = errors.New("activity id is required")
)

type EventRole string

const (
	Attack  EventRole = "Attack"
	Def     EventRole = "Def"
	Crawler EventRole = "Crawler"
	Carrier EventRole = "Carrier"
)

// EventRoles is the display order of event role groups.
var EventRoles = []EventRole{Attack, Def, Crawler, Carrier}

var eventEmoji = map[EventRole]string{
	Attack:  "🗡️",
	Def:     "🛡️",
	Crawler: "⛏️",
	Carrier: "📦",
}

func (r EventRole) Emoji() string {
	return eventEmoji[r]
}

// Privileged roles are never claimable by reaction.
func (r EventRole) Privileged() bool {
	return r == Crawler || r == Carrier
}

// ReactionRoles are the roles that get a reaction button on the event post.
func ReactionRoles() []EventRole {
	return []EventRole{Attack, Def}
}

// EventRoleForEmoji resolves a reaction emoji, with or without the variation selector.
func EventRoleForEmoji(name string) (EventRole, bool) {
	name = stripVariation(name)
	for _, role := range EventRoles {
		if stripVariation(role.Emoji()) == name {
			return role, true
		}
	}
	return "", false
}

func ParseEventRole(value string) (EventRole, bool) {
	for _, role := range EventRoles {
		if strings.EqualFold(strings.TrimSpace(value), string(role)) {
			return role, true
		}
	}
	return "", false
}

func stripVariation(value string) string {
	return strings.ReplaceAll(value, "\ufe0f", "")
}

// RaidRoles is the fixed list raid sign-ups pick from by 1-based number.
var RaidRoles = []string{
	"🗡️ DPS (Damage Dealer)",
	"🛡️ Tank",
	"❤️ Healer/Support",
	"🎯 Sniper",
	"🔧 Engineer",
	"👥 Flex (Any)",
}

// RaidRole maps a 1-based number to a raid role label.
func RaidRole(number int) (string, error) {
	if number < 1 || number > len(RaidRoles) {
		return "", fmt.Errorf("%w: %d (choose 1-%d)", ErrInvalidRoleIndex, number, len(RaidRoles))
	}
	return RaidRoles[number-1], nil
}

func NewEventID(now time.Time) string {
	return "event_" + strings.ToLower(ulid.MustNewDefault(now).String())
}

func NewRaidID(now time.Time) string {
	return "raid_" + strings.ToLower(ulid.MustNewDefault(now).String())
}

type Registry struct {
	store *storage.Store
	clock clock.Clock
}

func New(store *storage.Store) *Registry {
	return &Registry{store: store, clock: clock.Real()}
}

func (r *Registry) WithClock(c clock.Clock) {
	r.clock = c
}

func (r *Registry) Now() time.Time {
	return r.clock.Now()
}

func (r *Registry) CreateEvent(ctx context.Context, event storage.Event) error {
	if event.ID == "" {
		return ErrMissingActivity
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.clock.Now()
	}
	return r.store.CreateEvent(ctx, event)
}

// Reaction is the outcome of a reaction on an event post.
type Reaction struct {
	Event storage.Event
	Role  EventRole
	// Existing is set on ErrAlreadyRegistered.
	Existing *storage.Registration
}

// RegisterByReaction handles a reaction on messageID. Reactions on other messages return ErrUnknownEvent.
func (r *Registry) RegisterByReaction(ctx context.Context, messageID, userID int64, displayName, emoji string) (Reaction, error) {
	event, ok, err := r.store.FindEventByMessage(ctx, messageID)
	if err != nil {
		return Reaction{}, err
	}
	if !ok {
		return Reaction{}, ErrUnknownEvent
	}
	out := Reaction{Event: event}
	role, ok := EventRoleForEmoji(emoji)
	if !ok {
		return out, ErrUnknownReaction
	}
	out.Role = role
	if role.Privileged() {
		return out, ErrPrivilegedRole
	}
	existing, err := r.register(ctx, event.ID, userID, displayName, role)
	out.Existing = existing
	return out, err
}

// Assign grants a privileged role to userID on behalf of a moderator.
func (r *Registry) Assign(ctx context.Context, eventID string, userID int64, displayName string, role EventRole) (*storage.Registration, error) {
	if !role.Privileged() {
		return nil, ErrNotAssignable
	}
	_, ok, err := r.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownEvent
	}
	return r.register(ctx, eventID, userID, displayName, role)
}

func (r *Registry) register(ctx context.Context, eventID string, userID int64, displayName string, role EventRole) (*storage.Registration, error) {
	inserted, err := r.store.RegisterEventRole(ctx, eventID, userID, displayName, string(role), r.clock.Now())
	if err != nil {
		return nil, err
	}
	if inserted {
		return nil, nil
	}
	existing, found, err := r.store.GetEventRegistration(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrAlreadyRegistered
	}
	return &existing, ErrAlreadyRegistered
}

// SignupRaid registers userID under the role numbered roleNumber and returns the role label.
func (r *Registry) SignupRaid(ctx context.Context, raidID string, userID int64, displayName string, roleNumber int, notes string) (string, error) {
	raidID = strings.TrimSpace(raidID)
	if raidID == "" {
		return "", ErrMissingActivity
	}
	role, err := RaidRole(roleNumber)
	if err != nil {
		return "", err
	}
	inserted, err := r.store.RegisterRaidRole(ctx, raidID, userID, displayName, role, strings.TrimSpace(notes), r.clock.Now())
	if err != nil {
		return "", err
	}
	if !inserted {
		return role, ErrAlreadyRegistered
	}
	return role, nil
}

// Group is one role section of a sign-up summary.
type Group struct {
	Role    string
	Entries []storage.Registration
}

// GroupRegistrations buckets regs by role. Every role in order gets a group, even when empty;
// roles outside order are appended in first-seen order. Entry order is preserved.
func GroupRegistrations(order []string, regs []storage.Registration) []Group {
	groups := make([]Group, 0, len(order))
	index := make(map[string]int, len(order))
	for _, role := range order {
		index[role] = len(groups)
		groups = append(groups, Group{Role: role})
	}
	for _, reg := range regs {
		i, ok := index[reg.Role]
		if !ok {
			i = len(groups)
			index[reg.Role] = i
			groups = append(groups, Group{Role: reg.Role})
		}
		groups[i].Entries = append(groups[i].Entries, reg)
	}
	return groups
}

type EventSummary struct {
	Event  storage.Event
	Groups []Group
	Total  int
}

func (r *Registry) EventSummary(ctx context.Context, eventID string) (EventSummary, error) {
	event, ok, err := r.store.GetEvent(ctx, eventID)
	if err != nil {
		return EventSummary{}, err
	}
	if !ok {
		return EventSummary{}, ErrUnknownEvent
	}
	regs, err := r.store.ListEventRegistrations(ctx, eventID)
	if err != nil {
		return EventSummary{}, err
	}
	order := make([]string, 0, len(EventRoles))
	for _, role := range EventRoles {
		order = append(order, string(role))
	}
	return EventSummary{Event: event, Groups: GroupRegistrations(order, regs), Total: len(regs)}, nil
}

type RaidSummary struct {
	RaidID string
	Groups []Group
	Total  int
}

// RaidSummary lists sign-ups for raidID. An unknown raid is simply empty.
func (r *Registry) RaidSummary(ctx context.Context, raidID string) (RaidSummary, error) {
	regs, err := r.store.ListRaidRegistrations(ctx, raidID)
	if err != nil {
		return RaidSummary{}, err
	}
	return RaidSummary{RaidID: raidID, Groups: GroupRegistrations(RaidRoles, regs), Total: len(regs)}, nil
}
