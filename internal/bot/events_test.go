package bot

import (
	"testing"

	"spiceguild/internal/modules/registry"
	"spiceguild/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventInfoFieldsKeepEmptyGroups(t *testing.T) {
	regs := []storage.Registration{{ActivityID: "event_1", UserID: 1, DisplayName: "Ayla", Role: string(registry.Attack)}}
	fields := eventInfoFields(registry.GroupRegistrations(eventOrder(), regs))

	require.Len(t, fields, 4)
	assert.Equal(t, registry.Attack.Emoji()+" Attack (1)", fields[0].Name)
	assert.Equal(t, "• Ayla", fields[0].Value)
	assert.Equal(t, registry.Def.Emoji()+" Def (0)", fields[1].Name)
	assert.Equal(t, emptyGroup, fields[1].Value)
	assert.Equal(t, registry.Crawler.Emoji()+" Crawler (0)", fields[2].Name)
	assert.Equal(t, registry.Carrier.Emoji()+" Carrier (0)", fields[3].Name)
	for _, field := range fields {
		assert.NotEmpty(t, field.Value, field.Name)
	}
}

func TestRaidInfoFieldsKeepEmptyGroups(t *testing.T) {
	regs := []storage.Registration{
		{ActivityID: "raid_1", UserID: 1, DisplayName: "Ayla", Role: registry.RaidRoles[1], Notes: "late"},
		{ActivityID: "raid_1", UserID: 2, DisplayName: "Bram", Role: registry.RaidRoles[1]},
	}
	fields := raidInfoFields(registry.GroupRegistrations(registry.RaidRoles, regs))

	require.Len(t, fields, len(registry.RaidRoles))
	assert.Equal(t, registry.RaidRoles[0]+" (0)", fields[0].Name)
	assert.Equal(t, emptyGroup, fields[0].Value)
	assert.Equal(t, registry.RaidRoles[1]+" (2)", fields[1].Name)
	assert.Equal(t, "• Ayla (late)\n• Bram", fields[1].Value)
}
