package discord

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

// PermissionChecker gates control commands (join, leave) behind a guild
// role. An empty role ID disables the gate.
type PermissionChecker struct {
	controlRoleID string
}

// NewPermissionChecker creates a checker for the given control role ID.
func NewPermissionChecker(controlRoleID string) *PermissionChecker {
	return &PermissionChecker{controlRoleID: controlRoleID}
}

// CanControl reports whether the interaction's member may run control
// commands. Interactions without member data (DMs) are always denied when
// a role is configured.
func (p *PermissionChecker) CanControl(i *discordgo.InteractionCreate) bool {
	if p.controlRoleID == "" {
		return true
	}
	if i.Member == nil {
		return false
	}
	return slices.Contains(i.Member.Roles, p.controlRoleID)
}
