package unit

import "testing"

func TestRoleHasPerm(t *testing.T) {
	tests := []struct {
		name string
		role string
		perm string
		want bool
	}{
		{name: "head manages unit", role: RoleLeaderHead, perm: PermManageUnit, want: true},
		{name: "head sends announcements", role: RoleLeaderHead, perm: PermSendAnnouncements, want: true},
		{name: "leader cannot manage unit", role: RoleLeader, perm: PermManageUnit, want: false},
		{name: "leader imports census", role: RoleLeader, perm: PermImportCensus, want: true},
		{name: "helper manages meetings", role: RoleHelper, perm: PermManageMeetings, want: true},
		{name: "helper cannot manage members", role: RoleHelper, perm: PermManageMembers, want: false},
		{name: "guardian views unit", role: RoleGuardian, perm: PermViewUnit, want: true},
		{name: "guardian cannot send announcements", role: RoleGuardian, perm: PermSendAnnouncements, want: false},
		{name: "unknown role variant falls back to group", role: "leader:assistant", perm: PermImportCensus, want: true},
		{name: "unknown role", role: "wizard:", perm: PermViewUnit, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RoleHasPerm(tt.role, tt.perm); got != tt.want {
				t.Errorf("RoleHasPerm(%q, %q) = %v; want %v", tt.role, tt.perm, got, tt.want)
			}
		})
	}
}

func TestRolePriority(t *testing.T) {
	if RolePriority(RoleLeaderHead) <= RolePriority(RoleLeader) {
		t.Error("head leader must outrank leader")
	}
	if RolePriority(RoleLeader) <= RolePriority(RoleHelper) {
		t.Error("leader must outrank helper")
	}
	if RolePriority(RoleHelper) <= RolePriority(RoleGuardian) {
		t.Error("helper must outrank guardian")
	}
}
