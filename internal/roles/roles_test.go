package roles

import (
	"testing"

	"github.com/vatefs/efsd/pkg/logger"
)

func ctrl(callsign string) Controller {
	return Controller{Callsign: callsign, IsController: true}
}

func TestRoleFromCallsign(t *testing.T) {
	tests := []struct {
		callsign string
		want     Role
	}{
		{"ESSA_TWR", RoleTower},
		{"ESSA_2_GND", RoleGround},
		{"ESOS_CTR", RoleCenter},
		{"ESSA_DEL", RoleDelivery},
		{"PILOT123", ""},
	}
	for _, tt := range tests {
		if got := ctrl(tt.callsign).Role(); got != tt.want {
			t.Errorf("Role(%q) = %q, want %q", tt.callsign, got, tt.want)
		}
	}
}

func TestResolveAloneCoversEverythingBelow(t *testing.T) {
	r := NewResolver([]string{"ESSA"}, logger.Nop())
	cov := r.Resolve(ctrl("ESSA_TWR"), nil)

	want := []Role{RoleDelivery, RoleGround, RoleTower}
	got := cov["ESSA"]
	if len(got) != len(want) {
		t.Fatalf("coverage = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("coverage = %v, want %v", got, want)
		}
	}
}

func TestResolveJuniorOnlineRaisesFloor(t *testing.T) {
	r := NewResolver([]string{"ESSA"}, logger.Nop())
	cov := r.Resolve(ctrl("ESSA_TWR"), []Controller{ctrl("ESSA_GND")})

	got := cov["ESSA"]
	if len(got) != 1 || got[0] != RoleTower {
		t.Errorf("coverage with GND online = %v, want [TWR]", got)
	}

	cov = r.Resolve(ctrl("ESSA_APP"), []Controller{ctrl("ESSA_DEL")})
	got = cov["ESSA"]
	want := []Role{RoleGround, RoleTower, RoleApproach}
	if len(got) != len(want) {
		t.Fatalf("coverage with DEL online = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("coverage with DEL online = %v, want %v", got, want)
		}
	}
}

func TestResolveSeniorDoesNotShrinkFromAbove(t *testing.T) {
	r := NewResolver([]string{"ESSA"}, logger.Nop())
	cov := r.Resolve(ctrl("ESSA_TWR"), []Controller{ctrl("ESSA_APP")})

	want := []Role{RoleDelivery, RoleGround, RoleTower}
	got := cov["ESSA"]
	if len(got) != len(want) {
		t.Fatalf("coverage with APP online = %v, want %v", got, want)
	}
}

func TestResolveOtherAirportIgnored(t *testing.T) {
	r := NewResolver([]string{"ESSA"}, logger.Nop())
	cov := r.Resolve(ctrl("ESSA_TWR"), []Controller{ctrl("ESGG_GND")})

	if len(cov["ESSA"]) != 3 {
		t.Errorf("ESGG ground must not affect ESSA coverage, got %v", cov["ESSA"])
	}
}

func TestResolveCenterMatchesByCountryPrefix(t *testing.T) {
	r := NewResolver([]string{"ESSA"}, logger.Nop())
	cov := r.Resolve(ctrl("ESOS_CTR"), []Controller{ctrl("ESSA_TWR")})

	got := cov["ESSA"]
	want := []Role{RoleApproach, RoleCenter}
	if len(got) != len(want) {
		t.Fatalf("center coverage above online TWR = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("center coverage above online TWR = %v, want %v", got, want)
		}
	}
}

func TestResolveObserverCoversNothing(t *testing.T) {
	r := NewResolver([]string{"ESSA"}, logger.Nop())
	cov := r.Resolve(Controller{Callsign: "ESSA_OBS"}, nil)
	if len(cov) != 0 {
		t.Errorf("observer coverage = %v, want empty", cov)
	}
}

func TestCoverageEqual(t *testing.T) {
	a := Coverage{"ESSA": {RoleGround, RoleTower}}
	b := Coverage{"ESSA": {RoleGround, RoleTower}}
	c := Coverage{"ESSA": {RoleTower}}

	if !a.Equal(b) {
		t.Error("identical coverage reported unequal")
	}
	if a.Equal(c) {
		t.Error("different coverage reported equal")
	}
	if a.Equal(nil) {
		t.Error("coverage equal to nil")
	}
}

func TestCovers(t *testing.T) {
	cov := Coverage{"ESSA": {RoleDelivery, RoleGround}}
	if !cov.Covers("ESSA", RoleGround) {
		t.Error("Covers(ESSA, GND) = false")
	}
	if cov.Covers("ESSA", RoleTower) {
		t.Error("Covers(ESSA, TWR) = true")
	}
	if cov.Covers("ESGG", RoleGround) {
		t.Error("Covers(ESGG, GND) = true")
	}
}
