package kz

import (
	"math"
	"testing"
)

func TestNewPointsRejectsOutOfRange(t *testing.T) {
	cases := []float64{-1, 10_000.1, math.Inf(1)}
	for _, v := range cases {
		if _, err := NewPoints(v); err == nil {
			t.Errorf("NewPoints(%v): expected error", v)
		}
	}
	if _, err := NewPoints(10_000); err != nil {
		t.Errorf("NewPoints(10000): unexpected error %v", err)
	}
}

func TestNewTimeRejectsNonPositive(t *testing.T) {
	for _, v := range []float64{0, -1} {
		if _, err := NewTime(v); err == nil {
			t.Errorf("NewTime(%v): expected error", v)
		}
	}
	if _, err := NewTime(60.5); err != nil {
		t.Errorf("NewTime(60.5): unexpected error %v", err)
	}
}

func TestPermissionsContainsIsSubsetTest(t *testing.T) {
	p := PermissionMaps | PermissionBans
	if !p.Contains(PermissionMaps) {
		t.Error("expected p to contain PermissionMaps")
	}
	if p.Contains(PermissionAdmin) {
		t.Error("expected p to not contain PermissionAdmin")
	}
	if !p.Contains(PermissionMaps | PermissionBans) {
		t.Error("expected p to contain itself")
	}
}

func TestPermissionsStringRoundtrip(t *testing.T) {
	p := PermissionMaps | PermissionServers | PermissionAdmin
	s := p.String()
	got, err := ParsePermissions(s)
	if err != nil {
		t.Fatalf("ParsePermissions(%q): %v", s, err)
	}
	if got != p {
		t.Errorf("roundtrip mismatch: %v != %v", got, p)
	}
}

func TestStylesEmptyMeansUnranked(t *testing.T) {
	var s Styles
	if !s.IsEmpty() {
		t.Error("zero Styles should be empty")
	}
	s = StyleSideways
	if s.IsEmpty() {
		t.Error("non-zero Styles should not be empty")
	}
}

func TestAccessKeyInvalidSentinel(t *testing.T) {
	k, err := NewAccessKey()
	if err != nil {
		t.Fatalf("NewAccessKey: %v", err)
	}
	if !k.IsValid() {
		t.Error("freshly generated key should be valid")
	}
	if InvalidAccessKey().IsValid() {
		t.Error("invalid sentinel should report invalid")
	}
}

func TestAccessKeyStringRoundtrip(t *testing.T) {
	k, err := NewAccessKey()
	if err != nil {
		t.Fatalf("NewAccessKey: %v", err)
	}
	parsed, err := ParseAccessKey(k.String())
	if err != nil {
		t.Fatalf("ParseAccessKey: %v", err)
	}
	if parsed != k {
		t.Errorf("roundtrip mismatch: %v != %v", parsed, k)
	}
}
