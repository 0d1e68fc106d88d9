package kz

import "testing"

func TestParseSteamIDStandard(t *testing.T) {
	id, err := ParseSteamID("STEAM_1:1:161178172")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.U64() != 76561198282622073 {
		t.Errorf("U64() = %d, want 76561198282622073", id.U64())
	}
	if id.U32() != 322356345 {
		t.Errorf("U32() = %d, want 322356345", id.U32())
	}
	if id.X() != 1 || id.Y() != 1 || id.Z() != 161178172 {
		t.Errorf("X/Y/Z = %d/%d/%d, want 1/1/161178172", id.X(), id.Y(), id.Z())
	}
}

func TestParseSteamIDStandardOutOfRange(t *testing.T) {
	_, err := ParseSteamID("STEAM_1:0:9999999999")
	if err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestSteamIDRoundtripStandard(t *testing.T) {
	cases := []string{"STEAM_1:1:161178172", "STEAM_1:0:1"}
	for _, s := range cases {
		id, err := ParseSteamID(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		canonical := id.String()
		id2, err := ParseSteamID(canonical)
		if err != nil {
			t.Fatalf("reparse %q: %v", canonical, err)
		}
		if id2 != id {
			t.Errorf("roundtrip mismatch: %d != %d", id2, id)
		}
	}
}

func TestSteamIDRoundtripCommunity(t *testing.T) {
	id, err := ParseSteamID("STEAM_1:1:161178172")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	community := id.Community()
	id2, err := ParseSteamID(community)
	if err != nil {
		t.Fatalf("reparse community %q: %v", community, err)
	}
	if id2 != id {
		t.Errorf("community roundtrip mismatch: %d != %d", id2, id)
	}
}

func TestParseSteamIDDecimalForms(t *testing.T) {
	id64, err := ParseSteamID("76561198282622073")
	if err != nil {
		t.Fatalf("parse 64-bit: %v", err)
	}
	id32, err := ParseSteamID("322356345")
	if err != nil {
		t.Fatalf("parse 32-bit: %v", err)
	}
	if id64 != id32 {
		t.Errorf("64-bit and 32-bit decimal forms diverge: %d != %d", id64, id32)
	}
}

func TestParseSteamIDZeroRejected(t *testing.T) {
	if _, err := ParseSteamID("STEAM_1:0:0"); err == nil {
		t.Fatal("expected error for zero SteamID")
	}
}

func TestParseSteamIDBracketedCommunity(t *testing.T) {
	id, err := ParseSteamID("[U:1:322356345]")
	if err != nil {
		t.Fatalf("parse bracketed: %v", err)
	}
	if id.U32() != 322356345 {
		t.Errorf("U32() = %d, want 322356345", id.U32())
	}
}

func TestParseSteamIDInconsistentBrackets(t *testing.T) {
	if _, err := ParseSteamID("[U:1:322356345"); err == nil {
		t.Fatal("expected error for inconsistent brackets")
	}
}

func TestParseSteamIDUnrecognized(t *testing.T) {
	if _, err := ParseSteamID("not-a-steamid"); err != ErrUnrecognizedFormat {
		t.Fatalf("expected ErrUnrecognizedFormat, got %v", err)
	}
}
