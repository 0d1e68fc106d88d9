package semver

import "testing"

func TestParseRoundtrip(t *testing.T) {
	cases := []string{"1.2.3", "0.1.0", "2.0.0-rc.1", "1.0.0+build.5", "1.0.0-beta.2+exp.sha.ab12"}
	for _, s := range cases {
		v, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if got := v.String(); got != s {
			t.Errorf("roundtrip mismatch: Parse(%q).String() = %q", s, got)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, s := range []string{"1.2", "1.2.3.4", "a.b.c", ""} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q): expected error", s)
		}
	}
}

func TestCompareNumeric(t *testing.T) {
	lower := must(t, "1.2.3")
	higher := must(t, "1.3.0")
	if !LessThan(lower, higher) {
		t.Errorf("expected %v < %v", lower, higher)
	}
	if LessThan(higher, lower) {
		t.Errorf("expected %v !< %v", higher, lower)
	}
	if Compare(lower, must(t, "1.2.3")) != 0 {
		t.Error("expected equal versions to compare 0")
	}
}

func TestCompareReleaseOutranksPrerelease(t *testing.T) {
	pre := must(t, "1.0.0-rc.1")
	release := must(t, "1.0.0")
	if !LessThan(pre, release) {
		t.Errorf("expected prerelease %v < release %v", pre, release)
	}
}

func TestComparePrereleaseIdentifiers(t *testing.T) {
	a := must(t, "1.0.0-alpha.1")
	b := must(t, "1.0.0-alpha.2")
	if !LessThan(a, b) {
		t.Errorf("expected %v < %v", a, b)
	}

	numeric := must(t, "1.0.0-alpha.9")
	alnum := must(t, "1.0.0-alpha.beta")
	if !LessThan(numeric, alnum) {
		t.Error("expected numeric identifier to rank below alphanumeric")
	}
}

func TestCompareBuildMetadataIgnored(t *testing.T) {
	a := must(t, "1.0.0+build.1")
	b := must(t, "1.0.0+build.2")
	if Compare(a, b) != 0 {
		t.Error("build metadata must not affect ordering")
	}
}

func must(t *testing.T, s string) Version {
	t.Helper()
	v, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return v
}
