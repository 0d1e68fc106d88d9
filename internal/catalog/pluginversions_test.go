package catalog

import (
	"context"
	"testing"

	"github.com/cs2kz-org/cs2kz-api/internal/semver"
)

func v(t *testing.T, s string) semver.Version {
	t.Helper()
	ver, err := semver.Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return ver
}

func TestPublishRejectsOlderThanLatest(t *testing.T) {
	d := openTestDB(t)
	pv := NewPluginVersions(d)
	ctx := context.Background()

	if _, err := pv.Publish(ctx, v(t, "1.2.0"), "abc123", nil, nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	_, err := pv.Publish(ctx, v(t, "1.1.0"), "def456", nil, nil)
	if err != ErrPluginVersionTooOld {
		t.Errorf("expected ErrPluginVersionTooOld, got %v", err)
	}
}

func TestPublishRejectsDuplicateGitRevision(t *testing.T) {
	d := openTestDB(t)
	pv := NewPluginVersions(d)
	ctx := context.Background()

	if _, err := pv.Publish(ctx, v(t, "1.0.0"), "same-rev", nil, nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	_, err := pv.Publish(ctx, v(t, "1.1.0"), "same-rev", nil, nil)
	if err != ErrPluginVersionExists {
		t.Errorf("expected ErrPluginVersionExists, got %v", err)
	}
}

func TestChecksumTablesScopedToVersion(t *testing.T) {
	d := openTestDB(t)
	pv := NewPluginVersions(d)
	ctx := context.Background()

	published, err := pv.Publish(ctx, v(t, "1.0.0"), "rev1", []Checksum{{Code: 1, Checksum: 111}}, []Checksum{{Code: 0, Checksum: 222}})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	modes, styles, err := pv.ChecksumTables(ctx, published.ID)
	if err != nil {
		t.Fatalf("ChecksumTables: %v", err)
	}
	if len(modes) != 1 || len(styles) != 1 {
		t.Errorf("expected 1 mode and 1 style checksum, got %d/%d", len(modes), len(styles))
	}
}
