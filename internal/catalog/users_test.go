package catalog

import (
	"context"
	"testing"

	"github.com/cs2kz-org/cs2kz-api/internal/kz"
)

func TestEnsureUserIsIdempotent(t *testing.T) {
	d := openTestDB(t)
	users := NewUsers(d)
	ctx := context.Background()
	id := kz.UserID(76561198282622073)

	if err := users.EnsureUser(ctx, id); err != nil {
		t.Fatalf("first EnsureUser: %v", err)
	}
	if err := users.SetPermissions(ctx, id, kz.PermissionMaps|kz.PermissionBans); err != nil {
		t.Fatalf("SetPermissions: %v", err)
	}
	if err := users.EnsureUser(ctx, id); err != nil {
		t.Fatalf("second EnsureUser: %v", err)
	}

	perms, err := users.GetPermissions(ctx, id)
	if err != nil {
		t.Fatalf("GetPermissions: %v", err)
	}
	if !perms.Contains(kz.PermissionMaps | kz.PermissionBans) {
		t.Errorf("expected permissions to survive a repeat EnsureUser, got %v", perms)
	}
}

func TestGetPermissionsDefaultsToZeroForUnknownUser(t *testing.T) {
	d := openTestDB(t)
	users := NewUsers(d)
	perms, err := users.GetPermissions(context.Background(), kz.UserID(1))
	if err != nil {
		t.Fatalf("GetPermissions: %v", err)
	}
	if perms != 0 {
		t.Errorf("expected zero permissions, got %v", perms)
	}
}
