package groups

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Group{}, &GroupMember{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	svc, err := NewService(ServiceConfig{Database: db, Clock: func() time.Time { return time.Unix(1700000000, 0) }})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return svc
}

func TestCreateEnrollsCreatorAsAdmin(t *testing.T) {
	svc := newTestService(t)
	group, err := svc.Create(context.Background(), "user-1", "Morning Crew")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	member, err := svc.Membership(context.Background(), "user-1", group.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if member.Role != RoleAdmin {
		t.Fatalf("creator should be admin, got %s", member.Role)
	}
}

func TestAddMemberRequiresAdmin(t *testing.T) {
	svc := newTestService(t)
	group, err := svc.Create(context.Background(), "user-1", "Morning Crew")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.AddMember(context.Background(), "user-1", group.ID, "user-2", RoleMember); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.AddMember(context.Background(), "user-2", group.ID, "user-3", RoleMember); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if err := svc.AddMember(context.Background(), "user-1", group.ID, "user-2", RoleMember); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("expected ErrAlreadyMember, got %v", err)
	}
}

func TestRemoveMemberSelfLeaveAllowed(t *testing.T) {
	svc := newTestService(t)
	group, err := svc.Create(context.Background(), "user-1", "Morning Crew")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.AddMember(context.Background(), "user-1", group.ID, "user-2", RoleMember); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.RemoveMember(context.Background(), "user-2", group.ID, "user-2"); err != nil {
		t.Fatalf("self-leave should be allowed: %v", err)
	}
	if _, err := svc.Membership(context.Background(), "user-2", group.ID); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember after leave, got %v", err)
	}
}

func TestListReturnsOnlyCallerGroups(t *testing.T) {
	svc := newTestService(t)
	mine, err := svc.Create(context.Background(), "user-1", "Mine")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Create(context.Background(), "user-2", "Theirs"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	groups, err := svc.List(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 1 || groups[0].ID != mine.ID {
		t.Fatalf("unexpected groups: %#v", groups)
	}
}

func TestDeleteOnlyByCreator(t *testing.T) {
	svc := newTestService(t)
	group, err := svc.Create(context.Background(), "user-1", "Morning Crew")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.AddMember(context.Background(), "user-1", group.ID, "user-2", RoleAdmin); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.Delete(context.Background(), "user-2", group.ID); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("non-creator admin must not delete, got %v", err)
	}
	if err := svc.Delete(context.Background(), "user-1", group.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Membership(context.Background(), "user-1", group.ID); !errors.Is(err, ErrNotMember) {
		t.Fatalf("membership rows should be gone, got %v", err)
	}
}

func TestSetIcon(t *testing.T) {
	svc := newTestService(t)
	group, err := svc.Create(context.Background(), "user-1", "Morning Crew")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.SetIcon(context.Background(), "user-1", group.ID, "/media/icon.png"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fetched, err := svc.Get(context.Background(), "user-1", group.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetched.IconURL != "/media/icon.png" {
		t.Fatalf("unexpected icon url %q", fetched.IconURL)
	}
}
