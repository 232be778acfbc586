package training

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
	if err := db.AutoMigrate(&TrainingLog{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	svc, err := NewService(ServiceConfig{Database: db, Clock: func() time.Time { return time.Unix(1700000000, 0) }})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return svc
}

func TestCreateTrainingLog(t *testing.T) {
	svc := newTestService(t)
	created, err := svc.Create(context.Background(), "user-1", Input{
		Date:           "2026-08-20",
		StartTime:      "19:00",
		EndTime:        "20:30",
		Condition:      4,
		SparringRounds: 6,
		Content:        "worked on knee slice entries",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.DurationMinutes() != 90 {
		t.Fatalf("expected 90 minutes, got %d", created.DurationMinutes())
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	svc := newTestService(t)
	cases := []struct {
		name  string
		input Input
		want  error
	}{
		{"bad date", Input{Date: "20-08-2026", Condition: 3}, ErrInvalidDate},
		{"zero condition", Input{Date: "2026-08-20", Condition: 0}, ErrInvalidCondition},
		{"condition too high", Input{Date: "2026-08-20", Condition: 6}, ErrInvalidCondition},
		{"inverted range", Input{Date: "2026-08-20", Condition: 3, StartTime: "20:00", EndTime: "19:00"}, ErrInvalidTimeRange},
		{"too many videos", Input{Date: "2026-08-20", Condition: 3, VideoRefs: make([]string, 11)}, ErrTooManyVideos},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), "user-1", tc.input); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestListByDateRange(t *testing.T) {
	svc := newTestService(t)
	dates := []string{"2026-08-01", "2026-08-10", "2026-08-20"}
	for _, date := range dates {
		if _, err := svc.Create(context.Background(), "user-1", Input{Date: date, Condition: 3}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	items, err := svc.List(context.Background(), "user-1", "2026-08-05", "2026-08-15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].Date != "2026-08-10" {
		t.Fatalf("unexpected range result: %#v", items)
	}

	all, err := svc.List(context.Background(), "user-1", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 logs, got %d", len(all))
	}
	if all[0].Date != "2026-08-20" {
		t.Fatalf("expected newest first, got %s", all[0].Date)
	}
}

func TestUpdateEnforcesBaseVersion(t *testing.T) {
	svc := newTestService(t)
	created, err := svc.Create(context.Background(), "user-1", Input{Date: "2026-08-20", Condition: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := svc.Update(context.Background(), "user-1", created.ID, Input{
		Date:        "2026-08-20",
		Condition:   5,
		BaseVersion: created.Version,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Condition != 5 {
		t.Fatalf("expected condition 5, got %d", updated.Condition)
	}

	if _, err := svc.Update(context.Background(), "user-1", created.ID, Input{
		Date:        "2026-08-20",
		Condition:   2,
		BaseVersion: created.Version,
	}); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestUpdatePersistsMultipleVideoRefs(t *testing.T) {
	svc := newTestService(t)
	created, err := svc.Create(context.Background(), "user-1", Input{Date: "2026-08-20", Condition: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := svc.Update(context.Background(), "user-1", created.ID, Input{
		Date:        "2026-08-20",
		Condition:   3,
		VideoRefs:   []string{"/media/round1.mp4", "/media/round2.mp4"},
		BaseVersion: created.Version,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(updated.VideoRefs) != 2 || updated.VideoRefs[1] != "/media/round2.mp4" {
		t.Fatalf("unexpected refs after update: %#v", updated.VideoRefs)
	}

	fetched, err := svc.Get(context.Background(), "user-1", created.ID)
	if err != nil {
		t.Fatalf("video_refs column must stay decodable: %v", err)
	}
	if len(fetched.VideoRefs) != 2 {
		t.Fatalf("unexpected persisted refs: %#v", fetched.VideoRefs)
	}
}

func TestDeleteScopedByOwner(t *testing.T) {
	svc := newTestService(t)
	created, err := svc.Create(context.Background(), "user-1", Input{Date: "2026-08-20", Condition: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Delete(context.Background(), "user-2", created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign delete, got %v", err)
	}
	if err := svc.Delete(context.Background(), "user-1", created.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
