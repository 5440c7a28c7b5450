package repositories

import (
	"context"
	"errors"
	"testing"

	"ontohub/internal/platform/models"
)

func TestPackageRepository_VersionsAndActivation(t *testing.T) {
	repo := NewPackageRepository(setupTestDB(t))
	ctx := context.Background()

	v1 := &models.Package{Code: "eco", Name: "Ecology"}
	v2 := &models.Package{Code: "eco", Name: "Ecology", SourcePath: "/tmp/eco-2.zip"}
	for _, p := range []*models.Package{v1, v2} {
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	if v1.Version != 1 || v2.Version != 2 {
		t.Fatalf("Expected versions 1 and 2, got %d and %d", v1.Version, v2.Version)
	}

	if err := repo.SetActive(ctx, "eco", v1.ID); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	if err := repo.SetActive(ctx, "eco", v2.ID); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	list, err := repo.ListByCode(ctx, "eco")
	if err != nil {
		t.Fatalf("ListByCode failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != v2.ID {
		t.Fatalf("Expected newest version first, got %+v", list)
	}
	if !list[0].IsActive || list[1].IsActive {
		t.Errorf("Expected only v2 active, got v2=%v v1=%v", list[0].IsActive, list[1].IsActive)
	}
	if list[0].SourcePath != "/tmp/eco-2.zip" {
		t.Errorf("Expected source path to round-trip, got %q", list[0].SourcePath)
	}

	if err := repo.SetActive(ctx, "bio", v1.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for mismatched code, got %v", err)
	}
	got, _ := repo.GetByID(ctx, v2.ID)
	if !got.IsActive {
		t.Error("Failed SetActive must not deactivate the series")
	}
}

func TestPackageRepository_DeleteSeries(t *testing.T) {
	repo := NewPackageRepository(setupTestDB(t))
	ctx := context.Background()

	repo.Create(ctx, &models.Package{Code: "eco", Name: "Ecology"})
	repo.Create(ctx, &models.Package{Code: "eco", Name: "Ecology"})
	keep := &models.Package{Code: "bio", Name: "Biology"}
	repo.Create(ctx, keep)

	n, err := repo.DeleteSeries(ctx, "eco")
	if err != nil {
		t.Fatalf("DeleteSeries failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 packages removed, got %d", n)
	}
	if _, err := repo.GetByID(ctx, keep.ID); err != nil {
		t.Errorf("Expected other series to survive, got %v", err)
	}
}
