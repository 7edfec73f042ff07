package integration

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newEntry(id, ip string) *Entry {
	now := time.Now().UTC()
	return &Entry{ID: id, IP: ip, Port: 9999, Source: SourceAPI, CreatedAt: now, UpdatedAt: now}
}

func TestSQLiteRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(openTestDB(t).DB)

	e := newEntry("e1", "192.168.1.50")
	e.Password = "secret"
	e.Name = "Workshop"
	if err := repo.Create(ctx, e); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.Get(ctx, "e1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.IP != e.IP || got.Password != "secret" || got.Name != "Workshop" || got.Port != 9999 {
		t.Errorf("Get() = %+v", got)
	}
	if !got.CreatedAt.Equal(e.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, e.CreatedAt)
	}

	byIP, err := repo.GetByIP(ctx, "192.168.1.50")
	if err != nil || byIP.ID != "e1" {
		t.Errorf("GetByIP() = %+v, %v", byIP, err)
	}

	if err := repo.Create(ctx, newEntry("e2", "192.168.1.51")); err != nil {
		t.Fatalf("Create(e2) error = %v", err)
	}
	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Errorf("List() len = %d, want 2", len(list))
	}

	if err := repo.Delete(ctx, "e1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.Get(ctx, "e1"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("Get() after Delete error = %v, want ErrEntryNotFound", err)
	}
	if err := repo.Delete(ctx, "e1"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("second Delete() error = %v, want ErrEntryNotFound", err)
	}
}

func TestSQLiteRepository_DuplicateIP(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(openTestDB(t).DB)

	if err := repo.Create(ctx, newEntry("e1", "10.0.0.9")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	err := repo.Create(ctx, newEntry("e2", "10.0.0.9"))
	if !errors.Is(err, ErrAlreadyConfigured) {
		t.Errorf("Create() duplicate error = %v, want ErrAlreadyConfigured", err)
	}
}

func TestSQLiteRepository_GetByIPMissing(t *testing.T) {
	repo := NewSQLiteRepository(openTestDB(t).DB)
	if _, err := repo.GetByIP(context.Background(), "10.9.9.9"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("GetByIP() error = %v, want ErrEntryNotFound", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		entry   Entry
		wantErr bool
	}{
		{"valid", Entry{IP: "192.168.1.5"}, false},
		{"hostname", Entry{IP: "k1.local"}, false},
		{"ipv6", Entry{IP: "fe80::1"}, false},
		{"missing ip", Entry{}, true},
		{"ip with port", Entry{IP: "192.168.1.5:9999"}, true},
		{"url", Entry{IP: "ws://192.168.1.5"}, true},
		{"port out of range", Entry{IP: "192.168.1.5", Port: 70000}, true},
		{"bad source", Entry{IP: "192.168.1.5", Source: "magic"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := tt.entry
			Normalize(&e)
			err := Validate(e)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidEntry) {
				t.Errorf("Validate() error = %v, want ErrInvalidEntry", err)
			}
		})
	}
}

func TestNormalize_DefaultPort(t *testing.T) {
	e := Entry{IP: " 10.0.0.1 "}
	Normalize(&e)
	if e.IP != "10.0.0.1" || e.Port != 9999 || e.Source != SourceAPI {
		t.Errorf("Normalize() = %+v", e)
	}
	if e.URL() != "ws://10.0.0.1:9999" {
		t.Errorf("URL() = %q", e.URL())
	}
	if e.DisplayName() != "Creality Printer 10.0.0.1" {
		t.Errorf("DisplayName() = %q", e.DisplayName())
	}
}
