package settings

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/postgres"
)

var testHighlight = config.HighlightConfig{
	CaseSensitive: true,
	Colors:        []string{"#ffd75f", "#87d7ff", "#afff87", "#ff87af"},
}

func TestStaticLoad(t *testing.T) {
	s := NewStatic(testHighlight)
	g, err := s.Load(context.Background(), 2)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !g.CaseSensitive || g.WholeWordOnly || g.Color != "#afff87" {
		t.Fatalf("group = %+v", g)
	}
	opts := g.Options()
	if !opts.CaseSensitive || opts.WholeWordOnly {
		t.Fatalf("options = %+v", opts)
	}

	for _, slot := range []int{-1, config.MaxFreezeGroups + 1} {
		if _, err := s.Load(context.Background(), slot); !errors.Is(err, apperrors.ErrUnknownGroup) {
			t.Errorf("Load(%d) err = %v, want ErrUnknownGroup", slot, err)
		}
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		key, value string
		want       Group
		wantErr    bool
	}{
		{"case_sensitive", "false", Group{}, false},
		{"CASE_SENSITIVE", "1", Group{CaseSensitive: true}, false},
		{"whole_word", "true", Group{WholeWordOnly: true}, false},
		{"color", " red ", Group{Color: "red"}, false},
		{"hotkey", "ctrl+1", Group{}, false},
		{"whole_word", "maybe", Group{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			var g Group
			err := apply(&g, tt.key, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("apply err = %v, wantErr %v", err, tt.wantErr)
			}
			if g != tt.want {
				t.Fatalf("group = %+v, want %+v", g, tt.want)
			}
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	in := Group{CaseSensitive: true, WholeWordOnly: true, Color: "#fff"}
	var out Group
	for k, v := range encode(in) {
		if err := apply(&out, k, v); err != nil {
			t.Fatal(err)
		}
	}
	if out != in {
		t.Fatalf("round trip = %+v, want %+v", out, in)
	}
}

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	port, err := strconv.Atoi(envOrDefault("TEST_POSTGRES_PORT", "5432"))
	if err != nil {
		t.Fatalf("TEST_POSTGRES_PORT: %v", err)
	}
	db, err := postgres.New(context.Background(), config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            port,
		Database:        envOrDefault("TEST_POSTGRES_DB", "highlighter_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "highlighter"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestPostgresStoreSaveAndLoad(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()
	store := NewPostgresStore(db, testHighlight)
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	t.Cleanup(func() {
		db.DB.ExecContext(context.Background(), `DELETE FROM highlight_settings WHERE slot = 3`)
	})

	g, err := store.Load(ctx, 3)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if g.Color != "#ff87af" || !g.CaseSensitive {
		t.Fatalf("defaults = %+v", g)
	}

	want := Group{WholeWordOnly: true, Color: "#123456"}
	if err := store.Save(ctx, 3, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load(ctx, 3)
	if err != nil {
		t.Fatalf("Load after save: %v", err)
	}
	if got != want {
		t.Fatalf("loaded %+v, want %+v", got, want)
	}
}
