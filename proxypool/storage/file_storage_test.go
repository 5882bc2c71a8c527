package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stealthfetch/proxypool/model"
)

func TestFileStorage_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.txt")
	store := NewFileStorage(path)
	ctx := context.Background()

	created := time.Unix(1750000000, 0)
	used := time.Unix(1750000300, 0)
	cooldown := time.Unix(1750000500, 0)
	in := []*model.Proxy{
		model.Restore("1.2.3.4", 8080, "http", "US", "provider", 7, 2, used, cooldown, created),
		model.Restore("5.6.7.8", 3128, "https", "", "public", 0, 0, time.Time{}, time.Time{}, created),
	}

	if err := store.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("loaded %d proxies, want 2", len(out))
	}

	got := out[0]
	if got.Host != "1.2.3.4" || got.Port != 8080 || got.Protocol != "http" || got.Country != "US" || got.Source != "provider" {
		t.Errorf("identity fields corrupted: %v", got)
	}
	if got.Success() != 7 || got.Fail() != 2 {
		t.Errorf("counters = %d/%d, want 7/2", got.Success(), got.Fail())
	}
	if !got.LastUsed().Equal(used) || !got.CooldownUntil().Equal(cooldown) || !got.CreatedAt().Equal(created) {
		t.Errorf("timestamps corrupted: %v / %v / %v", got.LastUsed(), got.CooldownUntil(), got.CreatedAt())
	}

	second := out[1]
	if !second.LastUsed().IsZero() || !second.CooldownUntil().IsZero() {
		t.Errorf("zero timestamps not preserved: %v / %v", second.LastUsed(), second.CooldownUntil())
	}
}

func TestFileStorage_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.txt")
	content := "9.9.9.9|3128|http||public|4|1|0|0|0\n" +
		"1.1.1.1|80|http\n" +
		"2.2.2.2|notaport|http||public|0|0|0|0|0\n" +
		"3.3.3.3|99999|http||public|0|0|0|0|0\n" +
		"|80|http||public|0|0|0|0|0\n" +
		"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := NewFileStorage(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("loaded %d proxies, want 1 (malformed lines skipped)", len(out))
	}
	if out[0].Host != "9.9.9.9" || out[0].Success() != 4 || out[0].Fail() != 1 {
		t.Errorf("surviving proxy corrupted: %v", out[0])
	}
}

func TestFileStorage_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.txt")
	out, err := NewFileStorage(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("loaded %d proxies from missing file, want 0", len(out))
	}
}
