package recordset

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var hash = "0x" + strings.Repeat("9f", 32)

func TestRedis_AddExists(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	kyc := NewRedis(rdb, KYCKey)
	expl := NewRedis(rdb, ExplanationKey)

	ok, err := kyc.Exists(ctx, hash)
	if err != nil || ok {
		t.Fatalf("Exists before Add = %v, %v", ok, err)
	}
	if err := kyc.Add(ctx, strings.ToUpper(hash[2:])); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := kyc.Add(ctx, hash); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if ok, _ := kyc.Exists(ctx, hash); !ok {
		t.Fatal("expected hash in kyc set")
	}
	if ok, _ := expl.Exists(ctx, hash); ok {
		t.Fatal("sets must be independent")
	}
	if n, _ := rdb.SCard(ctx, KYCKey).Result(); n != 1 {
		t.Fatalf("SCARD = %d, want 1 (both forms stored canonically)", n)
	}
}

func TestRedis_AddedBareFoundPrefixed(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()
	set := NewRedis(rdb, KYCKey)

	if err := set.Add(ctx, strings.Repeat("9f", 32)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	ok, err := set.Exists(ctx, hash)
	if err != nil || !ok {
		t.Fatalf("Exists(0x form) = %v, %v; want true", ok, err)
	}
	if members, _ := rdb.SMembers(ctx, KYCKey).Result(); len(members) != 1 || members[0] != hash {
		t.Fatalf("stored members = %v, want [%s]", members, hash)
	}
}

func TestRedis_FindsBareMemberWrittenElsewhere(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()

	if _, err := mr.SAdd(ExplanationKey, strings.Repeat("9f", 32)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	ok, err := NewRedis(rdb, ExplanationKey).Exists(ctx, strings.ToUpper(hash[2:]))
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v; want true", ok, err)
	}
}

func TestRedis_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()
	if _, err := NewRedis(rdb, KYCKey).Exists(context.Background(), hash); err == nil {
		t.Fatal("expected error from closed server")
	}
}

func TestDir_Exists(t *testing.T) {
	root := t.TempDir()
	kyc := NewDir(filepath.Join(root, "kyc_documents"), "")
	expl := NewDir(filepath.Join(root, "explanations"), ".json")

	if err := os.MkdirAll(filepath.Join(root, "kyc_documents", hash), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "explanations"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "explanations", hash[2:]+".json"), []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if ok, err := kyc.Exists(ctx, hash); err != nil || !ok {
		t.Fatalf("kyc Exists = %v, %v", ok, err)
	}
	if ok, err := expl.Exists(ctx, hash); err != nil || !ok {
		t.Fatalf("explanation Exists (bare file name) = %v, %v", ok, err)
	}
	other := "0x" + strings.Repeat("00", 32)
	if ok, err := kyc.Exists(ctx, other); err != nil || ok {
		t.Fatalf("unknown hash Exists = %v, %v", ok, err)
	}
	if ok, _ := expl.Exists(ctx, "../kyc_documents/"+hash); ok {
		t.Fatal("path traversal must not match")
	}
}
