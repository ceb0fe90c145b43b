package evidence_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/medtrace/diagledger/internal/testkit"
	"github.com/medtrace/diagledger/pkg/core"
	"github.com/medtrace/diagledger/pkg/digest"
	"github.com/medtrace/diagledger/pkg/evidence"
)

func testStoreConfig(dir string) core.StoreConfig {
	return core.StoreConfig{
		Dir:      dir,
		Chunking: core.ChunkingConfig{Min: 256, Avg: 1024, Max: 4096},
		Transform: core.TransformConfig{
			Name:      "zstd",
			ZstdLevel: 3,
		},
	}
}

func TestPebbleStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := evidence.Open(testStoreConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	rng := testkit.RNG(42)
	image := testkit.ImageBytes(rng, 200*1024) // spans many chunks

	d, err := s.Put(ctx, image, evidence.KindImage)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, info, err := s.Get(ctx, d)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, image) {
		t.Error("reassembled payload differs from original")
	}
	if info.Kind != evidence.KindImage {
		t.Errorf("expected kind image, got %s", info.Kind)
	}
	if info.Length != uint64(len(image)) {
		t.Errorf("expected length %d, got %d", len(image), info.Length)
	}
}

func TestPebbleStore_Idempotence(t *testing.T) {
	ctx := context.Background()
	s, err := evidence.Open(testStoreConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	payload := []byte("the same canonical feature bytes")

	d1, err := s.Put(ctx, payload, evidence.KindFeatureVector)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	d2, err := s.Put(ctx, payload, evidence.KindFeatureVector)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if d1 != d2 {
		t.Errorf("same bytes produced digests %s and %s", d1, d2)
	}
}

func TestPebbleStore_SmallPayloadSingleChunk(t *testing.T) {
	ctx := context.Background()
	s, err := evidence.Open(testStoreConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	payload := []byte{0x42} // below the minimum chunk size

	d, err := s.Put(ctx, payload, evidence.KindFeatureVector)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, _, err := s.Get(ctx, d)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("payload mismatch")
	}
}

func TestPebbleStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := testStoreConfig(dir)

	rng := testkit.RNG(11)
	image := testkit.ImageBytes(rng, 64*1024)

	s, err := evidence.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	d, err := s.Put(ctx, image, evidence.KindImage)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s2, err := evidence.Open(cfg)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	got, _, err := s2.Get(ctx, d)
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if !bytes.Equal(got, image) {
		t.Error("payload mismatch after reopen")
	}
}

func TestPebbleStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s, err := evidence.Open(testStoreConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	missing, err := digest.Sum([]byte("never stored"))
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}
	if _, _, err := s.Get(ctx, missing); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	ok, err := s.Has(ctx, missing)
	if err != nil {
		t.Fatalf("Has failed: %v", err)
	}
	if ok {
		t.Error("Has reported an unstored digest")
	}
}

func TestPebbleStore_MaxPayloadBytes(t *testing.T) {
	ctx := context.Background()
	cfg := testStoreConfig(t.TempDir())
	cfg.MaxPayloadBytes = 16

	s, err := evidence.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if _, err := s.Put(ctx, make([]byte, 17), evidence.KindImage); !errors.Is(err, core.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPebbleStore_NoneTransform(t *testing.T) {
	ctx := context.Background()
	cfg := testStoreConfig(t.TempDir())
	cfg.Transform = core.TransformConfig{Name: "none"}

	s, err := evidence.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	rng := testkit.RNG(3)
	payload := testkit.RandomBytes(rng, 8*1024)

	d, err := s.Put(ctx, payload, evidence.KindImage)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, _, err := s.Get(ctx, d)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("payload mismatch with none transform")
	}
}
