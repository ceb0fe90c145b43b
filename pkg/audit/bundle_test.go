package audit_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/medtrace/diagledger/internal/testkit"
	"github.com/medtrace/diagledger/pkg/audit"
	"github.com/medtrace/diagledger/pkg/core"
	"github.com/medtrace/diagledger/pkg/digest"
	"github.com/medtrace/diagledger/pkg/evidence"
)

func TestBundle_ExportAndVerify(t *testing.T) {
	ctx := context.Background()

	store := evidence.NewMemory()
	defer store.Close()

	features, err := digest.CanonicalFeatures([]float64{5, 116, 74, 25.6})
	require.NoError(t, err)
	image := testkit.ImageBytes(testkit.RNG(11), 8192)

	dataDigest, err := store.Put(ctx, features, evidence.KindFeatureVector)
	require.NoError(t, err)
	imageDigest, err := store.Put(ctx, image, evidence.KindImage)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "evidence.car")
	require.NoError(t, audit.ExportBundle(ctx, path, store, dataDigest, imageDigest))

	// The bundle verifies on its own, without the store.
	payloads, err := audit.VerifyBundle(ctx, path, dataDigest, imageDigest)
	require.NoError(t, err)
	require.Len(t, payloads, 2)
	require.Equal(t, features, payloads[dataDigest])
	require.Equal(t, image, payloads[imageDigest])
}

func TestBundle_VerifyReportsMissingEvidence(t *testing.T) {
	ctx := context.Background()

	store := evidence.NewMemory()
	defer store.Close()

	payload := testkit.RandomBytes(testkit.RNG(13), 512)
	d, err := store.Put(ctx, payload, evidence.KindFeatureVector)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "evidence.car")
	require.NoError(t, audit.ExportBundle(ctx, path, store, d))

	other, err := digest.Sum([]byte("some other payload"))
	require.NoError(t, err)

	_, err = audit.VerifyBundle(ctx, path, d, other)
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing evidence")
}

func TestBundle_ExportFailsOnUnknownDigest(t *testing.T) {
	ctx := context.Background()

	store := evidence.NewMemory()
	defer store.Close()

	unknown, err := digest.Sum([]byte("never stored"))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "evidence.car")
	err = audit.ExportBundle(ctx, path, store, unknown)
	require.ErrorIs(t, err, core.ErrNotFound)
}
