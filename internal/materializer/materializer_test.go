package materializer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/bisdn-oss/upsf-shard-reconciler/internal/policy"
	"github.com/bisdn-oss/upsf-shard-reconciler/internal/upsf"
	"github.com/bisdn-oss/upsf-shard-reconciler/internal/upsf/fake"
)

func writePolicy(t *testing.T, contents string) *policy.Loader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return policy.NewLoader(path, hclog.NewNullLogger())
}

func TestMaterializeNoPolicyFileIsNoop(t *testing.T) {
	gw := fake.New()
	pol := policy.NewLoader(filepath.Join(t.TempDir(), "missing.yaml"), hclog.NewNullLogger())
	m := New(gw, pol, "00:00:01:00:00:00", hclog.NewNullLogger())

	require.NoError(t, m.Materialize(context.Background()))
	require.Empty(t, gw.CreateShardCalls)
}

func TestMaterializeNoSGUPsIsNoop(t *testing.T) {
	gw := fake.New()
	pol := writePolicy(t, `
upsf:
  shards:
    - name: s1
      prefixes: ["10.0.0.0/30"]
`)
	m := New(gw, pol, "00:00:01:00:00:00", hclog.NewNullLogger())

	require.NoError(t, m.Materialize(context.Background()))
	require.Empty(t, gw.CreateShardCalls)
}

func TestMaterializeCreatesNewShardsWithRoundRobinSGUP(t *testing.T) {
	gw := fake.New()
	gw.PutSGUP(upsf.ServiceGatewayUserPlane{Name: "up-a"})
	gw.PutSGUP(upsf.ServiceGatewayUserPlane{Name: "up-b"})
	pol := writePolicy(t, `
upsf:
  shards:
    - name: s1
      prefixes: ["10.0.0.0/30"]
      exclude: ["10.0.0.1"]
    - name: s2
      prefixes: ["10.0.0.4/30"]
`)
	m := New(gw, pol, "00:00:01:00:00:00", hclog.NewNullLogger())

	require.NoError(t, m.Materialize(context.Background()))
	require.Len(t, gw.CreateShardCalls, 2)

	s1, ok := gw.Shard("s1")
	require.True(t, ok)
	require.EqualValues(t, 1, s1.MaxSessionCount)
	require.Equal(t, "up-a", s1.DesiredState.ServiceGatewayUserPlane)

	s2, ok := gw.Shard("s2")
	require.True(t, ok)
	require.Equal(t, "up-b", s2.DesiredState.ServiceGatewayUserPlane)
}

func TestMaterializeIsIdempotent(t *testing.T) {
	gw := fake.New()
	gw.PutSGUP(upsf.ServiceGatewayUserPlane{Name: "up-a"})
	pol := writePolicy(t, `
upsf:
  shards:
    - name: s1
      prefixes: ["10.0.0.0/30"]
`)
	m := New(gw, pol, "00:00:01:00:00:00", hclog.NewNullLogger())

	require.NoError(t, m.Materialize(context.Background()))
	require.NoError(t, m.Materialize(context.Background()))
	require.Len(t, gw.CreateShardCalls, 1)
}

func TestMaterializeStaticPinUnavailableSkipsEntry(t *testing.T) {
	gw := fake.New()
	gw.PutSGUP(upsf.ServiceGatewayUserPlane{Name: "up-a"})
	pol := writePolicy(t, `
upsf:
  shards:
    - name: s1
      prefixes: ["10.0.0.0/30"]
      serviceGatewayUserPlane: up-z
`)
	m := New(gw, pol, "00:00:01:00:00:00", hclog.NewNullLogger())

	require.NoError(t, m.Materialize(context.Background()))
	require.Empty(t, gw.CreateShardCalls)
}

func TestComputeCapacity(t *testing.T) {
	got := computeCapacity([]string{"10.0.0.0/30"}, []string{"10.0.0.1"}, hclog.NewNullLogger())
	require.EqualValues(t, 1, got)
}

func TestComputeCapacitySkipsMalformedPrefix(t *testing.T) {
	got := computeCapacity([]string{"not-a-prefix", "10.0.0.0/30"}, nil, hclog.NewNullLogger())
	require.EqualValues(t, 2, got)
}
