package mapper

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

func noPolicy(t *testing.T) *policy.Loader {
	t.Helper()
	return policy.NewLoader(filepath.Join(t.TempDir(), "missing.yaml"), hclog.NewNullLogger())
}

func writePolicy(t *testing.T, contents string) *policy.Loader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return policy.NewLoader(path, hclog.NewNullLogger())
}

// Scenario 1 (spec.md §8): an empty fleet (no shards, no SGUPs) sweeps
// cleanly with no writes.
func TestSweepEmptyFleetIsNoop(t *testing.T) {
	gw := fake.New()
	m := New(gw, noPolicy(t), hclog.NewNullLogger())

	require.NoError(t, m.Sweep(context.Background()))
	require.Empty(t, gw.UpdateShardCalls)
}

// Scenario 2: with no SGUPs at all, a shard carrying a desired SGUP has
// its desired state cleared.
func TestSweepNoSGUPsClearsDesiredState(t *testing.T) {
	gw := fake.New()
	gw.PutShard(upsf.Shard{
		Name:         "s1",
		Prefix:       []string{"10.0.0.0/30"},
		DesiredState: upsf.DesiredState{ServiceGatewayUserPlane: "up-a", NetworkConnection: []string{"nc1"}},
	})
	m := New(gw, noPolicy(t), hclog.NewNullLogger())

	require.NoError(t, m.Sweep(context.Background()))
	require.Len(t, gw.UpdateShardCalls, 1)

	s, ok := gw.Shard("s1")
	require.True(t, ok)
	require.Empty(t, s.DesiredState.NetworkConnection)
}

// Scenario 3: a shard with no current SGUP picks the least-loaded
// eligible SGUP.
func TestSweepPicksLeastLoadedSGUP(t *testing.T) {
	gw := fake.New()
	gw.PutSG(upsf.ServiceGateway{Name: "sg1"})
	gw.PutSGUP(upsf.ServiceGatewayUserPlane{
		Name: "up-busy", ServiceGatewayName: "sg1",
		MaxSessionCount: 100, AllocatedSessionCount: 90,
		DefaultEndpoint: upsf.Endpoint{Name: "ep-busy"},
	})
	gw.PutSGUP(upsf.ServiceGatewayUserPlane{
		Name: "up-idle", ServiceGatewayName: "sg1",
		MaxSessionCount: 100, AllocatedSessionCount: 10,
		DefaultEndpoint: upsf.Endpoint{Name: "ep-idle"},
	})
	gw.PutShard(upsf.Shard{Name: "s1", Prefix: []string{"10.0.0.0/30"}})
	m := New(gw, noPolicy(t), hclog.NewNullLogger())

	require.NoError(t, m.Sweep(context.Background()))

	s, ok := gw.Shard("s1")
	require.True(t, ok)
	require.Equal(t, "up-idle", s.DesiredState.ServiceGatewayUserPlane)
}

// Scenario 3b / P2: a tie in load is broken lexicographically by SGUP
// name, deterministically across repeated sweeps.
func TestSweepTieBreaksLexicographically(t *testing.T) {
	gw := fake.New()
	gw.PutSG(upsf.ServiceGateway{Name: "sg1"})
	gw.PutSGUP(upsf.ServiceGatewayUserPlane{Name: "up-z", ServiceGatewayName: "sg1", MaxSessionCount: 100, AllocatedSessionCount: 10})
	gw.PutSGUP(upsf.ServiceGatewayUserPlane{Name: "up-a", ServiceGatewayName: "sg1", MaxSessionCount: 100, AllocatedSessionCount: 10})
	gw.PutShard(upsf.Shard{Name: "s1", Prefix: []string{"10.0.0.0/30"}})
	m := New(gw, noPolicy(t), hclog.NewNullLogger())

	require.NoError(t, m.Sweep(context.Background()))
	s, _ := gw.Shard("s1")
	require.Equal(t, "up-a", s.DesiredState.ServiceGatewayUserPlane)
}

// Scenario 4: a static pin in policy is honored over the load-balancing
// choice, even when another SGUP is less loaded.
func TestSweepStaticPinHonored(t *testing.T) {
	gw := fake.New()
	gw.PutSG(upsf.ServiceGateway{Name: "sg1"})
	gw.PutSGUP(upsf.ServiceGatewayUserPlane{Name: "up-idle", ServiceGatewayName: "sg1", MaxSessionCount: 100, AllocatedSessionCount: 0})
	gw.PutSGUP(upsf.ServiceGatewayUserPlane{Name: "up-pinned", ServiceGatewayName: "sg1", MaxSessionCount: 100, AllocatedSessionCount: 90})
	gw.PutShard(upsf.Shard{Name: "s1", Prefix: []string{"10.0.0.0/30"}})
	pol := writePolicy(t, `
upsf:
  shards:
    - name: s1
      serviceGatewayUserPlane: up-pinned
`)
	m := New(gw, pol, hclog.NewNullLogger())

	require.NoError(t, m.Sweep(context.Background()))
	s, _ := gw.Shard("s1")
	require.Equal(t, "up-pinned", s.DesiredState.ServiceGatewayUserPlane)
}

// Scenario 5: a static pin to an SGUP that isn't available leaves the
// shard untouched (no write) rather than falling back to load-balancing.
func TestSweepStaticPinUnresolvableSkipsShard(t *testing.T) {
	gw := fake.New()
	gw.PutSG(upsf.ServiceGateway{Name: "sg1"})
	gw.PutSGUP(upsf.ServiceGatewayUserPlane{Name: "up-a", ServiceGatewayName: "sg1", MaxSessionCount: 100})
	gw.PutShard(upsf.Shard{Name: "s1", Prefix: []string{"10.0.0.0/30"}})
	pol := writePolicy(t, `
upsf:
  shards:
    - name: s1
      serviceGatewayUserPlane: up-missing
`)
	m := New(gw, pol, hclog.NewNullLogger())

	require.NoError(t, m.Sweep(context.Background()))
	require.Empty(t, gw.UpdateShardCalls)
}

// Scenario 6: network connections are matched across the MS-MPTP
// topology (many TSF endpoints, one SGUP endpoint), binding every TSF to
// the same NC and adding it once to the desired NC list.
func TestSweepMatchesMSMPTPNetworkConnection(t *testing.T) {
	gw := fake.New()
	gw.PutSG(upsf.ServiceGateway{Name: "sg1"})
	gw.PutSGUP(upsf.ServiceGatewayUserPlane{
		Name: "up-a", ServiceGatewayName: "sg1", MaxSessionCount: 100,
		DefaultEndpoint: upsf.Endpoint{Name: "ep-up"},
	})
	gw.PutTSF(upsf.TrafficSteeringFunction{Name: "tsf1", DefaultEndpoint: upsf.Endpoint{Name: "ep-tsf1"}})
	gw.PutTSF(upsf.TrafficSteeringFunction{Name: "tsf2", DefaultEndpoint: upsf.Endpoint{Name: "ep-tsf2"}})
	gw.PutNC(upsf.NetworkConnection{
		Name: "nc-msmptp",
		Spec: upsf.NetworkConnectionSpec{
			Kind:         upsf.KindMSMPTP,
			TSFEndpoints: []upsf.Endpoint{{Name: "ep-tsf1"}, {Name: "ep-tsf2"}},
			SGUPEndpoint: upsf.Endpoint{Name: "ep-up"},
		},
	})
	gw.PutShard(upsf.Shard{Name: "s1", Prefix: []string{"10.0.0.0/30"}})
	m := New(gw, noPolicy(t), hclog.NewNullLogger())

	require.NoError(t, m.Sweep(context.Background()))

	s, _ := gw.Shard("s1")
	require.Equal(t, []string{"nc-msmptp"}, s.DesiredState.NetworkConnection)
	require.Equal(t, map[string]string{"tsf1": "nc-msmptp", "tsf2": "nc-msmptp"}, s.CurrentTSFNetworkConn)
}

// P1: a sweep over an already-converged shard set performs no writes
// (fingerprint equality short-circuits UpdateShard).
func TestSweepIsIdempotentOnceConverged(t *testing.T) {
	gw := fake.New()
	gw.PutSG(upsf.ServiceGateway{Name: "sg1"})
	gw.PutSGUP(upsf.ServiceGatewayUserPlane{Name: "up-a", ServiceGatewayName: "sg1", MaxSessionCount: 100})
	gw.PutShard(upsf.Shard{Name: "s1", Prefix: []string{"10.0.0.0/30"}})
	m := New(gw, noPolicy(t), hclog.NewNullLogger())

	require.NoError(t, m.Sweep(context.Background()))
	require.Len(t, gw.UpdateShardCalls, 1)

	require.NoError(t, m.Sweep(context.Background()))
	require.Len(t, gw.UpdateShardCalls, 1, "second sweep over a converged shard must not write again")
}

// P3: one shard being abandoned (its static pin names an SGUP missing
// from the store) does not prevent other shards from being reconciled.
func TestSweepIsolatesPerShardErrors(t *testing.T) {
	gw := fake.New()
	gw.PutSG(upsf.ServiceGateway{Name: "sg1"})
	gw.PutSGUP(upsf.ServiceGatewayUserPlane{Name: "up-a", ServiceGatewayName: "sg1", MaxSessionCount: 100})
	gw.PutShard(upsf.Shard{Name: "good", Prefix: []string{"10.0.0.0/30"}})
	gw.PutShard(upsf.Shard{
		Name: "bad", Prefix: []string{"10.0.0.4/30"},
		DesiredState: upsf.DesiredState{ServiceGatewayUserPlane: "up-a"},
	})
	pol := writePolicy(t, `
upsf:
  shards:
    - name: bad
      serviceGatewayUserPlane: up-ghost
`)
	m := New(gw, pol, hclog.NewNullLogger())

	// "bad" pins to an sgup that doesn't exist in the store, so it's
	// skipped with a warning (no error) while "good" still converges.
	require.NoError(t, m.Sweep(context.Background()))

	good, _ := gw.Shard("good")
	require.Equal(t, "up-a", good.DesiredState.ServiceGatewayUserPlane)

	bad, _ := gw.Shard("bad")
	require.Equal(t, "up-a", bad.DesiredState.ServiceGatewayUserPlane, "bad shard is left untouched, not cleared")
}

// P7: a malformed policy document aborts the sweep before any writes
// happen, rather than failing shard-by-shard.
func TestSweepAbortsOnMalformedPolicy(t *testing.T) {
	gw := fake.New()
	gw.PutSG(upsf.ServiceGateway{Name: "sg1"})
	gw.PutSGUP(upsf.ServiceGatewayUserPlane{Name: "up-a", ServiceGatewayName: "sg1", MaxSessionCount: 100})
	gw.PutShard(upsf.Shard{Name: "s1", Prefix: []string{"10.0.0.0/30"}})

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid yaml"), 0o644))
	pol := policy.NewLoader(path, hclog.NewNullLogger())
	m := New(gw, pol, hclog.NewNullLogger())

	err := m.Sweep(context.Background())
	require.Error(t, err)
	require.Empty(t, gw.UpdateShardCalls)
}

// P4/P6: when no eligible SGUP exists for a shard under any selection
// path (no SG membership), the shard is skipped rather than erroring.
func TestSweepSkipsShardWithNoEligibleSGUP(t *testing.T) {
	gw := fake.New()
	gw.PutSGUP(upsf.ServiceGatewayUserPlane{Name: "up-a", ServiceGatewayName: "unknown-sg", MaxSessionCount: 100})
	gw.PutShard(upsf.Shard{Name: "s1", Prefix: []string{"10.0.0.0/30"}})
	m := New(gw, noPolicy(t), hclog.NewNullLogger())

	require.NoError(t, m.Sweep(context.Background()))
	require.Empty(t, gw.UpdateShardCalls)
}
