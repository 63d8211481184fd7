// Package mapper implements the shard mapper (C4): given the current
// store snapshot, it computes and writes the desired SGUP and
// network-connection set for every shard, skipping writes when the
// desired state is unchanged (spec.md §4.4).
package mapper

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/bisdn-oss/upsf-shard-reconciler/internal/metrics"
	"github.com/bisdn-oss/upsf-shard-reconciler/internal/policy"
	"github.com/bisdn-oss/upsf-shard-reconciler/internal/upsf"
)

// Mapper runs C4 against a Gateway, consulting Policy for static
// shard→SGUP pins.
type Mapper struct {
	Gateway upsf.Gateway
	Policy  *policy.Loader
	Logger  hclog.Logger

	// Metrics, when set, records every UpdateShard call this Mapper
	// issues. Nil is a valid no-op default for tests.
	Metrics *metrics.Sink
}

// New returns a Mapper.
func New(gw upsf.Gateway, pol *policy.Loader, logger hclog.Logger) *Mapper {
	return &Mapper{Gateway: gw, Policy: pol, Logger: logger.Named("mapper")}
}

// Sweep performs one full C4 pass. Errors on one shard do not abort the
// sweep for the others (spec.md §7 item 2); every such error is
// aggregated into the returned multierror so the caller can log it,
// while a policy-document parse failure aborts the whole sweep
// immediately (spec.md §7 item 3).
func (m *Mapper) Sweep(ctx context.Context) error {
	if err := m.Policy.Validate(); err != nil {
		return fmt.Errorf("mapper: policy document invalid, aborting sweep: %w", err)
	}

	sgs, err := m.Gateway.ListSGs(ctx)
	if err != nil {
		return err
	}
	sgups, err := m.Gateway.ListSGUPs(ctx)
	if err != nil {
		return err
	}
	shards, err := m.Gateway.ListShards(ctx)
	if err != nil {
		return err
	}

	if len(sgups) == 0 {
		return m.clearAllDesiredState(ctx, shards)
	}

	tsfs, err := m.Gateway.ListTSFs(ctx)
	if err != nil {
		return err
	}
	ncs, err := m.Gateway.ListNCs(ctx)
	if err != nil {
		return err
	}

	sgNames := make(map[string]bool, len(sgs))
	for _, sg := range sgs {
		sgNames[sg.Name] = true
	}
	upNames := make(map[string]bool, len(sgups))
	for _, u := range sgups {
		upNames[u.Name] = true
	}

	var errs *multierror.Error
	for _, shard := range shards {
		if err := m.reconcileShard(ctx, shard, sgups, tsfs, ncs, sgNames, upNames); err != nil {
			m.Logger.Error("shard reconcile failed", "shard", shard.Name, "error", err)
			errs = multierror.Append(errs, fmt.Errorf("shard %s: %w", shard.Name, err))
		}
	}
	return errs.ErrorOrNil()
}

// clearAllDesiredState implements the empty-plane shortcut (spec.md
// §4.4 step 2): with no SGUPs at all, every shard that still has a
// non-empty desired SGUP has its list-valued desired fields cleared via
// a replace-merge update.
func (m *Mapper) clearAllDesiredState(ctx context.Context, shards []upsf.Shard) error {
	m.Logger.Warn("no sgups available, clearing desired state for all shards")
	var errs *multierror.Error
	for _, shard := range shards {
		if shard.DesiredState.ServiceGatewayUserPlane == "" {
			continue
		}
		err := m.Gateway.UpdateShard(ctx, upsf.UpdateShardParams{
			Name:                     shard.Name,
			Prefix:                   shard.Prefix,
			ListMergeStrategyReplace: true,
		})
		if m.Metrics != nil && err == nil {
			m.Metrics.RecordShardUpdate()
		}
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("shard %s: %w", shard.Name, err))
		}
	}
	return errs.ErrorOrNil()
}

// reconcileShard implements spec.md §4.4 step 4 for a single shard.
func (m *Mapper) reconcileShard(
	ctx context.Context,
	shard upsf.Shard,
	sgups []upsf.ServiceGatewayUserPlane,
	tsfs []upsf.TrafficSteeringFunction,
	ncs []upsf.NetworkConnection,
	sgNames, upNames map[string]bool,
) error {
	fpActive := fingerprint(shard.DesiredState.ServiceGatewayUserPlane, shard.DesiredState.NetworkConnection)

	upNext, ok := m.pickSGUP(shard, sgups, sgNames, upNames)
	if !ok {
		// A warning was already logged by pickSGUP; this shard is
		// abandoned for this sweep (spec.md §4.4.b).
		return nil
	}

	sgup, err := m.Gateway.GetSGUP(ctx, upNext)
	if err != nil {
		return err
	}

	desiredNC, tsfNC := matchNetworkConnections(sgup.DefaultEndpoint.Name, tsfs, ncs)

	fpDesired := fingerprint(upNext, desiredNC)
	m.Logger.Debug("shard fingerprint computed",
		"shard", shard.Name, "sgup", upNext, "fp_active", fpActive, "fp_desired", fpDesired,
		"derived_state", shard.Metadata.DerivedState, "current_up", shard.CurrentState.ServiceGatewayUserPlane)

	if fpDesired == fpActive {
		return nil
	}

	err = m.Gateway.UpdateShard(ctx, upsf.UpdateShardParams{
		Name:                           shard.Name,
		DesiredServiceGatewayUserPlane: &upNext,
		DesiredNetworkConnection:       desiredNC,
		CurrentTSFNetworkConnection:    tsfNC,
		ServiceGroupsSupported:         nonEmptyStrings(sgup.SupportedServiceGroup),
		Prefix:                         shard.Prefix,
		ListMergeStrategyReplace:       true,
	})
	if m.Metrics != nil && err == nil {
		m.Metrics.RecordShardUpdate()
	}
	return err
}

// pickSGUP implements spec.md §4.4 step b. The returned bool is false
// when no valid SGUP could be determined for this shard this sweep (the
// shard is abandoned, not errored).
func (m *Mapper) pickSGUP(
	shard upsf.Shard,
	sgups []upsf.ServiceGatewayUserPlane,
	sgNames, upNames map[string]bool,
) (string, bool) {
	currentUP := shard.DesiredState.ServiceGatewayUserPlane

	static, pinned, err := m.Policy.StaticPin(shard.Name)
	if err != nil {
		// Validate() already guards against this at the top of Sweep;
		// treat a late failure the same way a per-shard logic error
		// would be treated.
		m.Logger.Error("policy lookup failed, skipping shard", "shard", shard.Name, "error", err)
		return "", false
	}

	needsReselection := (pinned && static != currentUP) || !upNames[currentUP]
	if !needsReselection {
		return currentUP, true
	}

	if pinned {
		if !upNames[static] {
			m.Logger.Warn("shard has static sgup mapping but sgup is not available, ignoring",
				"shard", shard.Name, "sgup", static)
			return "", false
		}
		m.Logger.Info("shard has static mapping", "shard", shard.Name, "sgup", static)
		return static, true
	}

	return m.pickLeastLoaded(shard.Name, sgups, sgNames)
}

// pickLeastLoaded implements the load-balancing half of spec.md §4.4.b:
// select the eligible SGUP (max_session_count > 0, owning SG known) with
// the minimum allocated/max ratio, ties broken lexicographically on name
// for determinism (DESIGN NOTES, "Open question — tie-breaking").
func (m *Mapper) pickLeastLoaded(shardName string, sgups []upsf.ServiceGatewayUserPlane, sgNames map[string]bool) (string, bool) {
	type candidate struct {
		name string
		load float64
	}
	var eligible []candidate
	for _, u := range sgups {
		if u.MaxSessionCount <= 0 || !sgNames[u.ServiceGatewayName] {
			continue
		}
		eligible = append(eligible, candidate{name: u.Name, load: u.Load()})
	}
	if len(eligible) == 0 {
		m.Logger.Warn("set of sgup candidates is empty", "shard", shardName)
		return "", false
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].load != eligible[j].load {
			return eligible[i].load < eligible[j].load
		}
		return eligible[i].name < eligible[j].name
	})
	chosen := eligible[0]
	m.Logger.Info("selected new user plane", "shard", shardName, "sgup", chosen.name, "load", chosen.load)
	return chosen.name, true
}

func nonEmptyStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
