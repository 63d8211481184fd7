// Package materializer implements the default-item materializer (C3):
// it ensures every shard named in policy exists in the store with
// computed capacity and an initial SGUP binding, idempotently
// (spec.md §4.3).
package materializer

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"github.com/bisdn-oss/upsf-shard-reconciler/internal/policy"
	"github.com/bisdn-oss/upsf-shard-reconciler/internal/upsf"
)

// Materializer runs C3 against a Gateway, using policy to discover which
// shards should exist.
type Materializer struct {
	Gateway    upsf.Gateway
	Policy     *policy.Loader
	VirtualMAC string
	Logger     hclog.Logger
}

// New returns a Materializer.
func New(gw upsf.Gateway, pol *policy.Loader, virtualMAC string, logger hclog.Logger) *Materializer {
	return &Materializer{Gateway: gw, Policy: pol, VirtualMAC: virtualMAC, Logger: logger.Named("materializer")}
}

// Materialize runs one C3 pass (spec.md §4.3 steps 1-7). It never updates
// an existing shard — steady state has no effect (idempotence).
func (m *Materializer) Materialize(ctx context.Context) error {
	if !m.Policy.Exists() {
		return nil
	}

	sgups, err := m.Gateway.ListSGUPs(ctx)
	if err != nil {
		return err
	}
	if len(sgups) == 0 {
		m.Logger.Warn("no sgups available, cannot bind new shards")
		return nil
	}

	shards, err := m.Gateway.ListShards(ctx)
	if err != nil {
		return err
	}
	existing := make(map[string]bool, len(shards))
	for _, s := range shards {
		existing[s.Name] = true
	}

	entries, err := m.Policy.PredefinedShards()
	if err != nil {
		return err
	}

	// FIFO of SGUP names, initialized once per invocation from the
	// store's own iteration order (spec.md §4.3 step 6).
	fifo := make([]string, len(sgups))
	for i, u := range sgups {
		fifo[i] = u.Name
	}
	upNames := make(map[string]bool, len(sgups))
	for _, u := range sgups {
		upNames[u.Name] = true
	}

	for _, entry := range entries {
		if existing[entry.Name] {
			continue
		}

		params := upsf.CreateShardParams{
			Name:                  entry.Name,
			VirtualMAC:            m.VirtualMAC,
			AllocatedSessionCount: 0,
			MaxSessionCount:       computeCapacity(entry.Prefixes, entry.Exclude, m.Logger),
			Prefix:                entry.Prefixes,
		}

		if entry.ServiceGatewayUserPlane != "" {
			if !upNames[entry.ServiceGatewayUserPlane] {
				m.Logger.Warn("desired sgup for shard not available, ignoring",
					"shard", entry.Name, "sgup", entry.ServiceGatewayUserPlane)
				continue
			}
			params.DesiredServiceGatewayUserPlane = entry.ServiceGatewayUserPlane
		} else if len(fifo) > 0 {
			params.DesiredServiceGatewayUserPlane = fifo[0]
			fifo = fifo[1:]
		}

		m.Logger.Info("materializing shard", "shard", entry.Name, "sgup", params.DesiredServiceGatewayUserPlane)
		if err := m.Gateway.CreateShard(ctx, params); err != nil {
			return err
		}
	}
	return nil
}
