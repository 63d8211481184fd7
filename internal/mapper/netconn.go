package mapper

import "github.com/bisdn-oss/upsf-shard-reconciler/internal/upsf"

// matchNetworkConnections implements spec.md §4.4 step c/d: for every
// (TSF, NetworkConnection) pair that matches the chosen SGUP's default
// endpoint under the connection's topology rule, the NC's name is added
// to desiredNC (first-match order, deduplicated) and the TSF's name is
// bound to the NC's name in tsfNC — a TSF matching more than one NC in
// this pass keeps only the last one encountered, per the store's own
// iteration order.
func matchNetworkConnections(sgupEndpointName string, tsfs []upsf.TrafficSteeringFunction, ncs []upsf.NetworkConnection) ([]string, map[string]string) {
	var desiredNC []string
	seen := make(map[string]bool)
	tsfNC := make(map[string]string)

	for _, tsf := range tsfs {
		for _, nc := range ncs {
			if !nc.Spec.Matches(sgupEndpointName, tsf.DefaultEndpoint.Name) {
				continue
			}
			if !seen[nc.Name] {
				seen[nc.Name] = true
				desiredNC = append(desiredNC, nc.Name)
			}
			tsfNC[tsf.Name] = nc.Name
		}
	}

	return desiredNC, tsfNC
}
