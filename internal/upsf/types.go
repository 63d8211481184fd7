// Package upsf is a typed facade over the UPSF store: the external
// gRPC-based data-model service that holds shards, service gateway user
// planes, traffic steering functions, service gateways and the network
// connections stitching them together.
//
// The facade never caches; every read is a fresh round trip, and the
// store itself is the single source of truth (see Gateway).
package upsf

import "fmt"

// DerivedState mirrors the shard lifecycle value the store computes and
// exposes on Shard.Metadata. It is observed-only: nothing in this module
// sets or branches on it; the mapper includes it in its per-shard debug
// log line.
type DerivedState int

const (
	DerivedStateUnknown DerivedState = iota
	DerivedStateInactive
	DerivedStateActive
	DerivedStateUpdating
	DerivedStateDeleting
	DerivedStateDeleted
)

func (d DerivedState) String() string {
	switch d {
	case DerivedStateInactive:
		return "inactive"
	case DerivedStateActive:
		return "active"
	case DerivedStateUpdating:
		return "updating"
	case DerivedStateDeleting:
		return "deleting"
	case DerivedStateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// ShardMetadata carries store-managed bookkeeping about a Shard that the
// reconciler reads but never writes.
type ShardMetadata struct {
	DerivedState DerivedState
}

// DesiredState is the part of a Shard's spec this reconciler owns.
type DesiredState struct {
	ServiceGatewayUserPlane string
	NetworkConnection       []string
}

// CurrentState is observed from the data plane; the reconciler never
// writes it.
type CurrentState struct {
	ServiceGatewayUserPlane string
}

// Shard is a unit of subscriber-session demand: a name and a set of IP
// prefixes, bound to one service gateway user plane at a time.
type Shard struct {
	Name     string
	Metadata ShardMetadata

	Prefix       []string
	DesiredState DesiredState

	CurrentState           CurrentState
	AllocatedSessionCount  int64
	MaxSessionCount        int64
	CurrentTSFNetworkConn  map[string]string
	ServiceGroupsSupported []string
}

// Endpoint is an opaque descriptor from which only a Name is significant
// for network-connection matching.
type Endpoint struct {
	Name string
}

// ServiceGatewayUserPlane (SGUP) is a data-plane instance terminating
// user sessions. It is read-only to this reconciler.
type ServiceGatewayUserPlane struct {
	Name                  string
	ServiceGatewayName    string
	MaxSessionCount       int64
	AllocatedSessionCount int64
	DefaultEndpoint       Endpoint
	SupportedServiceGroup []string
}

// Load returns the SGUP's session occupancy ratio. The caller is
// responsible for excluding SGUPs with MaxSessionCount <= 0 before
// calling this: Load does not special-case division by zero.
func (u ServiceGatewayUserPlane) Load() float64 {
	return float64(u.AllocatedSessionCount) / float64(u.MaxSessionCount)
}

// TrafficSteeringFunction (TSF) forwards subscriber traffic into the
// correct SGUP. Read-only to this reconciler.
type TrafficSteeringFunction struct {
	Name            string
	DefaultEndpoint Endpoint
}

// ServiceGateway (SG) is a logical grouping of SGUPs, used only as an
// eligibility filter when selecting a least-loaded SGUP.
type ServiceGateway struct {
	Name string
}

// NetworkConnectionKind discriminates the four network-connection
// topologies. The wire form observed in the upstream data model uses two
// naming conventions for the same four variants (e.g. "SsPtpSpec" and
// "ss_ptp"); ParseNetworkConnectionKind accepts both.
type NetworkConnectionKind int

const (
	// KindUnknown is the zero value; a NetworkConnection carrying it
	// matches nothing.
	KindUnknown NetworkConnectionKind = iota
	// KindSSPTP is shared-SGUP point-to-point: one TSF endpoint, many
	// SGUP endpoints.
	KindSSPTP
	// KindSSMPTP is shared-SGUP multi-point-to-point: many TSF
	// endpoints, many SGUP endpoints.
	KindSSMPTP
	// KindMSPTP is multi-SGUP point-to-point: one TSF endpoint, one
	// SGUP endpoint.
	KindMSPTP
	// KindMSMPTP is multi-SGUP multi-point-to-point: many TSF
	// endpoints, one SGUP endpoint.
	KindMSMPTP
)

func (k NetworkConnectionKind) String() string {
	switch k {
	case KindSSPTP:
		return "ss-ptp"
	case KindSSMPTP:
		return "ss-mptp"
	case KindMSPTP:
		return "ms-ptp"
	case KindMSMPTP:
		return "ms-mptp"
	default:
		return "unknown"
	}
}

// ParseNetworkConnectionKind maps either of the two tag spellings seen on
// the wire ("SsPtpSpec"/"ss_ptp", and so on for the other three variants)
// to a NetworkConnectionKind.
func ParseNetworkConnectionKind(tag string) (NetworkConnectionKind, error) {
	switch tag {
	case "SsPtpSpec", "ss_ptp":
		return KindSSPTP, nil
	case "SsMptpSpec", "ss_mptp":
		return KindSSMPTP, nil
	case "MsPtpSpec", "ms_ptp":
		return KindMSPTP, nil
	case "MsMptpSpec", "ms_mptp":
		return KindMSMPTP, nil
	default:
		return KindUnknown, fmt.Errorf("upsf: unrecognized network connection tag %q", tag)
	}
}

// NetworkConnectionSpec is the tagged-union body of a NetworkConnection.
// Exactly one topology's endpoints are populated per Kind; callers branch
// structurally via Kind rather than probing which fields are non-empty.
type NetworkConnectionSpec struct {
	Kind NetworkConnectionKind

	// Populated for KindSSPTP and KindMSPTP (single TSF endpoint).
	TSFEndpoint Endpoint
	// Populated for KindSSMPTP and KindMSMPTP (many TSF endpoints).
	TSFEndpoints []Endpoint

	// Populated for KindMSPTP and KindMSMPTP (single SGUP endpoint).
	SGUPEndpoint Endpoint
	// Populated for KindSSPTP and KindSSMPTP (many SGUP endpoints).
	SGUPEndpoints []Endpoint
}

// tsfEndpointNames returns every TSF endpoint name this spec carries,
// regardless of topology.
func (s NetworkConnectionSpec) tsfEndpointNames() []string {
	if s.Kind == KindSSPTP || s.Kind == KindMSPTP {
		return []string{s.TSFEndpoint.Name}
	}
	names := make([]string, 0, len(s.TSFEndpoints))
	for _, ep := range s.TSFEndpoints {
		names = append(names, ep.Name)
	}
	return names
}

// sgupEndpointNames returns every SGUP endpoint name this spec carries,
// regardless of topology.
func (s NetworkConnectionSpec) sgupEndpointNames() []string {
	if s.Kind == KindMSPTP || s.Kind == KindMSMPTP {
		return []string{s.SGUPEndpoint.Name}
	}
	names := make([]string, 0, len(s.SGUPEndpoints))
	for _, ep := range s.SGUPEndpoints {
		names = append(names, ep.Name)
	}
	return names
}

// Matches reports whether this network connection stitches together the
// given SGUP endpoint name and TSF endpoint name, under its own topology
// rule (spec.md §4.4.d).
func (s NetworkConnectionSpec) Matches(sgupEndpointName, tsfEndpointName string) bool {
	tsfOK := false
	for _, name := range s.tsfEndpointNames() {
		if name == tsfEndpointName {
			tsfOK = true
			break
		}
	}
	if !tsfOK {
		return false
	}
	for _, name := range s.sgupEndpointNames() {
		if name == sgupEndpointName {
			return true
		}
	}
	return false
}

// NetworkConnection is a configured link between one or more TSF
// endpoints and one or more SGUP endpoints under a specific topology.
type NetworkConnection struct {
	Name string
	Spec NetworkConnectionSpec
}
