package upsf

// The wire* types below are the JSON-tagged request/response shapes sent
// over the jsonCodec transport (see codec.go). They intentionally mirror
// the domain types in types.go field-for-field; keeping them separate
// means a future switch to a real generated protobuf client only touches
// this file and client.go, never the reconciliation logic in
// internal/mapper or internal/materializer.

type wireEndpoint struct {
	Name string `json:"name"`
}

func toWireEndpoint(e Endpoint) wireEndpoint { return wireEndpoint{Name: e.Name} }

func fromWireEndpoint(e wireEndpoint) Endpoint { return Endpoint{Name: e.Name} }

type wireNetworkConnectionSpec struct {
	Kind          string         `json:"kind"`
	TSFEndpoint   wireEndpoint   `json:"tsf_endpoint,omitempty"`
	TSFEndpoints  []wireEndpoint `json:"tsf_endpoints,omitempty"`
	SGUPEndpoint  wireEndpoint   `json:"sgup_endpoint,omitempty"`
	SGUPEndpoints []wireEndpoint `json:"sgup_endpoints,omitempty"`
}

type wireNetworkConnection struct {
	Name string                    `json:"name"`
	Spec wireNetworkConnectionSpec `json:"spec"`
}

func fromWireNetworkConnection(nc wireNetworkConnection) (NetworkConnection, error) {
	kind, err := ParseNetworkConnectionKind(nc.Spec.Kind)
	if err != nil {
		return NetworkConnection{}, err
	}
	spec := NetworkConnectionSpec{Kind: kind}
	switch kind {
	case KindSSPTP:
		spec.TSFEndpoint = fromWireEndpoint(nc.Spec.TSFEndpoint)
		spec.SGUPEndpoints = fromWireEndpoints(nc.Spec.SGUPEndpoints)
	case KindSSMPTP:
		spec.TSFEndpoints = fromWireEndpoints(nc.Spec.TSFEndpoints)
		spec.SGUPEndpoints = fromWireEndpoints(nc.Spec.SGUPEndpoints)
	case KindMSPTP:
		spec.TSFEndpoint = fromWireEndpoint(nc.Spec.TSFEndpoint)
		spec.SGUPEndpoint = fromWireEndpoint(nc.Spec.SGUPEndpoint)
	case KindMSMPTP:
		spec.TSFEndpoints = fromWireEndpoints(nc.Spec.TSFEndpoints)
		spec.SGUPEndpoint = fromWireEndpoint(nc.Spec.SGUPEndpoint)
	}
	return NetworkConnection{Name: nc.Name, Spec: spec}, nil
}

func fromWireEndpoints(in []wireEndpoint) []Endpoint {
	out := make([]Endpoint, 0, len(in))
	for _, e := range in {
		out = append(out, fromWireEndpoint(e))
	}
	return out
}

type wireSGUP struct {
	Name                  string       `json:"name"`
	ServiceGatewayName    string       `json:"service_gateway_name"`
	MaxSessionCount       int64        `json:"max_session_count"`
	AllocatedSessionCount int64        `json:"allocated_session_count"`
	DefaultEndpoint       wireEndpoint `json:"default_endpoint"`
	SupportedServiceGroup []string     `json:"supported_service_group,omitempty"`
}

func fromWireSGUP(s wireSGUP) ServiceGatewayUserPlane {
	return ServiceGatewayUserPlane{
		Name:                  s.Name,
		ServiceGatewayName:    s.ServiceGatewayName,
		MaxSessionCount:       s.MaxSessionCount,
		AllocatedSessionCount: s.AllocatedSessionCount,
		DefaultEndpoint:       fromWireEndpoint(s.DefaultEndpoint),
		SupportedServiceGroup: s.SupportedServiceGroup,
	}
}

type wireTSF struct {
	Name            string       `json:"name"`
	DefaultEndpoint wireEndpoint `json:"default_endpoint"`
}

func fromWireTSF(t wireTSF) TrafficSteeringFunction {
	return TrafficSteeringFunction{Name: t.Name, DefaultEndpoint: fromWireEndpoint(t.DefaultEndpoint)}
}

type wireSG struct {
	Name string `json:"name"`
}

func fromWireSG(sg wireSG) ServiceGateway { return ServiceGateway{Name: sg.Name} }

type wireShard struct {
	Name                   string            `json:"name"`
	DerivedState           int32             `json:"derived_state"`
	Prefix                 []string          `json:"prefix,omitempty"`
	DesiredSGUP            string            `json:"desired_service_gateway_user_plane"`
	DesiredNetworkConn     []string          `json:"desired_network_connection,omitempty"`
	CurrentSGUP            string            `json:"current_service_gateway_user_plane"`
	AllocatedSessionCount  int64             `json:"allocated_session_count"`
	MaxSessionCount        int64             `json:"max_session_count"`
	CurrentTSFNetworkConn  map[string]string `json:"current_tsf_network_connection,omitempty"`
	ServiceGroupsSupported []string          `json:"service_groups_supported,omitempty"`
}

func fromWireShard(s wireShard) Shard {
	return Shard{
		Name:     s.Name,
		Metadata: ShardMetadata{DerivedState: DerivedState(s.DerivedState)},
		Prefix:   s.Prefix,
		DesiredState: DesiredState{
			ServiceGatewayUserPlane: s.DesiredSGUP,
			NetworkConnection:       s.DesiredNetworkConn,
		},
		CurrentState:           CurrentState{ServiceGatewayUserPlane: s.CurrentSGUP},
		AllocatedSessionCount:  s.AllocatedSessionCount,
		MaxSessionCount:        s.MaxSessionCount,
		CurrentTSFNetworkConn:  s.CurrentTSFNetworkConn,
		ServiceGroupsSupported: s.ServiceGroupsSupported,
	}
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

type emptyRequest struct{}

type getByNameRequest struct {
	Name string `json:"name"`
}

type createShardRequest struct {
	Name                           string   `json:"name"`
	VirtualMAC                     string   `json:"virtual_mac"`
	AllocatedSessionCount          int64    `json:"allocated_session_count"`
	MaxSessionCount                int64    `json:"max_session_count"`
	Prefix                         []string `json:"prefix"`
	DesiredServiceGatewayUserPlane string   `json:"desired_service_gateway_user_plane,omitempty"`
}

type updateShardRequest struct {
	Name                           string            `json:"name"`
	DesiredServiceGatewayUserPlane *string           `json:"desired_service_gateway_user_plane,omitempty"`
	DesiredNetworkConnection       []string           `json:"desired_network_connection,omitempty"`
	CurrentTSFNetworkConnection    map[string]string `json:"current_tsf_network_connection,omitempty"`
	ServiceGroupsSupported         []string          `json:"service_groups_supported,omitempty"`
	Prefix                         []string          `json:"prefix,omitempty"`
	ListMergeStrategy              string            `json:"list_merge_strategy,omitempty"`
}

type watchRequest struct {
	Kinds []string `json:"kinds"`
}

type wireWatchEvent struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

func eventKindToWire(k EventKind) string {
	switch k {
	case EventKindSGUP:
		return "service_gateway_user_plane"
	case EventKindTSF:
		return "traffic_steering_function"
	case EventKindNetworkConnection:
		return "network_connection"
	case EventKindShard:
		return "shard"
	default:
		return ""
	}
}

func eventKindFromWire(s string) EventKind {
	switch s {
	case "service_gateway_user_plane":
		return EventKindSGUP
	case "traffic_steering_function":
		return EventKindTSF
	case "network_connection":
		return EventKindNetworkConnection
	case "shard":
		return EventKindShard
	default:
		return EventKindUnknown
	}
}
