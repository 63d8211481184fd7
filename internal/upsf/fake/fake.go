// Package fake provides an in-memory upsf.Gateway for exercising
// internal/mapper, internal/materializer and internal/controlloop without
// a live UPSF server, the same way consul/state_store_test.go drives its
// FSM against an in-memory store rather than a real cluster.
package fake

import (
	"context"
	"sync"

	"github.com/bisdn-oss/upsf-shard-reconciler/internal/upsf"
)

// Gateway is a mutex-protected, in-memory implementation of upsf.Gateway.
// It preserves insertion order on List* calls, since spec.md's tie-break
// and FIFO rules (§4.3 step 6, §4.4.b, §4.4.d) are defined in terms of
// "the store's natural iteration order".
type Gateway struct {
	mu sync.Mutex

	shards     map[string]upsf.Shard
	shardOrder []string
	sgups      map[string]upsf.ServiceGatewayUserPlane
	sgupOrder  []string
	tsfs       map[string]upsf.TrafficSteeringFunction
	tsfOrder   []string
	sgs        map[string]upsf.ServiceGateway
	sgOrder    []string
	ncs        map[string]upsf.NetworkConnection
	ncOrder    []string

	// ListErr, when set, is returned by every List* call and by GetSGUP;
	// Watch, CreateShard and UpdateShard ignore it.
	ListErr error

	subs []chan upsf.WatchEvent

	// CreateShardCalls and UpdateShardCalls record every call, in order,
	// for assertions.
	CreateShardCalls []upsf.CreateShardParams
	UpdateShardCalls []upsf.UpdateShardParams
}

// New returns an empty Gateway ready for use.
func New() *Gateway {
	return &Gateway{
		shards: map[string]upsf.Shard{},
		sgups:  map[string]upsf.ServiceGatewayUserPlane{},
		tsfs:   map[string]upsf.TrafficSteeringFunction{},
		sgs:    map[string]upsf.ServiceGateway{},
		ncs:    map[string]upsf.NetworkConnection{},
	}
}

// PutShard upserts a shard, appending to the iteration order on first
// insert only.
func (g *Gateway) PutShard(s upsf.Shard) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.shards[s.Name]; !exists {
		g.shardOrder = append(g.shardOrder, s.Name)
	}
	g.shards[s.Name] = s
}

// PutSGUP upserts a service gateway user plane.
func (g *Gateway) PutSGUP(u upsf.ServiceGatewayUserPlane) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.sgups[u.Name]; !exists {
		g.sgupOrder = append(g.sgupOrder, u.Name)
	}
	g.sgups[u.Name] = u
}

// PutTSF upserts a traffic steering function.
func (g *Gateway) PutTSF(t upsf.TrafficSteeringFunction) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.tsfs[t.Name]; !exists {
		g.tsfOrder = append(g.tsfOrder, t.Name)
	}
	g.tsfs[t.Name] = t
}

// PutSG upserts a service gateway.
func (g *Gateway) PutSG(sg upsf.ServiceGateway) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.sgs[sg.Name]; !exists {
		g.sgOrder = append(g.sgOrder, sg.Name)
	}
	g.sgs[sg.Name] = sg
}

// PutNC upserts a network connection.
func (g *Gateway) PutNC(nc upsf.NetworkConnection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.ncs[nc.Name]; !exists {
		g.ncOrder = append(g.ncOrder, nc.Name)
	}
	g.ncs[nc.Name] = nc
}

// Shard returns a copy of the named shard and whether it exists.
func (g *Gateway) Shard(name string) (upsf.Shard, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.shards[name]
	return s, ok
}

func (g *Gateway) ListShards(ctx context.Context) ([]upsf.Shard, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ListErr != nil {
		return nil, g.ListErr
	}
	out := make([]upsf.Shard, 0, len(g.shardOrder))
	for _, n := range g.shardOrder {
		out = append(out, g.shards[n])
	}
	return out, nil
}

func (g *Gateway) ListSGUPs(ctx context.Context) ([]upsf.ServiceGatewayUserPlane, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ListErr != nil {
		return nil, g.ListErr
	}
	out := make([]upsf.ServiceGatewayUserPlane, 0, len(g.sgupOrder))
	for _, n := range g.sgupOrder {
		out = append(out, g.sgups[n])
	}
	return out, nil
}

func (g *Gateway) ListTSFs(ctx context.Context) ([]upsf.TrafficSteeringFunction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ListErr != nil {
		return nil, g.ListErr
	}
	out := make([]upsf.TrafficSteeringFunction, 0, len(g.tsfOrder))
	for _, n := range g.tsfOrder {
		out = append(out, g.tsfs[n])
	}
	return out, nil
}

func (g *Gateway) ListSGs(ctx context.Context) ([]upsf.ServiceGateway, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ListErr != nil {
		return nil, g.ListErr
	}
	out := make([]upsf.ServiceGateway, 0, len(g.sgOrder))
	for _, n := range g.sgOrder {
		out = append(out, g.sgs[n])
	}
	return out, nil
}

func (g *Gateway) ListNCs(ctx context.Context) ([]upsf.NetworkConnection, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ListErr != nil {
		return nil, g.ListErr
	}
	out := make([]upsf.NetworkConnection, 0, len(g.ncOrder))
	for _, n := range g.ncOrder {
		out = append(out, g.ncs[n])
	}
	return out, nil
}

func (g *Gateway) GetSGUP(ctx context.Context, name string) (upsf.ServiceGatewayUserPlane, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ListErr != nil {
		return upsf.ServiceGatewayUserPlane{}, g.ListErr
	}
	u, ok := g.sgups[name]
	if !ok {
		return upsf.ServiceGatewayUserPlane{}, &upsf.TransientError{Op: "GetSGUP", Err: errNotFound(name)}
	}
	return u, nil
}

func (g *Gateway) CreateShard(ctx context.Context, params upsf.CreateShardParams) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CreateShardCalls = append(g.CreateShardCalls, params)
	if _, exists := g.shards[params.Name]; !exists {
		g.shardOrder = append(g.shardOrder, params.Name)
	}
	g.shards[params.Name] = upsf.Shard{
		Name:                  params.Name,
		Prefix:                params.Prefix,
		AllocatedSessionCount: params.AllocatedSessionCount,
		MaxSessionCount:       params.MaxSessionCount,
		DesiredState: upsf.DesiredState{
			ServiceGatewayUserPlane: params.DesiredServiceGatewayUserPlane,
		},
	}
	return nil
}

func (g *Gateway) UpdateShard(ctx context.Context, params upsf.UpdateShardParams) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.UpdateShardCalls = append(g.UpdateShardCalls, params)

	s, ok := g.shards[params.Name]
	if !ok {
		return &upsf.TransientError{Op: "UpdateShard", Err: errNotFound(params.Name)}
	}
	if params.DesiredServiceGatewayUserPlane != nil {
		s.DesiredState.ServiceGatewayUserPlane = *params.DesiredServiceGatewayUserPlane
	}
	// The reconciler always sets ListMergeStrategyReplace; model the
	// store's replace semantics unconditionally (DESIGN.md resolves the
	// "write clearing under no SGUPs" open question this way).
	s.DesiredState.NetworkConnection = params.DesiredNetworkConnection
	s.CurrentTSFNetworkConn = params.CurrentTSFNetworkConnection
	s.ServiceGroupsSupported = params.ServiceGroupsSupported
	if params.Prefix != nil {
		s.Prefix = params.Prefix
	}
	g.shards[params.Name] = s
	return nil
}

// Watch returns a channel fed by Notify calls. Cancelling ctx unsubscribes
// and closes the channel, mirroring the real client's behavior.
func (g *Gateway) Watch(ctx context.Context, kinds []upsf.EventKind) (<-chan upsf.WatchEvent, error) {
	ch := make(chan upsf.WatchEvent, 16)
	g.mu.Lock()
	g.subs = append(g.subs, ch)
	g.mu.Unlock()

	go func() {
		<-ctx.Done()
		g.mu.Lock()
		defer g.mu.Unlock()
		for i, c := range g.subs {
			if c == ch {
				g.subs = append(g.subs[:i], g.subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

// Notify pushes a watch event to every active subscriber, as the real
// store would when an item changes.
func (g *Gateway) Notify(ev upsf.WatchEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, ch := range g.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

type notFoundError string

func (e notFoundError) Error() string { return "fake upsf: not found: " + string(e) }

func errNotFound(name string) error { return notFoundError(name) }
