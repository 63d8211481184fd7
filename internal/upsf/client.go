package upsf

import (
	"context"
	"fmt"
	"io"

	"github.com/hashicorp/go-hclog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	serviceName       = "upsf.UPSF"
	methodListShards  = "/" + serviceName + "/ListShards"
	methodListSGUPs   = "/" + serviceName + "/ListServiceGatewayUserPlanes"
	methodListTSFs    = "/" + serviceName + "/ListTrafficSteeringFunctions"
	methodListSGs     = "/" + serviceName + "/ListServiceGateways"
	methodListNCs     = "/" + serviceName + "/ListNetworkConnections"
	methodGetSGUP     = "/" + serviceName + "/GetServiceGatewayUserPlane"
	methodCreateShard = "/" + serviceName + "/CreateShard"
	methodUpdateShard = "/" + serviceName + "/UpdateShard"
	methodWatch       = "/" + serviceName + "/Watch"
)

// Client is the gRPC-backed Gateway implementation. It never caches: each
// Gateway call is a fresh unary RPC (or, for Watch, a fresh stream).
type Client struct {
	conn   *grpc.ClientConn
	logger hclog.Logger
}

// Dial opens a gRPC connection to the UPSF store at address
// ("host:port"). The connection uses plaintext transport (insecure
// credentials) and carries no authentication (spec.md has no auth
// surface for the store).
func Dial(address string, logger hclog.Logger) (*Client, error) {
	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("upsf: dial %s: %w", address, err)
	}
	return &Client{conn: conn, logger: logger.Named("upsf")}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

func callOpts() []grpc.CallOption {
	return []grpc.CallOption{grpc.CallContentSubtype(jsonCodecName)}
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	if err := c.conn.Invoke(ctx, method, req, resp, callOpts()...); err != nil {
		return &TransientError{Op: method, Err: err}
	}
	return nil
}

func (c *Client) ListShards(ctx context.Context) ([]Shard, error) {
	var resp listResponse[wireShard]
	if err := c.invoke(ctx, methodListShards, &emptyRequest{}, &resp); err != nil {
		return nil, err
	}
	shards := make([]Shard, 0, len(resp.Items))
	for _, s := range resp.Items {
		shards = append(shards, fromWireShard(s))
	}
	return shards, nil
}

func (c *Client) ListSGUPs(ctx context.Context) ([]ServiceGatewayUserPlane, error) {
	var resp listResponse[wireSGUP]
	if err := c.invoke(ctx, methodListSGUPs, &emptyRequest{}, &resp); err != nil {
		return nil, err
	}
	ups := make([]ServiceGatewayUserPlane, 0, len(resp.Items))
	for _, u := range resp.Items {
		ups = append(ups, fromWireSGUP(u))
	}
	return ups, nil
}

func (c *Client) ListTSFs(ctx context.Context) ([]TrafficSteeringFunction, error) {
	var resp listResponse[wireTSF]
	if err := c.invoke(ctx, methodListTSFs, &emptyRequest{}, &resp); err != nil {
		return nil, err
	}
	tsfs := make([]TrafficSteeringFunction, 0, len(resp.Items))
	for _, t := range resp.Items {
		tsfs = append(tsfs, fromWireTSF(t))
	}
	return tsfs, nil
}

func (c *Client) ListSGs(ctx context.Context) ([]ServiceGateway, error) {
	var resp listResponse[wireSG]
	if err := c.invoke(ctx, methodListSGs, &emptyRequest{}, &resp); err != nil {
		return nil, err
	}
	sgs := make([]ServiceGateway, 0, len(resp.Items))
	for _, sg := range resp.Items {
		sgs = append(sgs, fromWireSG(sg))
	}
	return sgs, nil
}

func (c *Client) ListNCs(ctx context.Context) ([]NetworkConnection, error) {
	var resp listResponse[wireNetworkConnection]
	if err := c.invoke(ctx, methodListNCs, &emptyRequest{}, &resp); err != nil {
		return nil, err
	}
	ncs := make([]NetworkConnection, 0, len(resp.Items))
	for _, w := range resp.Items {
		nc, err := fromWireNetworkConnection(w)
		if err != nil {
			// A single malformed NC should not fail the whole snapshot;
			// the mapper simply never matches against it.
			c.logger.Warn("skipping network connection with unrecognized topology", "name", w.Name, "error", err)
			continue
		}
		ncs = append(ncs, nc)
	}
	return ncs, nil
}

func (c *Client) GetSGUP(ctx context.Context, name string) (ServiceGatewayUserPlane, error) {
	var resp wireSGUP
	if err := c.invoke(ctx, methodGetSGUP, &getByNameRequest{Name: name}, &resp); err != nil {
		return ServiceGatewayUserPlane{}, err
	}
	return fromWireSGUP(resp), nil
}

func (c *Client) CreateShard(ctx context.Context, params CreateShardParams) error {
	req := createShardRequest{
		Name:                           params.Name,
		VirtualMAC:                     params.VirtualMAC,
		AllocatedSessionCount:          params.AllocatedSessionCount,
		MaxSessionCount:                params.MaxSessionCount,
		Prefix:                         params.Prefix,
		DesiredServiceGatewayUserPlane: params.DesiredServiceGatewayUserPlane,
	}
	var resp wireShard
	return c.invoke(ctx, methodCreateShard, &req, &resp)
}

func (c *Client) UpdateShard(ctx context.Context, params UpdateShardParams) error {
	req := updateShardRequest{
		Name:                        params.Name,
		DesiredNetworkConnection:    params.DesiredNetworkConnection,
		CurrentTSFNetworkConnection: params.CurrentTSFNetworkConnection,
		ServiceGroupsSupported:      params.ServiceGroupsSupported,
		Prefix:                      params.Prefix,
	}
	if params.DesiredServiceGatewayUserPlane != nil {
		req.DesiredServiceGatewayUserPlane = params.DesiredServiceGatewayUserPlane
	}
	if params.ListMergeStrategyReplace {
		req.ListMergeStrategy = "replace"
	}
	var resp wireShard
	return c.invoke(ctx, methodUpdateShard, &req, &resp)
}

var watchStreamDesc = &grpc.StreamDesc{
	StreamName:    "Watch",
	ServerStreams: true,
}

func (c *Client) Watch(ctx context.Context, kinds []EventKind) (<-chan WatchEvent, error) {
	req := watchRequest{Kinds: make([]string, 0, len(kinds))}
	for _, k := range kinds {
		if tag := eventKindToWire(k); tag != "" {
			req.Kinds = append(req.Kinds, tag)
		}
	}

	stream, err := c.conn.NewStream(ctx, watchStreamDesc, methodWatch, callOpts()...)
	if err != nil {
		return nil, &TransientError{Op: "Watch", Err: err}
	}
	if err := stream.SendMsg(&req); err != nil {
		return nil, &TransientError{Op: "Watch", Err: err}
	}
	if err := stream.CloseSend(); err != nil {
		return nil, &TransientError{Op: "Watch", Err: err}
	}

	events := make(chan WatchEvent)
	go func() {
		defer close(events)
		for {
			var ev wireWatchEvent
			if err := stream.RecvMsg(&ev); err != nil {
				if err != io.EOF {
					c.logger.Warn("watch stream ended", "error", err)
				}
				return
			}
			kind := eventKindFromWire(ev.Kind)
			if kind == EventKindUnknown || ev.Name == "" {
				continue
			}
			select {
			case events <- WatchEvent{Kind: kind, Name: ev.Name}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}
