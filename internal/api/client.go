package ndapi

import (
	"context"
	"fmt"

	"connectrpc.com/connect"
)

// Client is a typed NeighborService client.
type Client struct {
	listNeighbors   *connect.Client[ListNeighborsRequest, ListNeighborsResponse]
	addNeighbor     *connect.Client[AddNeighborRequest, AddNeighborResponse]
	deleteNeighbor  *connect.Client[DeleteNeighborRequest, DeleteNeighborResponse]
	flushNeighbors  *connect.Client[FlushNeighborsRequest, FlushNeighborsResponse]
	resolveNeighbor *connect.Client[ResolveNeighborRequest, ResolveNeighborResponse]
	listRouters     *connect.Client[ListRoutersRequest, ListRoutersResponse]
	addRouter       *connect.Client[AddRouterRequest, AddRouterResponse]
	deleteRouter    *connect.Client[DeleteRouterRequest, DeleteRouterResponse]
	listPrefixes    *connect.Client[ListPrefixesRequest, ListPrefixesResponse]
	addPrefix       *connect.Client[AddPrefixRequest, AddPrefixResponse]
	deletePrefix    *connect.Client[DeletePrefixRequest, DeletePrefixResponse]
	checkOnLink     *connect.Client[CheckOnLinkRequest, CheckOnLinkResponse]
	listInterfaces  *connect.Client[ListInterfacesRequest, ListInterfacesResponse]
	listAddresses   *connect.Client[ListAddressesRequest, ListAddressesResponse]
	addAddress      *connect.Client[AddAddressRequest, AddAddressResponse]
	removeAddress   *connect.Client[RemoveAddressRequest, RemoveAddressResponse]
	setAddressState *connect.Client[SetAddressStateRequest, SetAddressStateResponse]
	ping            *connect.Client[PingRequest, PingResponse]
	watchEvents     *connect.Client[WatchEventsRequest, Event]
}

// NewClient creates a Client for the daemon at baseURL
// (e.g., "http://127.0.0.1:50061"). The JSON codec is installed ahead of
// opts.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	opts = append([]connect.ClientOption{connect.WithCodec(Codec())}, opts...)

	return &Client{
		listNeighbors:   connect.NewClient[ListNeighborsRequest, ListNeighborsResponse](httpClient, baseURL+ListNeighborsProcedure, opts...),
		addNeighbor:     connect.NewClient[AddNeighborRequest, AddNeighborResponse](httpClient, baseURL+AddNeighborProcedure, opts...),
		deleteNeighbor:  connect.NewClient[DeleteNeighborRequest, DeleteNeighborResponse](httpClient, baseURL+DeleteNeighborProcedure, opts...),
		flushNeighbors:  connect.NewClient[FlushNeighborsRequest, FlushNeighborsResponse](httpClient, baseURL+FlushNeighborsProcedure, opts...),
		resolveNeighbor: connect.NewClient[ResolveNeighborRequest, ResolveNeighborResponse](httpClient, baseURL+ResolveNeighborProcedure, opts...),
		listRouters:     connect.NewClient[ListRoutersRequest, ListRoutersResponse](httpClient, baseURL+ListRoutersProcedure, opts...),
		addRouter:       connect.NewClient[AddRouterRequest, AddRouterResponse](httpClient, baseURL+AddRouterProcedure, opts...),
		deleteRouter:    connect.NewClient[DeleteRouterRequest, DeleteRouterResponse](httpClient, baseURL+DeleteRouterProcedure, opts...),
		listPrefixes:    connect.NewClient[ListPrefixesRequest, ListPrefixesResponse](httpClient, baseURL+ListPrefixesProcedure, opts...),
		addPrefix:       connect.NewClient[AddPrefixRequest, AddPrefixResponse](httpClient, baseURL+AddPrefixProcedure, opts...),
		deletePrefix:    connect.NewClient[DeletePrefixRequest, DeletePrefixResponse](httpClient, baseURL+DeletePrefixProcedure, opts...),
		checkOnLink:     connect.NewClient[CheckOnLinkRequest, CheckOnLinkResponse](httpClient, baseURL+CheckOnLinkProcedure, opts...),
		listInterfaces:  connect.NewClient[ListInterfacesRequest, ListInterfacesResponse](httpClient, baseURL+ListInterfacesProcedure, opts...),
		listAddresses:   connect.NewClient[ListAddressesRequest, ListAddressesResponse](httpClient, baseURL+ListAddressesProcedure, opts...),
		addAddress:      connect.NewClient[AddAddressRequest, AddAddressResponse](httpClient, baseURL+AddAddressProcedure, opts...),
		removeAddress:   connect.NewClient[RemoveAddressRequest, RemoveAddressResponse](httpClient, baseURL+RemoveAddressProcedure, opts...),
		setAddressState: connect.NewClient[SetAddressStateRequest, SetAddressStateResponse](httpClient, baseURL+SetAddressStateProcedure, opts...),
		ping:            connect.NewClient[PingRequest, PingResponse](httpClient, baseURL+PingProcedure, opts...),
		watchEvents:     connect.NewClient[WatchEventsRequest, Event](httpClient, baseURL+WatchEventsProcedure, opts...),
	}
}

// call performs a unary RPC and unwraps the response message.
func call[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], req *Req) (*Res, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err //nolint:wrapcheck // connect errors carry the code callers inspect.
	}
	return resp.Msg, nil
}

// ListNeighbors calls gond.v1.NeighborService.ListNeighbors.
func (c *Client) ListNeighbors(ctx context.Context, req *ListNeighborsRequest) (*ListNeighborsResponse, error) {
	return call(ctx, c.listNeighbors, req)
}

// AddNeighbor calls gond.v1.NeighborService.AddNeighbor.
func (c *Client) AddNeighbor(ctx context.Context, req *AddNeighborRequest) (*AddNeighborResponse, error) {
	return call(ctx, c.addNeighbor, req)
}

// DeleteNeighbor calls gond.v1.NeighborService.DeleteNeighbor.
func (c *Client) DeleteNeighbor(ctx context.Context, req *DeleteNeighborRequest) (*DeleteNeighborResponse, error) {
	return call(ctx, c.deleteNeighbor, req)
}

// FlushNeighbors calls gond.v1.NeighborService.FlushNeighbors.
func (c *Client) FlushNeighbors(ctx context.Context, req *FlushNeighborsRequest) (*FlushNeighborsResponse, error) {
	return call(ctx, c.flushNeighbors, req)
}

// ResolveNeighbor calls gond.v1.NeighborService.ResolveNeighbor.
func (c *Client) ResolveNeighbor(ctx context.Context, req *ResolveNeighborRequest) (*ResolveNeighborResponse, error) {
	return call(ctx, c.resolveNeighbor, req)
}

// ListRouters calls gond.v1.NeighborService.ListRouters.
func (c *Client) ListRouters(ctx context.Context, req *ListRoutersRequest) (*ListRoutersResponse, error) {
	return call(ctx, c.listRouters, req)
}

// AddRouter calls gond.v1.NeighborService.AddRouter.
func (c *Client) AddRouter(ctx context.Context, req *AddRouterRequest) (*AddRouterResponse, error) {
	return call(ctx, c.addRouter, req)
}

// DeleteRouter calls gond.v1.NeighborService.DeleteRouter.
func (c *Client) DeleteRouter(ctx context.Context, req *DeleteRouterRequest) (*DeleteRouterResponse, error) {
	return call(ctx, c.deleteRouter, req)
}

// ListPrefixes calls gond.v1.NeighborService.ListPrefixes.
func (c *Client) ListPrefixes(ctx context.Context, req *ListPrefixesRequest) (*ListPrefixesResponse, error) {
	return call(ctx, c.listPrefixes, req)
}

// AddPrefix calls gond.v1.NeighborService.AddPrefix.
func (c *Client) AddPrefix(ctx context.Context, req *AddPrefixRequest) (*AddPrefixResponse, error) {
	return call(ctx, c.addPrefix, req)
}

// DeletePrefix calls gond.v1.NeighborService.DeletePrefix.
func (c *Client) DeletePrefix(ctx context.Context, req *DeletePrefixRequest) (*DeletePrefixResponse, error) {
	return call(ctx, c.deletePrefix, req)
}

// CheckOnLink calls gond.v1.NeighborService.CheckOnLink.
func (c *Client) CheckOnLink(ctx context.Context, req *CheckOnLinkRequest) (*CheckOnLinkResponse, error) {
	return call(ctx, c.checkOnLink, req)
}

// ListInterfaces calls gond.v1.NeighborService.ListInterfaces.
func (c *Client) ListInterfaces(ctx context.Context, req *ListInterfacesRequest) (*ListInterfacesResponse, error) {
	return call(ctx, c.listInterfaces, req)
}

// ListAddresses calls gond.v1.NeighborService.ListAddresses.
func (c *Client) ListAddresses(ctx context.Context, req *ListAddressesRequest) (*ListAddressesResponse, error) {
	return call(ctx, c.listAddresses, req)
}

// AddAddress calls gond.v1.NeighborService.AddAddress.
func (c *Client) AddAddress(ctx context.Context, req *AddAddressRequest) (*AddAddressResponse, error) {
	return call(ctx, c.addAddress, req)
}

// RemoveAddress calls gond.v1.NeighborService.RemoveAddress.
func (c *Client) RemoveAddress(ctx context.Context, req *RemoveAddressRequest) (*RemoveAddressResponse, error) {
	return call(ctx, c.removeAddress, req)
}

// SetAddressState calls gond.v1.NeighborService.SetAddressState.
func (c *Client) SetAddressState(ctx context.Context, req *SetAddressStateRequest) (*SetAddressStateResponse, error) {
	return call(ctx, c.setAddressState, req)
}

// Ping calls gond.v1.NeighborService.Ping.
func (c *Client) Ping(ctx context.Context, req *PingRequest) (*PingResponse, error) {
	return call(ctx, c.ping, req)
}

// WatchEvents opens the neighbor event stream. The caller must Close it.
func (c *Client) WatchEvents(ctx context.Context, req *WatchEventsRequest) (*connect.ServerStreamForClient[Event], error) {
	stream, err := c.watchEvents.CallServerStream(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, fmt.Errorf("watch events: %w", err)
	}
	return stream, nil
}
