// Package ndapi defines the gond admin API: the NeighborService procedure
// names, its request and response messages, the JSON codec used on the
// wire and a typed ConnectRPC client.
//
// The messages are plain Go structs. Both ends install Codec so that
// connect marshals them with encoding/json instead of protobuf.
package ndapi

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
)

// ServiceName is the fully-qualified name of the NeighborService.
const ServiceName = "gond.v1.NeighborService"

// Procedure paths of the NeighborService RPCs.
const (
	ListNeighborsProcedure   = "/" + ServiceName + "/ListNeighbors"
	AddNeighborProcedure     = "/" + ServiceName + "/AddNeighbor"
	DeleteNeighborProcedure  = "/" + ServiceName + "/DeleteNeighbor"
	FlushNeighborsProcedure  = "/" + ServiceName + "/FlushNeighbors"
	ResolveNeighborProcedure = "/" + ServiceName + "/ResolveNeighbor"
	ListRoutersProcedure     = "/" + ServiceName + "/ListRouters"
	AddRouterProcedure       = "/" + ServiceName + "/AddRouter"
	DeleteRouterProcedure    = "/" + ServiceName + "/DeleteRouter"
	ListPrefixesProcedure    = "/" + ServiceName + "/ListPrefixes"
	AddPrefixProcedure       = "/" + ServiceName + "/AddPrefix"
	DeletePrefixProcedure    = "/" + ServiceName + "/DeletePrefix"
	CheckOnLinkProcedure     = "/" + ServiceName + "/CheckOnLink"
	ListInterfacesProcedure  = "/" + ServiceName + "/ListInterfaces"
	ListAddressesProcedure   = "/" + ServiceName + "/ListAddresses"
	AddAddressProcedure      = "/" + ServiceName + "/AddAddress"
	RemoveAddressProcedure   = "/" + ServiceName + "/RemoveAddress"
	SetAddressStateProcedure = "/" + ServiceName + "/SetAddressState"
	PingProcedure            = "/" + ServiceName + "/Ping"
	WatchEventsProcedure     = "/" + ServiceName + "/WatchEvents"
)

// NeighborServiceHandler is implemented by the daemon's admin server.
type NeighborServiceHandler interface {
	ListNeighbors(context.Context, *ListNeighborsRequest) (*ListNeighborsResponse, error)
	AddNeighbor(context.Context, *AddNeighborRequest) (*AddNeighborResponse, error)
	DeleteNeighbor(context.Context, *DeleteNeighborRequest) (*DeleteNeighborResponse, error)
	FlushNeighbors(context.Context, *FlushNeighborsRequest) (*FlushNeighborsResponse, error)
	ResolveNeighbor(context.Context, *ResolveNeighborRequest) (*ResolveNeighborResponse, error)
	ListRouters(context.Context, *ListRoutersRequest) (*ListRoutersResponse, error)
	AddRouter(context.Context, *AddRouterRequest) (*AddRouterResponse, error)
	DeleteRouter(context.Context, *DeleteRouterRequest) (*DeleteRouterResponse, error)
	ListPrefixes(context.Context, *ListPrefixesRequest) (*ListPrefixesResponse, error)
	AddPrefix(context.Context, *AddPrefixRequest) (*AddPrefixResponse, error)
	DeletePrefix(context.Context, *DeletePrefixRequest) (*DeletePrefixResponse, error)
	CheckOnLink(context.Context, *CheckOnLinkRequest) (*CheckOnLinkResponse, error)
	ListInterfaces(context.Context, *ListInterfacesRequest) (*ListInterfacesResponse, error)
	ListAddresses(context.Context, *ListAddressesRequest) (*ListAddressesResponse, error)
	AddAddress(context.Context, *AddAddressRequest) (*AddAddressResponse, error)
	RemoveAddress(context.Context, *RemoveAddressRequest) (*RemoveAddressResponse, error)
	SetAddressState(context.Context, *SetAddressStateRequest) (*SetAddressStateResponse, error)
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	WatchEvents(context.Context, *WatchEventsRequest, *connect.ServerStream[Event]) error
}

// NewNeighborServiceHandler builds an HTTP handler serving every
// NeighborService procedure. It returns the path to mount the handler on.
// The JSON codec is installed ahead of opts.
func NewNeighborServiceHandler(svc NeighborServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec())}, opts...)

	watchEvents := connect.NewServerStreamHandler(WatchEventsProcedure,
		func(ctx context.Context, req *connect.Request[WatchEventsRequest], stream *connect.ServerStream[Event]) error {
			return svc.WatchEvents(ctx, req.Msg, stream)
		}, opts...)

	routes := map[string]http.Handler{
		ListNeighborsProcedure:   unaryHandler(ListNeighborsProcedure, svc.ListNeighbors, opts),
		AddNeighborProcedure:     unaryHandler(AddNeighborProcedure, svc.AddNeighbor, opts),
		DeleteNeighborProcedure:  unaryHandler(DeleteNeighborProcedure, svc.DeleteNeighbor, opts),
		FlushNeighborsProcedure:  unaryHandler(FlushNeighborsProcedure, svc.FlushNeighbors, opts),
		ResolveNeighborProcedure: unaryHandler(ResolveNeighborProcedure, svc.ResolveNeighbor, opts),
		ListRoutersProcedure:     unaryHandler(ListRoutersProcedure, svc.ListRouters, opts),
		AddRouterProcedure:       unaryHandler(AddRouterProcedure, svc.AddRouter, opts),
		DeleteRouterProcedure:    unaryHandler(DeleteRouterProcedure, svc.DeleteRouter, opts),
		ListPrefixesProcedure:    unaryHandler(ListPrefixesProcedure, svc.ListPrefixes, opts),
		AddPrefixProcedure:       unaryHandler(AddPrefixProcedure, svc.AddPrefix, opts),
		DeletePrefixProcedure:    unaryHandler(DeletePrefixProcedure, svc.DeletePrefix, opts),
		CheckOnLinkProcedure:     unaryHandler(CheckOnLinkProcedure, svc.CheckOnLink, opts),
		ListInterfacesProcedure:  unaryHandler(ListInterfacesProcedure, svc.ListInterfaces, opts),
		ListAddressesProcedure:   unaryHandler(ListAddressesProcedure, svc.ListAddresses, opts),
		AddAddressProcedure:      unaryHandler(AddAddressProcedure, svc.AddAddress, opts),
		RemoveAddressProcedure:   unaryHandler(RemoveAddressProcedure, svc.RemoveAddress, opts),
		SetAddressStateProcedure: unaryHandler(SetAddressStateProcedure, svc.SetAddressState, opts),
		PingProcedure:            unaryHandler(PingProcedure, svc.Ping, opts),
		WatchEventsProcedure:     watchEvents,
	}

	return "/" + ServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// unaryHandler adapts a plain method to a connect unary handler.
func unaryHandler[Req, Res any](
	procedure string,
	fn func(context.Context, *Req) (*Res, error),
	opts []connect.HandlerOption,
) http.Handler {
	return connect.NewUnaryHandler(procedure,
		func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
			res, err := fn(ctx, req.Msg)
			if err != nil {
				return nil, err
			}
			return connect.NewResponse(res), nil
		}, opts...)
}

// -------------------------------------------------------------------------
// UnimplementedNeighborServiceHandler
// -------------------------------------------------------------------------

// UnimplementedNeighborServiceHandler returns CodeUnimplemented from
// every method. Embed it to implement a subset of the service.
type UnimplementedNeighborServiceHandler struct{}

var _ NeighborServiceHandler = UnimplementedNeighborServiceHandler{}

func unimplemented(procedure string) error {
	return connect.NewError(connect.CodeUnimplemented, errors.New(procedure+" is not implemented"))
}

func (UnimplementedNeighborServiceHandler) ListNeighbors(context.Context, *ListNeighborsRequest) (*ListNeighborsResponse, error) {
	return nil, unimplemented(ListNeighborsProcedure)
}

func (UnimplementedNeighborServiceHandler) AddNeighbor(context.Context, *AddNeighborRequest) (*AddNeighborResponse, error) {
	return nil, unimplemented(AddNeighborProcedure)
}

func (UnimplementedNeighborServiceHandler) DeleteNeighbor(context.Context, *DeleteNeighborRequest) (*DeleteNeighborResponse, error) {
	return nil, unimplemented(DeleteNeighborProcedure)
}

func (UnimplementedNeighborServiceHandler) FlushNeighbors(context.Context, *FlushNeighborsRequest) (*FlushNeighborsResponse, error) {
	return nil, unimplemented(FlushNeighborsProcedure)
}

func (UnimplementedNeighborServiceHandler) ResolveNeighbor(context.Context, *ResolveNeighborRequest) (*ResolveNeighborResponse, error) {
	return nil, unimplemented(ResolveNeighborProcedure)
}

func (UnimplementedNeighborServiceHandler) ListRouters(context.Context, *ListRoutersRequest) (*ListRoutersResponse, error) {
	return nil, unimplemented(ListRoutersProcedure)
}

func (UnimplementedNeighborServiceHandler) AddRouter(context.Context, *AddRouterRequest) (*AddRouterResponse, error) {
	return nil, unimplemented(AddRouterProcedure)
}

func (UnimplementedNeighborServiceHandler) DeleteRouter(context.Context, *DeleteRouterRequest) (*DeleteRouterResponse, error) {
	return nil, unimplemented(DeleteRouterProcedure)
}

func (UnimplementedNeighborServiceHandler) ListPrefixes(context.Context, *ListPrefixesRequest) (*ListPrefixesResponse, error) {
	return nil, unimplemented(ListPrefixesProcedure)
}

func (UnimplementedNeighborServiceHandler) AddPrefix(context.Context, *AddPrefixRequest) (*AddPrefixResponse, error) {
	return nil, unimplemented(AddPrefixProcedure)
}

func (UnimplementedNeighborServiceHandler) DeletePrefix(context.Context, *DeletePrefixRequest) (*DeletePrefixResponse, error) {
	return nil, unimplemented(DeletePrefixProcedure)
}

func (UnimplementedNeighborServiceHandler) CheckOnLink(context.Context, *CheckOnLinkRequest) (*CheckOnLinkResponse, error) {
	return nil, unimplemented(CheckOnLinkProcedure)
}

func (UnimplementedNeighborServiceHandler) ListInterfaces(context.Context, *ListInterfacesRequest) (*ListInterfacesResponse, error) {
	return nil, unimplemented(ListInterfacesProcedure)
}

func (UnimplementedNeighborServiceHandler) ListAddresses(context.Context, *ListAddressesRequest) (*ListAddressesResponse, error) {
	return nil, unimplemented(ListAddressesProcedure)
}

func (UnimplementedNeighborServiceHandler) AddAddress(context.Context, *AddAddressRequest) (*AddAddressResponse, error) {
	return nil, unimplemented(AddAddressProcedure)
}

func (UnimplementedNeighborServiceHandler) RemoveAddress(context.Context, *RemoveAddressRequest) (*RemoveAddressResponse, error) {
	return nil, unimplemented(RemoveAddressProcedure)
}

func (UnimplementedNeighborServiceHandler) SetAddressState(context.Context, *SetAddressStateRequest) (*SetAddressStateResponse, error) {
	return nil, unimplemented(SetAddressStateProcedure)
}

func (UnimplementedNeighborServiceHandler) Ping(context.Context, *PingRequest) (*PingResponse, error) {
	return nil, unimplemented(PingProcedure)
}

func (UnimplementedNeighborServiceHandler) WatchEvents(context.Context, *WatchEventsRequest, *connect.ServerStream[Event]) error {
	return unimplemented(WatchEventsProcedure)
}
