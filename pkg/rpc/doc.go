// Package rpc defines the SnapshotService gRPC contract shared by the agent
// shipper and the server receiver.
//
// Messages are plain Go structs carried with a JSON codec registered under
// the "json" content subtype (application/grpc+json), so the payload on the
// wire is exactly the types.Snapshot JSON shape. Clients must pass
// CallOption() on every call; servers pick the codec up from the request's
// content type automatically once this package is imported.
package rpc
