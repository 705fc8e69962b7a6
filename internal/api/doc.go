// Package api implements the asset service's wire protocol: login, user data,
// batched file registration, pre-signed part PUTs, part acknowledgement,
// merge, worker job creation, deletion and asset lookup.
//
// Every authenticated call carries the mid/t/aid identity fields in its body.
// Non-2xx answers surface as *services.APIError so callers can classify them
// with errors.Is against the services markers.
package api
