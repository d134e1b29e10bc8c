// Package api serves the rainbridge status API.
//
// Routes:
//
//	GET /api/v1/health             component health, 503 when degraded
//	GET /api/v1/system             runtime, registry and bridge summary
//	GET /api/v1/devices            discovery outcome per controller (?state=)
//	GET /api/v1/devices/{address}  one controller
//	GET /api/v1/accessories        registry records (?device=, ?kind=)
//	GET /api/v1/accessories/{id}   one record
//	GET /api/v1/ws                 event stream
//	GET /metrics                   Prometheus exposition
//
// The event stream speaks JSON envelopes. A client sends
//
//	{"type":"subscribe","id":"1","payload":{"channels":["accessory.changed"]}}
//
// and then receives one "event" message per registry mutation, carrying the
// operation and the accessory as served by /api/v1/accessories/{id}.
//
// The API is read-only; accessory changes happen through reconciliation.
package api
