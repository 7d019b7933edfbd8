/*
Package api implements the netpanel HTTP API on top of gin.

# Routes

Unauthenticated:

	POST /token                              form login, returns a bearer token
	GET  /health /ready /live /metrics       probes and Prometheus metrics

Bearer token required:

	GET  /user                               the authenticated user

Bearer token and access group membership required:

	GET    /network/configuration            layout plus intnets from the inventory
	PUT    /network/configuration/intnets    push intnet membership to the VMs
	PUT    /network/configuration/panelstate save the editor layout
	POST   /network/snapshot                 create a snapshot
	GET    /network/snapshot/all             list snapshots
	GET    /network/snapshot/:id             get a snapshot
	POST   /network/snapshot/:id/rename/:name
	DELETE /network/snapshot/:id             delete, returns the removed record
	GET    /network/preset/all               list presets
	GET    /network/preset/:id               get a preset
	GET    /vm/all/networkdata               connection data of every VM
	GET    /vm/all/state                     runtime state of every VM
	GET    /vm/:uuid/networkdata
	GET    /vm/:uuid/state

# Errors

Every error body has the form {"detail": "..."}. Domain errors map to
status codes in statusFor; anything unrecognized becomes a 500 with a
generic detail and the cause is only logged. A 401 always carries
"WWW-Authenticate: Bearer".

# Middleware

Requests pass through panic recovery, Prometheus instrumentation keyed by
route template, structured access logging and CORS. Login attempts are
rate limited per client IP.
*/
package api
