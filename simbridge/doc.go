// Package simbridge is a client for the SimBridge companion server that runs
// next to the simulator on the loopback interface.
//
// The API is split in three groups that mirror the server's controllers:
// Terrain (navigation display terrain maps, gated behind an availability
// probe), CompanyRoutes (stored company routes) and Viewer (PDF pages and
// images for the cockpit document viewer). Every operation issues exactly one
// HTTP request and none are retried; a bounded timeout applies to each call.
//
// The server port is stored as the CONFIG_SIMBRIDGE_PORT setting and is
// resolved once, when the client is created with NewFromDataStore.
package simbridge
