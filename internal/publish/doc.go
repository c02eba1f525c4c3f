// Package publish fans device operation results out to observers.
//
// MQTT publishes one JSON message per Result on
// <prefix>/<node>/<endpoint>/<operation>, or <prefix>/devices/list for the
// list operation. Messages are never retained. Publishing is best effort:
// Publish queues the message and returns, a background sender delivers it,
// and results that cannot be queued or delivered are logged and dropped.
package publish
