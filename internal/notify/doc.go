// Package notify publishes node status transitions to NATS so that other
// systems (alerting, chat bots, audit logs) can react without polling the API.
//
// Events are JSON encoded [Event] values on subject "<prefix>.<type>.<key>".
// Only transitions are published; a node reporting the same status again
// produces nothing.
package notify
