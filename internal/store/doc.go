// Package store keeps the latest snapshot of every node's health and fans
// updates out to subscribers.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [NodeSnapshot]: Storage representation of a node's rolled-up health
//
// Subscribers receive updates via channels with non-blocking sends (slow
// subscribers miss updates rather than block the poller).
package store
