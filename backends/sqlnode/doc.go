// Package sqlnode monitors PostgreSQL servers.
//
// A [Node] carries four entries: version, connections, databases and
// replication. The replication entry stays unsupported until the version
// entry reports a server that exposes replay lag. Connection use at 75% of
// max_connections is a Warning and at 90% is Critical.
package sqlnode
