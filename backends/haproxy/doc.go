// Package haproxy monitors HAProxy instances through the CSV export of the
// stats page.
//
// Each instance is a [Node] with a single stats entry. Instances carry a
// group name, usually the load balancer pair they belong to, so the
// registry can roll a pair up as one group.
package haproxy
