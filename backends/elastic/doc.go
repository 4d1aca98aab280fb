// Package elastic monitors Elasticsearch clusters through _cluster/health
// and the root info endpoint. Green is Good, yellow is Warning and red is
// Critical; yellow and red report the unassigned shard count.
package elastic
