// Package redisnode monitors Redis servers through INFO and DBSIZE.
package redisnode
