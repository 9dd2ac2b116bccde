// Package graph is a thin wrapper over a Bolt graph database, used to mirror
// payment bookkeeping as customer/merchant/transaction relationships.
package graph

import (
	"context"
	"errors"
)

// Client is what the ledger needs from a graph database.
type Client interface {
	Write(ctx context.Context, cypher string, params map[string]any) ([]Record, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Record is one result row keyed by column name.
type Record map[string]any

type Options struct {
	URI            string
	Database       string
	Username       string
	Password       string
	MaxConnections int
}

var ErrMissingURI = errors.New("graph URI is required")
