package cache

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Get when no value exists for the key.
var ErrNotFound = errors.New("cache: key not found")

// Key is a composite lookup key. Policy keys are (segment, channel,
// messageType) tuples; transaction and detail keys are a bare actor id.
type Key []string

// NewKey builds a key from its parts.
func NewKey(parts ...string) Key { return Key(parts) }

// String renders the key for logging.
func (k Key) String() string { return strings.Join(k, ":") }

// Value is the tuple stored under a key.
type Value []string

// First returns the first element of the tuple, or "" when empty.
func (v Value) First() string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// Client is the distributed cache contract this service depends on. The
// cluster's replication and consistency are not this service's concern; the
// contract is plain get/put with no compare-and-swap, so read-modify-write
// updates are inherently racy across concurrent senders.
type Client interface {
	Get(ctx context.Context, cache string, key Key) (Value, error)
	Put(ctx context.Context, cache string, key Key, value Value) error
}

// Names lists the logical cache slots the service reads from.
type Names struct {
	ContactPolicy   string
	TrxDaily        string
	TrxHist         string
	Segment         string
	CustomerDetails string
	ScenarioMeta    string
}
