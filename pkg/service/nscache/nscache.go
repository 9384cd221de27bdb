// Package nscache keeps track of namespaces that are known to hold no reference cases.
// A namespace is marked empty when it is cleared and populated when a case is stored.
// Entries expire TTL after the namespace was last cleared and are removed by Sweep.
package nscache

import (
	"time"

	"github.com/secmon-lab/argus/pkg/domain/interfaces"
)

const DefaultTTL = time.Hour

// entry is the state of one namespace. A zero lastCleared means the namespace has been
// populated without being cleared first.
type entry struct {
	lastCleared time.Time
	knownEmpty  bool
}

func (e entry) expired(now time.Time, ttl time.Duration) bool {
	return e.lastCleared.Before(now.Add(-ttl))
}

var (
	_ interfaces.NamespaceCache = &Memory{}
	_ interfaces.NamespaceCache = &Redis{}
)
