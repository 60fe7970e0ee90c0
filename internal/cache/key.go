package cache

import (
	"sort"
	"strings"
)

// Namespace groups cache keys that share one invalidation generation.
// Invalidation is coarsened to this granularity: one write discards every
// key of the affected kind instead of tracking per-key dependencies.
type Namespace string

const (
	NamespaceMonthly           Namespace = "monthly"
	NamespaceCategoryBreakdown Namespace = "category-breakdown"
	NamespaceUserBreakdown     Namespace = "user-breakdown"
	NamespaceRecurringSummary  Namespace = "recurring-summary"
)

// Namespaces lists every known namespace, in stable order.
func Namespaces() []Namespace {
	return []Namespace{
		NamespaceMonthly,
		NamespaceCategoryBreakdown,
		NamespaceUserBreakdown,
		NamespaceRecurringSummary,
	}
}

// Key identifies one aggregation result: the kind of aggregation plus all
// filter parameters. Filter insertion order never affects identity.
type Key struct {
	Namespace Namespace
	filters   map[string]string
}

func NewKey(ns Namespace) Key {
	return Key{Namespace: ns, filters: make(map[string]string)}
}

// WithFilter returns a copy of the key with one more filter parameter set.
// Empty values are kept; they are part of the query shape.
func (k Key) WithFilter(name, value string) Key {
	filters := make(map[string]string, len(k.filters)+1)
	for n, v := range k.filters {
		filters[n] = v
	}
	filters[name] = value
	return Key{Namespace: k.Namespace, filters: filters}
}

// Canonical renders the key as a deterministic string: the namespace
// followed by filter pairs in sorted name order.
func (k Key) Canonical() string {
	if len(k.filters) == 0 {
		return string(k.Namespace)
	}

	names := make([]string, 0, len(k.filters))
	for n := range k.filters {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(string(k.Namespace))
	for _, n := range names {
		b.WriteByte('|')
		b.WriteString(n)
		b.WriteByte('=')
		b.WriteString(k.filters[n])
	}
	return b.String()
}
