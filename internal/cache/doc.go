/*
Package cache provides memory-bounded, project-isolated caching for the
writing application's hot read paths.

Two layers live here:

	┌─────────────────────────────────────────────┐
	│           Editor / File subsystem           │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│             ProjectRegistry                 │
	│   project_id → ProjectScopedCache           │
	│   (one instance and byte budget each)       │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│            BoundedLRUCache                  │
	│   • strict LRU, ties by insertion order     │
	│   • tracked bytes never exceed capacity     │
	│   • oversized values rejected, not cached   │
	│   • one mutex per instance                  │
	└─────────────────────────────────────────────┘

# Eviction

Eviction is strict least-recently-used: Get moves an entry to the hot end
under the same lock Set and Delete take, so recency updates can never race
an eviction decision. A single value larger than the whole budget returns
a TooLarge error instead of silently thrashing the cache.

# Isolation

Each project gets its own BoundedLRUCache instance rather than a shared
cache with key prefixes. Identical key strings in two projects never
alias, a busy project cannot starve another's working set, and closing a
project is a single Clear instead of a key scan.

# Memory pressure

Every cache the registry creates is reported to the memory manager, which
drives EvictOldest/Clear across all registered caches when the process
crosses its warning or critical thresholds.
*/
package cache
