package engine

import (
	"fmt"
	"sort"
	"strings"
)

// UIDMapping maps source UIDs to destination UIDs
type UIDMapping map[uint32]uint32

// GIDMapping maps source GIDs to destination GIDs
type GIDMapping map[uint32]uint32

// Ownership translates file ownership between source and destination.
// rsync applies it with --usermap and --groupmap.
type Ownership struct {
	uidMapping UIDMapping
	gidMapping GIDMapping
}

// OwnershipOption configures an Ownership
type OwnershipOption func(*Ownership)

// WithUIDMapping sets the UID mapping table
func WithUIDMapping(mapping UIDMapping) OwnershipOption {
	return func(o *Ownership) {
		for k, v := range mapping {
			o.uidMapping[k] = v
		}
	}
}

// WithGIDMapping sets the GID mapping table
func WithGIDMapping(mapping GIDMapping) OwnershipOption {
	return func(o *Ownership) {
		for k, v := range mapping {
			o.gidMapping[k] = v
		}
	}
}

// NewOwnership creates a new Ownership with the given options
func NewOwnership(opts ...OwnershipOption) *Ownership {
	o := &Ownership{
		uidMapping: make(UIDMapping),
		gidMapping: make(GIDMapping),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Empty reports whether no mapping is configured.
func (o *Ownership) Empty() bool {
	return o == nil || (len(o.uidMapping) == 0 && len(o.gidMapping) == 0)
}

// Args returns the rsync mapping options, sorted by source id.
func (o *Ownership) Args() []string {
	if o.Empty() {
		return nil
	}
	var args []string
	if len(o.uidMapping) > 0 {
		args = append(args, "--usermap="+renderMapping(o.uidMapping))
	}
	if len(o.gidMapping) > 0 {
		args = append(args, "--groupmap="+renderMapping(o.gidMapping))
	}
	return args
}

func renderMapping(m map[uint32]uint32) string {
	ids := make([]uint32, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	pairs := make([]string, 0, len(ids))
	for _, id := range ids {
		pairs = append(pairs, fmt.Sprintf("%d:%d", id, m[id]))
	}
	return strings.Join(pairs, ",")
}
