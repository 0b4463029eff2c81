package provider

import (
	"cmp"
	"slices"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// DefaultVirtualNodes is the number of ring points per provider.
const DefaultVirtualNodes = 160

type ringPoint struct {
	hash uint64
	id   string
}

// HashRing is an immutable consistent-hash ring over provider ids.
// Adding an id only moves keys onto that id; removing one only moves the
// keys it owned.
type HashRing struct {
	points []ringPoint
}

// NewHashRing builds a ring with vnodes points per distinct id.
func NewHashRing(ids []string, vnodes int) *HashRing {
	if vnodes <= 0 {
		vnodes = DefaultVirtualNodes
	}
	ids = slices.Compact(slices.Sorted(slices.Values(ids)))

	points := make([]ringPoint, 0, len(ids)*vnodes)
	for _, id := range ids {
		for i := 0; i < vnodes; i++ {
			points = append(points, ringPoint{
				hash: xxhash.Sum64String(id + "#" + strconv.Itoa(i)),
				id:   id,
			})
		}
	}
	slices.SortFunc(points, func(a, b ringPoint) int {
		if c := cmp.Compare(a.hash, b.hash); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
	return &HashRing{points: points}
}

// Lookup returns the id owning key: the first point clockwise from the
// key's hash.
func (r *HashRing) Lookup(key string) (string, bool) {
	if len(r.points) == 0 {
		return "", false
	}
	h := xxhash.Sum64String(key)
	i := sort.Search(len(r.points), func(i int) bool { return r.points[i].hash >= h })
	if i == len(r.points) {
		i = 0
	}
	return r.points[i].id, true
}

// Len returns the number of points.
func (r *HashRing) Len() int {
	return len(r.points)
}
