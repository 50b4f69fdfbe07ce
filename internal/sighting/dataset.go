package sighting

import "sort"

// Dataset is an immutable, in-memory batch of sightings in log order.
type Dataset struct {
	sightings []Sighting
	counts    map[string]int
}

// NewDataset copies ss into a new Dataset. Each sighting's Seq is set to its
// index in ss so that log order survives later re-sorting.
func NewDataset(ss []Sighting) *Dataset {
	d := &Dataset{
		sightings: make([]Sighting, len(ss)),
		counts:    make(map[string]int),
	}
	for i, s := range ss {
		s.Seq = i
		d.sightings[i] = s
		d.counts[s.UserID]++
	}
	return d
}

// Len returns the number of sightings.
func (d *Dataset) Len() int { return len(d.sightings) }

// Sightings returns a copy of every sighting in log order.
func (d *Dataset) Sightings() []Sighting {
	out := make([]Sighting, len(d.sightings))
	copy(out, d.sightings)
	return out
}

// Has reports whether uid has at least one sighting.
func (d *Dataset) Has(uid string) bool { return d.counts[uid] > 0 }

// Count returns the number of sightings of uid.
func (d *Dataset) Count(uid string) int { return d.counts[uid] }

// Users returns the distinct user ids, sorted.
func (d *Dataset) Users() []string {
	users := make([]string, 0, len(d.counts))
	for uid := range d.counts {
		users = append(users, uid)
	}
	sort.Strings(users)
	return users
}

// Pair returns a private copy of the sightings belonging to uid1 or uid2,
// in log order. The error is always nil; it exists so Dataset can stand in
// for stores that can fail.
func (d *Dataset) Pair(uid1, uid2 string) ([]Sighting, error) {
	n := d.counts[uid1]
	if uid2 != uid1 {
		n += d.counts[uid2]
	}
	out := make([]Sighting, 0, n)
	for _, s := range d.sightings {
		if s.UserID == uid1 || s.UserID == uid2 {
			out = append(out, s)
		}
	}
	return out, nil
}
