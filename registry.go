package reconcile

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// AttributeProposal is a candidate attribute with the snippets that support it.
type AttributeProposal struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Sources     []string `json:"sources"`
}

// FieldRegistry stores proposals in an append-only arena addressed by
// stable ids. Mutations retire ids and append new entries; the name index
// is rebuilt after each mutation so every live name maps to exactly one id.
// A registry is not safe for concurrent mutation.
type FieldRegistry struct {
	arena   []AttributeProposal
	retired []bool
	index   map[string]int
}

// NewFieldRegistry loads proposals, folding entries that share a name into
// one with the union of their sources.
func NewFieldRegistry(proposals []AttributeProposal) *FieldRegistry {
	r := &FieldRegistry{index: make(map[string]int, len(proposals))}
	for _, p := range proposals {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		if id, ok := r.index[name]; ok {
			cur := r.arena[id]
			cur.Sources = unionSources(cur.Sources, p.Sources)
			if cur.Description == "" {
				cur.Description = p.Description
			}
			r.arena[id] = cur
			continue
		}
		r.insert(AttributeProposal{
			Name:        name,
			Description: p.Description,
			Sources:     unionSources(nil, p.Sources),
		})
	}
	return r
}

func (r *FieldRegistry) insert(p AttributeProposal) int {
	id := len(r.arena)
	r.arena = append(r.arena, p)
	r.retired = append(r.retired, false)
	r.index[p.Name] = id
	return id
}

func (r *FieldRegistry) rebuildIndex() {
	clear(r.index)
	for id, p := range r.arena {
		if !r.retired[id] {
			r.index[p.Name] = id
		}
	}
}

// Len is the number of live fields.
func (r *FieldRegistry) Len() int { return len(r.index) }

// Get returns the live field called name.
func (r *FieldRegistry) Get(name string) (AttributeProposal, bool) {
	id, ok := r.index[name]
	if !ok {
		return AttributeProposal{}, false
	}
	return r.arena[id], true
}

// Has reports whether name is live.
func (r *FieldRegistry) Has(name string) bool {
	_, ok := r.index[name]
	return ok
}

// Fields returns live fields in arena order.
func (r *FieldRegistry) Fields() []AttributeProposal {
	out := make([]AttributeProposal, 0, len(r.index))
	for id, p := range r.arena {
		if !r.retired[id] {
			p.Sources = append([]string(nil), p.Sources...)
			out = append(out, p)
		}
	}
	return out
}

// Names returns live names in arena order.
func (r *FieldRegistry) Names() []string {
	out := make([]string, 0, len(r.index))
	for id, p := range r.arena {
		if !r.retired[id] {
			out = append(out, p.Name)
		}
	}
	return out
}

// ApplyMerge replaces the named fields with one field called newName. The
// merged field takes the first constituent's description and the union of
// all sources. If newName already names a field outside the merge, that
// field is folded in as well. Nothing changes when a constituent is absent.
func (r *FieldRegistry) ApplyMerge(names []string, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return eris.New("merge: empty target name")
	}
	if len(names) == 0 {
		return eris.New("merge: no fields to merge")
	}

	var ids []int
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		id, ok := r.index[n]
		if !ok {
			return eris.Wrapf(ErrMissingField, "merge into %q: %q", newName, n)
		}
		ids = append(ids, id)
	}
	if id, ok := r.index[newName]; ok && !seen[newName] {
		ids = append(ids, id)
	}

	merged := AttributeProposal{Name: newName, Description: r.arena[ids[0]].Description}
	for _, id := range ids {
		merged.Sources = unionSources(merged.Sources, r.arena[id].Sources)
		r.retired[id] = true
	}
	r.insert(merged)
	r.rebuildIndex()
	return nil
}

// ApplyRename gives the field oldName a new name. Renaming onto an existing
// field folds the two. Nothing changes when oldName is absent.
func (r *FieldRegistry) ApplyRename(oldName, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return eris.Errorf("rename %q: empty target name", oldName)
	}
	id, ok := r.index[oldName]
	if !ok {
		return eris.Wrapf(ErrMissingField, "rename %q -> %q", oldName, newName)
	}
	if oldName == newName {
		return nil
	}

	renamed := r.arena[id]
	renamed.Name = newName
	r.retired[id] = true
	if other, ok := r.index[newName]; ok {
		renamed.Sources = unionSources(renamed.Sources, r.arena[other].Sources)
		if renamed.Description == "" {
			renamed.Description = r.arena[other].Description
		}
		r.retired[other] = true
	}
	r.insert(renamed)
	r.rebuildIndex()
	return nil
}

// unionSources merges snippet sets, dropping blanks, sorted.
func unionSources(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if s = strings.TrimSpace(s); s != "" {
				set[s] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
