package trial

import (
	"fmt"

	"github.com/ntduc11/statgenSTA/domain/core"
	"github.com/ntduc11/statgenSTA/domain/frame"
	"github.com/ntduc11/statgenSTA/internal"
)

// DefaultTrialID is used when no trial role is mapped and no name is given
const DefaultTrialID = "trial1"

// Option adjusts Create/Add behavior
type Option func(*createOpts)

type createOpts struct {
	meta      map[string]Meta
	trialName string
}

// WithMeta attaches metadata records keyed by trial id
func WithMeta(meta map[string]Meta) Option {
	return func(o *createOpts) { o.meta = meta }
}

// WithTrialName sets the trial id used when no trial role is mapped
func WithTrialName(name string) Option {
	return func(o *createOpts) { o.trialName = name }
}

// Create validates the role mapping against the input table, renames role
// columns to their canonical names, casts them to their required types and
// partitions the rows into one trial sub-table per value of the trial
// column (or a single trial when no trial role is mapped). Rows with a
// missing trial value belong to no sub-table and are excluded with a
// warning. The input table is never modified.
func Create(data *frame.Table, roles RoleMapping, opts ...Option) (*TrialData, error) {
	o := createOpts{trialName: DefaultTrialID}
	for _, opt := range opts {
		opt(&o)
	}

	tbl, renamed, err := prepare(data, roles)
	if err != nil {
		return nil, err
	}

	td := &TrialData{trials: make(map[string]*Trial)}
	if roles.Trial == "" {
		td.insert(newTrial(o.trialName, tbl, renamed, roles.Traits, o.meta))
		return td, nil
	}

	levels, err := tbl.Levels(ColTrial)
	if err != nil {
		return nil, err
	}
	ids, err := tbl.Strings(ColTrial)
	if err != nil {
		return nil, err
	}
	dropped := 0
	for _, id := range ids {
		if id == "" {
			dropped++
		}
	}
	if dropped > 0 {
		internal.DefaultLogger.Warn("create: %d row(s) with a missing trial value excluded", dropped)
	}
	for _, level := range levels {
		sub := tbl.Filter(func(row int) bool { return ids[row] == level })
		td.insert(newTrial(level, sub, renamed, roles.Traits, o.meta))
	}
	return td, nil
}

// Add validates and types new data like Create, then unions the resulting
// trials with existing. Any trial id already present fails the call.
func Add(existing *TrialData, data *frame.Table, roles RoleMapping, opts ...Option) (*TrialData, error) {
	incoming, err := Create(data, roles, opts...)
	if err != nil {
		return nil, err
	}
	for _, id := range incoming.order {
		if _, dup := existing.trials[id]; dup {
			return nil, core.NewDuplicateTrialError(id)
		}
	}
	out := existing.clone()
	for _, id := range incoming.order {
		out.insert(incoming.trials[id])
	}
	return out, nil
}

// Drop removes the named trials, failing if any id is absent
func Drop(existing *TrialData, trialIDs []string) (*TrialData, error) {
	drop := make(map[string]bool, len(trialIDs))
	for _, id := range trialIDs {
		if _, ok := existing.trials[id]; !ok {
			return nil, core.NewUnknownTrialError(id)
		}
		drop[id] = true
	}
	out := &TrialData{trials: make(map[string]*Trial)}
	for _, id := range existing.order {
		if !drop[id] {
			out.insert(existing.trials[id].clone())
		}
	}
	return out, nil
}

// prepare validates roles, renames to canonical names and casts types
func prepare(data *frame.Table, roles RoleMapping) (*frame.Table, map[string]string, error) {
	if roles.Genotype == "" {
		return nil, nil, core.NewColumnNotFoundError("genotype role is unset")
	}
	pairs := roles.roles()
	for _, pair := range pairs {
		if !data.HasColumn(pair[1]) {
			return nil, nil, core.NewColumnNotFoundError(pair[1])
		}
	}
	for _, trait := range roles.Traits {
		if !data.HasColumn(trait) {
			return nil, nil, core.NewColumnNotFoundError(trait)
		}
	}

	tbl := data.Clone()
	renamed := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		canonical, source := pair[0], pair[1]
		if err := tbl.Rename(source, canonical); err != nil {
			return nil, nil, fmt.Errorf("renaming %q to %q: %w", source, canonical, err)
		}
		renamed[canonical] = source
		switch {
		case categoricalRoles[canonical]:
			if err := tbl.Cast(canonical, frame.Categorical); err != nil {
				return nil, nil, err
			}
		case numericRoles[canonical]:
			if err := tbl.Cast(canonical, frame.Numeric); err != nil {
				return nil, nil, core.NewTypeConversionError(source, err.Error())
			}
		}
	}
	return tbl, renamed, nil
}

func newTrial(id string, tbl *frame.Table, renamed map[string]string, traits []string, meta map[string]Meta) *Trial {
	tr := &Trial{
		ID:      id,
		Data:    tbl,
		Renamed: renamed,
		Traits:  append([]string(nil), traits...),
	}
	if m, ok := meta[id]; ok {
		tr.Meta = &m
	}
	return tr
}

func (td *TrialData) insert(tr *Trial) {
	td.order = append(td.order, tr.ID)
	td.trials[tr.ID] = tr
}
