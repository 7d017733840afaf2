package trial

import (
	"github.com/ntduc11/statgenSTA/internal"
)

// GetMeta returns one metadata record per trial, in trial order. Trials
// without stored metadata get a record with all fields missing.
func GetMeta(td *TrialData) []MetaRecord {
	out := make([]MetaRecord, 0, td.Len())
	for _, id := range td.order {
		rec := MetaRecord{TrialID: id}
		if m := td.trials[id].Meta; m != nil {
			rec.Meta = *m
		}
		out = append(out, rec)
	}
	return out
}

// SetMeta merges metadata records into a copy of td, keyed by trial id.
// Records for unknown trials are ignored with a warning; trials without a
// record keep their current metadata. Record order is not significant.
func SetMeta(td *TrialData, records []MetaRecord) *TrialData {
	out := td.clone()
	for _, rec := range records {
		tr, ok := out.trials[rec.TrialID]
		if !ok {
			internal.DefaultLogger.Warn("setMeta: no trial %q, metadata record ignored", rec.TrialID)
			continue
		}
		meta := rec.Meta
		tr.Meta = &meta
	}
	return out
}
