package domain

import "time"

// SearchFilters narrows a document query. Zero value matches everything.
type SearchFilters struct {
	CorrespondentIDs []string
	DocTypeIDs       []string
	TagIDs           []string
	DateFrom         *time.Time
	DateTo           *time.Time
	TaxRelevant      *bool
}

// IsEmpty reports whether no filter is set.
func (f SearchFilters) IsEmpty() bool {
	return len(f.CorrespondentIDs) == 0 && len(f.DocTypeIDs) == 0 && len(f.TagIDs) == 0 &&
		f.DateFrom == nil && f.DateTo == nil && f.TaxRelevant == nil
}

// Matches reports whether a document passes every set condition.
func (f SearchFilters) Matches(d *Document) bool {
	if len(f.CorrespondentIDs) > 0 && !contains(f.CorrespondentIDs, d.CorrespondentID) {
		return false
	}
	if len(f.DocTypeIDs) > 0 && !contains(f.DocTypeIDs, d.DocTypeID) {
		return false
	}
	if len(f.TagIDs) > 0 && !containsAny(d.TagIDs, f.TagIDs) {
		return false
	}
	if f.DateFrom != nil && (d.DocumentDate == nil || d.DocumentDate.Before(*f.DateFrom)) {
		return false
	}
	if f.DateTo != nil && (d.DocumentDate == nil || d.DocumentDate.After(*f.DateTo)) {
		return false
	}
	if f.TaxRelevant != nil && d.TaxRelevant != *f.TaxRelevant {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsAny(have, want []string) bool {
	for _, w := range want {
		if contains(have, w) {
			return true
		}
	}
	return false
}
