package search

import (
	"regexp"
	"strings"

	"github.com/dockeep/dockeep/internal/fuzzy"
)

// docTypeContext maps document-type keywords to bilingual synonym strings
// appended to the query before embedding. Ordered so that only the first
// match wins, deterministically.
var docTypeContext = []struct{ keyword, synonyms string }{
	{"rechnung", "Rechnung Invoice Faktura Abrechnung Rechnungen bill"},
	{"vertrag", "Vertrag Contract Kontrakt Vereinbarung Verträge agreement"},
	{"brief", "Brief Letter Korrespondenz Schreiben Briefe mail"},
	{"bestellung", "Bestellung Order Auftrag Purchase Bestellungen"},
	{"angebot", "Angebot Offer Offerte Proposal Angebote quote"},
	{"mahnung", "Mahnung Reminder Zahlungserinnerung Mahnungen"},
	{"lieferschein", "Lieferschein Delivery Lieferung Lieferscheine"},
	{"quittung", "Quittung Receipt Beleg Quittungen"},
	{"bescheinigung", "Bescheinigung Zertifikat Certificate Nachweis"},
	{"steuer", "Steuer Tax Steuern Finanzamt Steuerrelevant"},
}

// monthContext adds month names in both languages plus the numeric form.
var monthContext = []struct{ keyword, synonyms string }{
	{"januar", "Januar January Jänner 01"},
	{"februar", "Februar February 02"},
	{"märz", "März March Maerz 03"},
	{"april", "April 04"},
	{"mai", "Mai May 05"},
	{"juni", "Juni June 06"},
	{"juli", "Juli July 07"},
	{"august", "August 08"},
	{"september", "September 09"},
	{"oktober", "Oktober October 10"},
	{"november", "November 11"},
	{"dezember", "Dezember December 12"},
}

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// enhanceQuery appends bilingual document-type synonyms and temporal context
// when the query fuzzy-matches a known keyword. The original query always
// stays in front so exact terms keep the most weight.
func enhanceQuery(query string) string {
	enhanced := query
	lower := strings.ToLower(query)

	for _, e := range docTypeContext {
		if fuzzy.Similarity(lower, e.keyword) > 0.8 ||
			fuzzy.FuzzyContains(e.keyword, lower, 0.8) ||
			strings.Contains(strings.ToLower(e.synonyms), lower) {
			enhanced = query + " " + e.synonyms
			break
		}
	}

	for _, m := range monthContext {
		if fuzzy.FuzzyContains(lower, m.keyword, 0.7) {
			enhanced += " " + m.synonyms + " Datum Date Zeit Zeitraum"
			break
		}
	}
	if year := yearPattern.FindString(lower); year != "" {
		enhanced += " " + year + " Jahr Year"
	}

	return enhanced
}

// searchVariants returns the query, its lowercase form and typo variants,
// bounded to max entries in total.
func searchVariants(query string, max int) []string {
	variants := make([]string, 0, max)
	variants = append(variants, query)
	if lower := strings.ToLower(query); lower != query && len(variants) < max {
		variants = append(variants, lower)
	}
	for _, v := range fuzzy.TypoVariants(query) {
		if len(variants) >= max {
			break
		}
		if !containsString(variants, v) {
			variants = append(variants, v)
		}
	}
	return variants
}

// fullTextVariants additionally expands longer individual words, for the
// relational fallback where matching is plain substring containment.
func fullTextVariants(query string, max int) []string {
	variants := searchVariants(query, max)
	for _, word := range strings.Fields(strings.ToLower(query)) {
		if len(variants) >= max {
			break
		}
		if len([]rune(word)) <= 3 {
			continue
		}
		for _, v := range fuzzy.TypoVariants(word) {
			if len(variants) >= max {
				break
			}
			if !containsString(variants, v) {
				variants = append(variants, v)
			}
		}
	}
	return variants
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
