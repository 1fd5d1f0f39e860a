package ingest

import (
	"fmt"
	"strings"

	"github.com/dockeep/dockeep/internal/domain"
)

// Bounded content slices keep the embedding input inside model limits.
const (
	contentWithSummaryLimit = 4000
	contentOnlyLimit        = 8000
)

// docTypeSynonyms enriches the embedding input so queries in either language
// land near the document.
var docTypeSynonyms = map[string]string{
	"rechnung": "Invoice Faktura Abrechnung",
	"vertrag":  "Contract Kontrakt Vereinbarung",
	"brief":    "Letter Korrespondenz Schreiben",
	"angebot":  "Offer Offerte Proposal",
}

// buildEmbeddingInput concatenates labeled document facets in priority order.
// The title and correspondent appear twice to carry more weight.
func buildEmbeddingInput(doc *domain.Document, correspondent, docType string, tags []string) string {
	var parts []string

	if doc.Title != "" {
		parts = append(parts, "Titel: "+doc.Title)
		parts = append(parts, "Dokument: "+doc.Title)
	}
	if doc.Filename != "" {
		parts = append(parts, "Dateiname: "+doc.Filename)
	}
	if correspondent != "" {
		parts = append(parts, "Korrespondent: "+correspondent)
		parts = append(parts, "Von/An: "+correspondent)
	}
	if docType != "" {
		parts = append(parts, "Dokumenttyp: "+docType)
		if syn, ok := docTypeSynonyms[strings.ToLower(docType)]; ok {
			parts = append(parts, syn)
		}
	}
	if doc.DocumentDate != nil {
		d := *doc.DocumentDate
		parts = append(parts, fmt.Sprintf("Datum: %s %s %d", d.Format("02.01.2006"), d.Month(), d.Year()))
	}
	if len(tags) > 0 {
		parts = append(parts, "Tags: "+strings.Join(tags, ", "))
		for _, tag := range tags {
			parts = append(parts, "Thema: "+tag)
		}
	}
	if doc.TaxRelevant {
		parts = append(parts, "Steuerrelevant Tax-relevant Steuern Finanzamt")
	}

	if doc.Summary != "" {
		parts = append(parts, "Zusammenfassung: "+doc.Summary)
		if doc.FullText != "" {
			parts = append(parts, "Inhalt: "+truncateRunes(doc.FullText, contentWithSummaryLimit))
		}
	} else if doc.FullText != "" {
		parts = append(parts, "Inhalt: "+truncateRunes(doc.FullText, contentOnlyLimit))
	}

	return strings.Join(parts, "\n")
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
