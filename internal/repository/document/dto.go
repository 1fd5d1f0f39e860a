package document

import (
	"strconv"
	"strings"
	"time"

	"github.com/dockeep/dockeep/internal/domain"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = time.RFC3339Nano
)

// buildHashFields converts a domain Document into a flat map[string]string for HSET.
func buildHashFields(doc *domain.Document) map[string]string {
	m := map[string]string{
		"id":                doc.ID,
		"filename":          doc.Filename,
		"original_filename": doc.OriginalFilename,
		"file_hash":         doc.FileHash,
		"file_path":         doc.FilePath,
		"file_size":         strconv.FormatInt(doc.FileSize, 10),
		"mime_type":         doc.MimeType,
		"title":             doc.Title,
		"summary":           doc.Summary,
		"full_text":         doc.FullText,
		"tax_relevant":      formatBool(doc.TaxRelevant),
		"correspondent_id":  doc.CorrespondentID,
		"doc_type_id":       doc.DocTypeID,
		"tag_ids":           strings.Join(doc.TagIDs, ","),
		"parent_id":         doc.ParentID,
		"ocr_status":        string(doc.OCRStatus),
		"ai_status":         string(doc.AIStatus),
		"vector_status":     string(doc.VectorStatus),
		"view_count":        strconv.Itoa(doc.ViewCount),
		"approved":          formatBool(doc.Approved),
		"created_at":        doc.CreatedAt.UTC().Format(timeLayout),
		"updated_at":        doc.UpdatedAt.UTC().Format(timeLayout),
	}
	if doc.DocumentDate != nil {
		m["document_date"] = doc.DocumentDate.UTC().Format(dateLayout)
	}
	if doc.LastViewed != nil {
		m["last_viewed"] = doc.LastViewed.UTC().Format(timeLayout)
	}
	if doc.ApprovedAt != nil {
		m["approved_at"] = doc.ApprovedAt.UTC().Format(timeLayout)
	}
	if doc.ProcessedAt != nil {
		m["processed_at"] = doc.ProcessedAt.UTC().Format(timeLayout)
	}
	return m
}

// parseHashFields converts a flat hash map back into a domain Document.
func parseHashFields(m map[string]string) *domain.Document {
	doc := &domain.Document{
		ID:               m["id"],
		Filename:         m["filename"],
		OriginalFilename: m["original_filename"],
		FileHash:         m["file_hash"],
		FilePath:         m["file_path"],
		MimeType:         m["mime_type"],
		Title:            m["title"],
		Summary:          m["summary"],
		FullText:         m["full_text"],
		TaxRelevant:      m["tax_relevant"] == "1",
		CorrespondentID:  m["correspondent_id"],
		DocTypeID:        m["doc_type_id"],
		ParentID:         m["parent_id"],
		Approved:         m["approved"] == "1",
	}

	if v := m["file_size"]; v != "" {
		doc.FileSize, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := m["tag_ids"]; v != "" {
		doc.TagIDs = strings.Split(v, ",")
	}
	if v := m["view_count"]; v != "" {
		doc.ViewCount, _ = strconv.Atoi(v)
	}

	doc.OCRStatus = parseStatusOrPending(m["ocr_status"])
	doc.AIStatus = parseStatusOrPending(m["ai_status"])
	doc.VectorStatus = parseStatusOrPending(m["vector_status"])

	doc.CreatedAt = parseTime(m["created_at"])
	doc.UpdatedAt = parseTime(m["updated_at"])
	doc.DocumentDate = parseOptionalDate(m["document_date"])
	doc.LastViewed = parseOptionalTime(m["last_viewed"])
	doc.ApprovedAt = parseOptionalTime(m["approved_at"])
	doc.ProcessedAt = parseOptionalTime(m["processed_at"])

	return doc
}

func parseStatusOrPending(s string) domain.Status {
	status, err := domain.ParseStatus(s)
	if err != nil {
		return domain.StatusPending
	}
	return status
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func parseOptionalTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return nil
	}
	return &t
}

func parseOptionalDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
