// Package ingest drives the document ingestion pipeline: validation, content
// hash dedup, text extraction, AI metadata, file relocation and vectorization.
// Stage failures are contained per document; the pipeline always carries on
// and records the outcome in the per-stage status fields.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dockeep/dockeep/internal/domain"
	"github.com/dockeep/dockeep/internal/metrics"
	"github.com/dockeep/dockeep/internal/repository/catalog"
)

// knownCorrespondentLimit bounds the name list sent as extraction guidance.
const knownCorrespondentLimit = 50

// Config holds the pipeline's filesystem settings.
type Config struct {
	ArchiveDir        string
	DuplicatesDir     string
	MaxFileSizeBytes  int64
	AllowedExtensions []string
}

// Service is the ingestion pipeline.
type Service struct {
	cfg       Config
	docs      Documents
	catalog   Catalog
	logbook   AuditLog
	vectors   VectorIndex
	extractor TextExtractor
	ai        AIProvider // nil when no provider is configured
	logger    *zap.Logger
}

// Stats summarizes the stored corpus.
type Stats struct {
	Documents int
	Vectors   int
}

// New creates the pipeline. ai may be nil; the AI and vector stages are then
// marked skipped.
func New(cfg Config, docs Documents, cat Catalog, logbook AuditLog, vectors VectorIndex, extractor TextExtractor, ai AIProvider, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:       cfg,
		docs:      docs,
		catalog:   cat,
		logbook:   logbook,
		vectors:   vectors,
		extractor: extractor,
		ai:        ai,
		logger:    logger,
	}
}

// ProcessFile ingests the file at path. Idempotent per content hash: a true
// duplicate is moved aside and the existing record returned unchanged.
// Validation rejections return ErrFileRejected with no record created.
func (s *Service) ProcessFile(ctx context.Context, path string) (*domain.Document, error) {
	if err := s.validate(path); err != nil {
		s.audit(ctx, "", "validate", domain.LogWarning, err.Error())
		metrics.IngestTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	hash, size, err := hashFile(path)
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", filepath.Base(path), err)
	}

	existing, err := s.docs.GetByHash(ctx, hash)
	switch {
	case err == nil:
		dup, rerr := s.resolveExisting(ctx, existing, path)
		if rerr != nil {
			return nil, rerr
		}
		if dup != nil {
			metrics.IngestTotal.WithLabelValues("duplicate").Inc()
			return dup, nil
		}
		// old record purged, proceed as new
	case !errors.Is(err, domain.ErrDocumentNotFound):
		return nil, fmt.Errorf("dedup lookup: %w", err)
	}

	doc := domain.NewDocument(filepath.Base(path), hash, mimeTypeFor(path), size)
	claimed, holderID, err := s.docs.ClaimHash(ctx, hash, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("claim hash: %w", err)
	}
	if !claimed {
		// Lost the ingestion race; the winner's record is authoritative.
		holder, herr := s.docs.Get(ctx, holderID)
		if herr != nil {
			return nil, fmt.Errorf("hash held by %s: %w", holderID, herr)
		}
		s.moveToDuplicates(ctx, path, holder.ID)
		metrics.IngestTotal.WithLabelValues("duplicate").Inc()
		return holder, nil
	}

	if err := s.docs.Save(ctx, doc); err != nil {
		if rerr := s.docs.ReleaseHash(ctx, hash); rerr != nil {
			s.logger.Warn("release hash after failed save", zap.Error(rerr))
		}
		return nil, fmt.Errorf("create record: %w", err)
	}
	s.audit(ctx, doc.ID, "create", domain.LogInfo, "record created for "+doc.OriginalFilename)

	text := s.runOCR(ctx, doc, path)
	names := s.runAI(ctx, doc, text)
	s.relocate(ctx, doc, path, names.correspondent)
	s.runVectorize(ctx, doc, names)

	now := time.Now().UTC()
	doc.ProcessedAt = &now
	if err := s.docs.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("save record: %w", err)
	}
	metrics.IngestTotal.WithLabelValues("processed").Inc()
	return doc, nil
}

// resolveExisting decides what to do with a record that already owns the
// incoming file's hash. Returns the record when it is a true duplicate, nil
// when the record was purged and ingestion should proceed as new.
func (s *Service) resolveExisting(ctx context.Context, existing *domain.Document, incomingPath string) (*domain.Document, error) {
	fileIntact := existing.FilePath != "" && fileExists(existing.FilePath)
	if fileIntact && !existing.HasFailedStage() {
		s.moveToDuplicates(ctx, incomingPath, existing.ID)
		return existing, nil
	}

	reason := "stage failed, replacing record"
	if !fileIntact {
		reason = "backing file missing, purging orphan"
	}
	s.audit(ctx, existing.ID, "dedup", domain.LogWarning, reason)
	if err := s.purge(ctx, existing); err != nil {
		return nil, fmt.Errorf("purge stale record: %w", err)
	}
	return nil, nil
}

// stageNames carries resolved entity names between the AI and vector stages.
type stageNames struct {
	correspondent string
	docType       string
	tags          []string
}

// observeStage records a finished stage run for monitoring.
func observeStage(stage domain.Stage, start time.Time, status domain.Status) {
	metrics.StageRunsTotal.WithLabelValues(string(stage), string(status)).Inc()
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
}

func (s *Service) runOCR(ctx context.Context, doc *domain.Document, path string) string {
	start := time.Now()
	s.setStage(doc, domain.StageOCR, domain.StatusProcessing)
	s.save(ctx, doc)

	text, pages, err := s.extractor.Extract(ctx, path)
	if err != nil {
		s.setStage(doc, domain.StageOCR, domain.StatusFailed)
		s.audit(ctx, doc.ID, "ocr", domain.LogError, err.Error())
		s.save(ctx, doc)
		observeStage(domain.StageOCR, start, domain.StatusFailed)
		return ""
	}

	doc.FullText = text
	s.setStage(doc, domain.StageOCR, domain.StatusCompleted)
	s.audit(ctx, doc.ID, "ocr", domain.LogSuccess, fmt.Sprintf("extracted %d pages", pages))
	s.save(ctx, doc)
	observeStage(domain.StageOCR, start, domain.StatusCompleted)
	return text
}

func (s *Service) runAI(ctx context.Context, doc *domain.Document, text string) stageNames {
	start := time.Now()
	if text == "" || s.ai == nil {
		s.setStage(doc, domain.StageAI, domain.StatusSkipped)
		reason := "no text extracted"
		if s.ai == nil {
			reason = "no ai provider configured"
		}
		s.audit(ctx, doc.ID, "ai_metadata", domain.LogInfo, "skipped: "+reason)
		s.save(ctx, doc)
		observeStage(domain.StageAI, start, domain.StatusSkipped)
		return stageNames{}
	}

	s.setStage(doc, domain.StageAI, domain.StatusProcessing)
	s.save(ctx, doc)

	meta, err := s.ai.ExtractMetadata(ctx, doc.OriginalFilename, text,
		s.entityNames(ctx, catalog.KindDocType, 0),
		s.entityNames(ctx, catalog.KindCorrespondent, knownCorrespondentLimit))
	if err != nil {
		s.setStage(doc, domain.StageAI, domain.StatusFailed)
		s.audit(ctx, doc.ID, "ai_metadata", domain.LogError, err.Error())
		s.save(ctx, doc)
		observeStage(domain.StageAI, start, domain.StatusFailed)
		return stageNames{}
	}

	names := s.applyMetadata(ctx, doc, meta)
	s.setStage(doc, domain.StageAI, domain.StatusCompleted)
	s.audit(ctx, doc.ID, "ai_metadata", domain.LogSuccess, "extracted metadata: "+doc.Title)
	s.save(ctx, doc)
	observeStage(domain.StageAI, start, domain.StatusCompleted)
	return names
}

func (s *Service) applyMetadata(ctx context.Context, doc *domain.Document, meta domain.ExtractedMetadata) stageNames {
	doc.Title = meta.Title
	doc.Summary = meta.Summary
	doc.TaxRelevant = meta.TaxRelevant

	// A fresh extraction replaces the prior associations wholesale; on a
	// stage re-run the old correspondent, type and tags must not survive.
	doc.CorrespondentID = ""
	doc.DocTypeID = ""
	doc.TagIDs = nil

	if meta.Date != "" {
		if d, err := time.Parse("2006-01-02", meta.Date); err == nil {
			doc.DocumentDate = &d
		} else {
			s.logger.Warn("ignoring unparseable document date",
				zap.String("document_id", doc.ID), zap.String("date", meta.Date))
		}
	}

	var names stageNames
	if meta.CorrespondentName != "" {
		if e, err := s.catalog.GetOrCreate(ctx, catalog.KindCorrespondent, meta.CorrespondentName); err == nil {
			doc.CorrespondentID = e.ID
			names.correspondent = e.Name
		} else {
			s.logger.Warn("resolve correspondent", zap.String("name", meta.CorrespondentName), zap.Error(err))
		}
	}
	if meta.DocumentType != "" {
		if e, err := s.catalog.GetOrCreate(ctx, catalog.KindDocType, meta.DocumentType); err == nil {
			doc.DocTypeID = e.ID
			names.docType = e.Name
		} else {
			s.logger.Warn("resolve document type", zap.String("name", meta.DocumentType), zap.Error(err))
		}
	}
	for _, tag := range meta.TagNames {
		e, err := s.catalog.GetOrCreate(ctx, catalog.KindTag, tag)
		if err != nil {
			s.logger.Warn("resolve tag", zap.String("name", tag), zap.Error(err))
			continue
		}
		doc.TagIDs = append(doc.TagIDs, e.ID)
		names.tags = append(names.tags, e.Name)
	}
	return names
}

// relocate moves the staged file into the archive tree
// {correspondent|Unknown}/{date}/{id}_{original name}. On failure the file
// stays in staging and the staging path is recorded so the document is not
// orphaned.
func (s *Service) relocate(ctx context.Context, doc *domain.Document, stagingPath, correspondent string) {
	dateStr := time.Now().UTC().Format("2006-01-02")
	if doc.DocumentDate != nil {
		dateStr = doc.DocumentDate.Format("2006-01-02")
	}

	dir := filepath.Join(s.cfg.ArchiveDir, sanitizeFolderName(correspondent), dateStr)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		s.audit(ctx, doc.ID, "relocate", domain.LogError, err.Error())
		doc.FilePath = stagingPath
		return
	}

	target := uniquePath(filepath.Join(dir, doc.ID+"_"+doc.OriginalFilename))
	if err := moveFile(stagingPath, target); err != nil {
		s.audit(ctx, doc.ID, "relocate", domain.LogError, err.Error())
		doc.FilePath = stagingPath
		return
	}

	doc.FilePath = target
	doc.Filename = filepath.Base(target)
	s.audit(ctx, doc.ID, "relocate", domain.LogSuccess, "moved to "+target)
}

func (s *Service) runVectorize(ctx context.Context, doc *domain.Document, names stageNames) {
	start := time.Now()
	if doc.FullText == "" || s.ai == nil {
		s.setStage(doc, domain.StageVector, domain.StatusSkipped)
		s.save(ctx, doc)
		observeStage(domain.StageVector, start, domain.StatusSkipped)
		return
	}

	s.setStage(doc, domain.StageVector, domain.StatusProcessing)
	s.save(ctx, doc)

	input := buildEmbeddingInput(doc, names.correspondent, names.docType, names.tags)
	result, err := s.ai.Embed(ctx, input)
	if err != nil {
		s.setStage(doc, domain.StageVector, domain.StatusFailed)
		s.audit(ctx, doc.ID, "vectorize", domain.LogError, err.Error())
		s.save(ctx, doc)
		observeStage(domain.StageVector, start, domain.StatusFailed)
		return
	}

	title := doc.Title
	if title == "" {
		title = doc.Filename
	}
	meta := domain.VectorMetadata{
		DocumentID:    doc.ID,
		Title:         title,
		Correspondent: names.correspondent,
		DocType:       names.docType,
		TaxRelevant:   doc.TaxRelevant,
		CreatedAt:     doc.CreatedAt.UTC().Format(time.RFC3339),
	}
	if err := s.vectors.Upsert(ctx, doc.ID, input, result.Embedding, meta); err != nil {
		s.setStage(doc, domain.StageVector, domain.StatusFailed)
		s.audit(ctx, doc.ID, "vectorize", domain.LogError, err.Error())
		s.save(ctx, doc)
		observeStage(domain.StageVector, start, domain.StatusFailed)
		return
	}

	s.setStage(doc, domain.StageVector, domain.StatusCompleted)
	s.audit(ctx, doc.ID, "vectorize", domain.LogSuccess, fmt.Sprintf("%d dimensions, %d tokens", len(result.Embedding), result.TotalTokens))
	s.save(ctx, doc)
	observeStage(domain.StageVector, start, domain.StatusCompleted)
}

// ReprocessExisting re-runs failed or pending stages of a stored document:
// OCR when not completed, then AI when OCR succeeded, then vectorization
// regardless of prior vector state.
func (s *Service) ReprocessExisting(ctx context.Context, id string) (*domain.Document, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	text := doc.FullText
	if doc.OCRStatus == domain.StatusPending || doc.OCRStatus == domain.StatusFailed {
		if doc.FilePath == "" || !fileExists(doc.FilePath) {
			return nil, fmt.Errorf("document %s: backing file missing", id)
		}
		s.resetStage(doc, domain.StageOCR)
		text = s.runOCR(ctx, doc, doc.FilePath)
	}

	var names stageNames
	if doc.OCRStatus == domain.StatusCompleted {
		if doc.AIStatus == domain.StatusPending || doc.AIStatus == domain.StatusFailed || doc.AIStatus == domain.StatusSkipped {
			s.resetStage(doc, domain.StageAI)
			names = s.runAI(ctx, doc, text)
		} else {
			names = s.resolveNames(ctx, doc)
		}

		s.resetStage(doc, domain.StageVector)
		s.runVectorize(ctx, doc, names)
	}

	if err := s.docs.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("save record: %w", err)
	}
	return doc, nil
}

// RetryOCR re-runs only the OCR stage.
func (s *Service) RetryOCR(ctx context.Context, id string) (*domain.Document, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.FilePath == "" || !fileExists(doc.FilePath) {
		return nil, fmt.Errorf("document %s: backing file missing", id)
	}
	s.resetStage(doc, domain.StageOCR)
	s.runOCR(ctx, doc, doc.FilePath)
	return doc, s.docs.Save(ctx, doc)
}

// RetryAI re-runs only the metadata stage using the stored full text.
func (s *Service) RetryAI(ctx context.Context, id string) (*domain.Document, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.resetStage(doc, domain.StageAI)
	s.runAI(ctx, doc, doc.FullText)
	return doc, s.docs.Save(ctx, doc)
}

// RetryVectorize re-runs only the vectorization stage.
func (s *Service) RetryVectorize(ctx context.Context, id string) (*domain.Document, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.resetStage(doc, domain.StageVector)
	s.runVectorize(ctx, doc, s.resolveNames(ctx, doc))
	return doc, s.docs.Save(ctx, doc)
}

// CleanupOrphans purges every document whose archived file no longer exists.
// Returns the number of purged records.
func (s *Service) CleanupOrphans(ctx context.Context) (int, error) {
	docs, err := s.docs.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("list documents: %w", err)
	}

	purged := 0
	for _, doc := range docs {
		if doc.FilePath == "" || fileExists(doc.FilePath) {
			continue
		}
		if err := s.purge(ctx, doc); err != nil {
			s.logger.Warn("purge orphan", zap.String("document_id", doc.ID), zap.Error(err))
			continue
		}
		purged++
	}
	if purged > 0 {
		s.audit(ctx, "", "cleanup_orphans", domain.LogInfo, fmt.Sprintf("purged %d orphaned records", purged))
	}
	return purged, nil
}

// Stats returns corpus counters.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	docs, err := s.docs.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count documents: %w", err)
	}
	vectors, err := s.vectors.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count vectors: %w", err)
	}
	return Stats{Documents: docs, Vectors: vectors}, nil
}

// purge removes a record with its vector entry, logs and hash claim.
func (s *Service) purge(ctx context.Context, doc *domain.Document) error {
	if err := s.vectors.Delete(ctx, doc.ID); err != nil {
		s.logger.Warn("delete vector entry", zap.String("document_id", doc.ID), zap.Error(err))
	}
	if err := s.logbook.DeleteForDocument(ctx, doc.ID); err != nil {
		s.logger.Warn("delete document log", zap.String("document_id", doc.ID), zap.Error(err))
	}
	if err := s.docs.ReleaseHash(ctx, doc.FileHash); err != nil {
		return fmt.Errorf("release hash: %w", err)
	}
	if err := s.docs.Delete(ctx, doc.ID); err != nil && !errors.Is(err, domain.ErrDocumentNotFound) {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

func (s *Service) validate(path string) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	allowed := false
	for _, a := range s.cfg.AllowedExtensions {
		if ext == a {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("extension %q not allowed: %w", ext, domain.ErrFileRejected)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}
	if s.cfg.MaxFileSizeBytes > 0 && info.Size() > s.cfg.MaxFileSizeBytes {
		return fmt.Errorf("size %d exceeds limit %d: %w", info.Size(), s.cfg.MaxFileSizeBytes, domain.ErrFileRejected)
	}
	return nil
}

func (s *Service) moveToDuplicates(ctx context.Context, path, existingID string) {
	if err := os.MkdirAll(s.cfg.DuplicatesDir, 0o750); err != nil {
		s.logger.Warn("create duplicates dir", zap.Error(err))
		return
	}
	target := uniquePath(filepath.Join(s.cfg.DuplicatesDir, filepath.Base(path)))
	if err := moveFile(path, target); err != nil {
		s.logger.Warn("move duplicate aside", zap.String("path", path), zap.Error(err))
		return
	}
	s.audit(ctx, existingID, "dedup", domain.LogInfo, "duplicate moved to "+target)
}

// resolveNames looks up the entity names referenced by a document, for
// rebuilding the embedding input outside a fresh AI run.
func (s *Service) resolveNames(ctx context.Context, doc *domain.Document) stageNames {
	var names stageNames
	if doc.CorrespondentID != "" {
		if e, err := s.catalog.Get(ctx, catalog.KindCorrespondent, doc.CorrespondentID); err == nil {
			names.correspondent = e.Name
		}
	}
	if doc.DocTypeID != "" {
		if e, err := s.catalog.Get(ctx, catalog.KindDocType, doc.DocTypeID); err == nil {
			names.docType = e.Name
		}
	}
	for _, tagID := range doc.TagIDs {
		if e, err := s.catalog.Get(ctx, catalog.KindTag, tagID); err == nil {
			names.tags = append(names.tags, e.Name)
		}
	}
	return names
}

func (s *Service) entityNames(ctx context.Context, kind catalog.Kind, limit int) []string {
	entities, err := s.catalog.List(ctx, kind)
	if err != nil {
		s.logger.Warn("list catalog entities", zap.String("kind", string(kind)), zap.Error(err))
		return nil
	}
	names := make([]string, 0, len(entities))
	for _, e := range entities {
		names = append(names, e.Name)
		if limit > 0 && len(names) == limit {
			break
		}
	}
	return names
}

// resetStage returns a stage to pending ahead of a re-run.
func (s *Service) resetStage(doc *domain.Document, stage domain.Stage) {
	if doc.StageStatus(stage) == domain.StatusPending {
		return
	}
	s.setStage(doc, stage, domain.StatusPending)
}

// setStage applies a status change and logs impossible transitions instead of
// failing the pipeline.
func (s *Service) setStage(doc *domain.Document, stage domain.Stage, to domain.Status) {
	if err := doc.SetStageStatus(stage, to); err != nil {
		s.logger.Warn("stage transition rejected",
			zap.String("document_id", doc.ID),
			zap.String("stage", string(stage)),
			zap.String("to", string(to)),
			zap.Error(err))
	}
}

// save persists intermediate pipeline state; failures are logged, not fatal,
// because the final save at the end of ProcessFile is authoritative.
func (s *Service) save(ctx context.Context, doc *domain.Document) {
	if err := s.docs.Save(ctx, doc); err != nil {
		s.logger.Warn("save document", zap.String("document_id", doc.ID), zap.Error(err))
	}
}

func (s *Service) audit(ctx context.Context, docID, operation string, status domain.LogStatus, message string) {
	if err := s.logbook.Append(ctx, domain.NewProcessingLog(docID, operation, status, message)); err != nil {
		s.logger.Warn("append processing log", zap.String("operation", operation), zap.Error(err))
	}
}
