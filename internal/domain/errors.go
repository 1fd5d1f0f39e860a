package domain

import "errors"

var (
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrEntityNotFound signals a missing correspondent, doctype, or tag.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrFileRejected signals a file failing pre-ingestion validation (no record is created).
	ErrFileRejected = errors.New("file rejected")
	// ErrProviderUnavailable signals that the AI collaborator is not configured or unreachable.
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	// ErrProviderTimeout signals an AI call that exceeded its deadline.
	ErrProviderTimeout = errors.New("ai provider timeout")
	// ErrCircuitOpen signals that the AI circuit breaker is open and calls are suspended.
	ErrCircuitOpen = errors.New("ai circuit open")
	// ErrOCRFailed signals unreadable or unsupported input to the OCR engine.
	ErrOCRFailed = errors.New("ocr failed")
	// ErrVectorStoreUnavailable signals that the backing similarity index could not be reached.
	ErrVectorStoreUnavailable = errors.New("vector store unavailable")
	// ErrInvalidTransition signals a stage status change the transition table forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
)
