package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sdk "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/dockeep/dockeep/internal/domain"
)

// metadataTextLimit caps the document text sent for extraction.
const metadataTextLimit = 8000

// maxTags bounds the tag list regardless of what the model returns.
const maxTags = 10

const metadataSystemPrompt = "Du bist ein präziser Dokumenten-Metadaten-Extraktor. " +
	"Du analysierst deutsche Dokumente und extrahierst strukturierte Metadaten als JSON. " +
	"Folge immer genau der Namenskonvention für Titel."

// metadataDTO mirrors the JSON object the model is asked to produce.
type metadataDTO struct {
	Title        string   `json:"title"`
	DocumentType string   `json:"document_type"`
	Date         *string  `json:"date"`
	Sender       string   `json:"sender"`
	TaxRelevant  bool     `json:"tax_relevant"`
	Tags         []string `json:"tags"`
	Summary      string   `json:"summary"`
}

// ExtractMetadata asks the model for structured metadata of a document.
// knownTypes and knownCorrespondents guide the model towards existing catalog
// entries; both may be empty.
func (c *Client) ExtractMetadata(ctx context.Context, filename, text string, knownTypes, knownCorrespondents []string) (domain.ExtractedMetadata, error) {
	prompt := buildMetadataPrompt(filename, truncateRunes(text, metadataTextLimit), knownTypes, knownCorrespondents)

	var content string
	err := c.call(ctx, "extract_metadata", func(ctx context.Context) error {
		resp, err := c.api.CreateChatCompletion(ctx, sdk.ChatCompletionRequest{
			Model: c.chatModel,
			Messages: []sdk.ChatCompletionMessage{
				{Role: sdk.ChatMessageRoleSystem, Content: metadataSystemPrompt},
				{Role: sdk.ChatMessageRoleUser, Content: prompt},
			},
			Temperature: 0.1,
			ResponseFormat: &sdk.ChatCompletionResponseFormat{
				Type: sdk.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		if err != nil {
			return mapError("extract metadata", err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("extract metadata: empty response: %w", domain.ErrProviderUnavailable)
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return domain.ExtractedMetadata{}, err
	}

	var dto metadataDTO
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &dto); err != nil {
		c.logger.Warn("metadata response is not valid JSON", zap.Error(err))
		return domain.ExtractedMetadata{}, fmt.Errorf("extract metadata: parse response: %w", domain.ErrProviderUnavailable)
	}
	return sanitizeMetadata(dto, filename), nil
}

func buildMetadataPrompt(filename, text string, knownTypes, knownCorrespondents []string) string {
	var b strings.Builder
	b.WriteString("Analysiere den folgenden Dokumenttext und extrahiere die Metadaten als JSON-Objekt mit den Feldern ")
	b.WriteString(`title, document_type, date, sender, tax_relevant, tags, summary.` + "\n\n")
	b.WriteString("WICHTIGE NAMING-KONVENTION für den Titel:\n")
	b.WriteString("Format: {YYYY-MM-DD}_{dokumenttyp}_{SenderOhneSpaces}_{DreiWortBeschreibung}\n\n")
	b.WriteString("Beispiele guter Titel:\n")
	b.WriteString("- 2025-01-15_rechnung_MustermannGmbH_Stromrechnung_Januar_2025\n")
	b.WriteString("- 2024-12-01_vertrag_StadtBerlin_Mietvertrag_Wohnung_Zentrum\n\n")
	b.WriteString("Regeln:\n")
	b.WriteString("- date: relevantes Datum im Format YYYY-MM-DD (bevorzugt Ausstellungsdatum), sonst null\n")
	if len(knownTypes) > 0 {
		b.WriteString("- document_type aus der verfügbaren Liste wählen: " + strings.Join(knownTypes, ", ") + ". Verwende 'sonstiges' falls nichts passt.\n")
	} else {
		b.WriteString("- document_type: Art des Dokuments in Kleinbuchstaben, z.B. rechnung, vertrag, sonstiges\n")
	}
	b.WriteString("- sender ohne Leerzeichen in CamelCase (z.B. MaxMustermann, StadtBerlin, ABCGmbH)\n")
	if len(knownCorrespondents) > 0 {
		b.WriteString("- Bestehende Absender als Orientierung: " + strings.Join(knownCorrespondents, ", ") + "\n")
	}
	b.WriteString("- tax_relevant: ist das Dokument steuerlich relevant?\n")
	b.WriteString("- tags: 2 bis 10 relevante Stichwörter, z.B. Bau, Steuer, Vertrag, Privat\n")
	b.WriteString("- summary: kurze Zusammenfassung in ein bis zwei Sätzen\n\n")
	b.WriteString("Originaler Dateiname: " + filename + "\n\n")
	b.WriteString("Dokumenttext:\n" + text)
	return b.String()
}

// sanitizeMetadata normalizes model output so downstream stages never see
// malformed values.
func sanitizeMetadata(dto metadataDTO, filename string) domain.ExtractedMetadata {
	title := strings.TrimSpace(dto.Title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}

	docType := strings.ToLower(strings.TrimSpace(dto.DocumentType))
	if docType == "" {
		docType = "sonstiges"
	}

	var date string
	if dto.Date != nil {
		candidate := strings.TrimSpace(*dto.Date)
		if _, err := time.Parse("2006-01-02", candidate); err == nil {
			date = candidate
		}
	}

	tags := make([]string, 0, len(dto.Tags))
	seen := make(map[string]struct{}, len(dto.Tags))
	for _, tag := range dto.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		tags = append(tags, tag)
		if len(tags) == maxTags {
			break
		}
	}

	return domain.ExtractedMetadata{
		Title:             title,
		DocumentType:      docType,
		Date:              date,
		CorrespondentName: strings.TrimSpace(dto.Sender),
		TagNames:          tags,
		TaxRelevant:       dto.TaxRelevant,
		Summary:           strings.TrimSpace(dto.Summary),
	}
}

// stripCodeFence removes a markdown code fence some models wrap JSON in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
