package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/lendfast/mortgage-intake/internal/models"
	"github.com/lendfast/mortgage-intake/internal/registry"
)

// maxVisionPages caps how many rendered pages go to the vision model per
// document.
const maxVisionPages = 2

// CloudExtractor extracts document fields with a vision-capable chat model.
type CloudExtractor struct {
	client      *openai.Client
	model       string
	maxFileSize int64
	logger      *zap.Logger
}

// NewCloudExtractor creates a vision-backed extractor.
func NewCloudExtractor(apiKey, baseURL, model string, maxFileSize int64, logger *zap.Logger) *CloudExtractor {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &CloudExtractor{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// Method reports how results produced by this extractor were obtained.
func (e *CloudExtractor) Method() string { return models.MethodCloud }

// Probe verifies the vision backend is reachable with the configured
// credentials. Called once at startup.
func (e *CloudExtractor) Probe(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("vision backend unreachable: %w", err)
	}
	return nil
}

// Extract renders the document's pages to images and asks the vision model
// for the declared type's fields.
func (e *CloudExtractor) Extract(ctx context.Context, in Input) (*models.ExtractionResult, error) {
	if err := CheckSize(in, e.maxFileSize); err != nil {
		return nil, err
	}

	e.logger.Info("Extracting document fields with vision model",
		zap.String("filename", in.Filename),
		zap.String("declared_type", in.DeclaredType))

	images, err := renderPages(in)
	if err != nil {
		return nil, &models.ExtractionError{Filename: in.Filename, Reason: "failed to render document pages", Err: err}
	}
	if len(images) == 0 {
		return nil, &models.ExtractionError{Filename: in.Filename, Reason: "no pages could be rendered"}
	}
	if len(images) > maxVisionPages {
		images = images[:maxVisionPages]
	}

	contentParts := []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: buildVisionPrompt(in.DeclaredType),
	}}
	for _, imgData := range images {
		contentParts = append(contentParts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    fmt.Sprintf("data:image/jpeg;base64,%s", base64.StdEncoding.EncodeToString(imgData)),
				Detail: openai.ImageURLDetailHigh,
			},
		})
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		MaxTokens:   4096,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an expert in reading mortgage application documents such as payslips, bank statements, and identity documents. You read every field exactly as printed. Always respond with valid JSON.",
			},
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: contentParts,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		e.logger.Error("Vision API call failed", zap.String("filename", in.Filename), zap.Error(err))
		return nil, &models.ExtractionError{Filename: in.Filename, Reason: "vision API call failed", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &models.ExtractionError{Filename: in.Filename, Reason: "no response from vision API"}
	}

	content := resp.Choices[0].Message.Content
	result, err := parseVisionResponse(content)
	if err != nil {
		e.logger.Error("Failed to parse vision response",
			zap.String("filename", in.Filename),
			zap.String("content", content),
			zap.Error(err))
		return nil, &models.ExtractionError{Filename: in.Filename, Reason: "failed to parse vision response", Err: err}
	}

	result.Method = models.MethodCloud
	e.logger.Info("Document fields extracted",
		zap.String("filename", in.Filename),
		zap.Int("field_count", len(result.Fields)),
		zap.Float64("confidence", result.Confidence))
	return result, nil
}

type visionResponse struct {
	Fields     map[string]json.RawMessage `json:"fields"`
	RawText    string                     `json:"raw_text"`
	Confidence float64                    `json:"confidence"`
}

func parseVisionResponse(content string) (*models.ExtractionResult, error) {
	var parsed visionResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal vision response: %w", err)
	}

	fields := make(map[string]string, len(parsed.Fields))
	for name, raw := range parsed.Fields {
		// Field values may come back as strings or numbers.
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			fields[name] = s
			continue
		}
		fields[name] = strings.Trim(string(raw), `"`)
	}

	confidence := parsed.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = 0.9
	}

	return &models.ExtractionResult{
		Fields:     fields,
		RawText:    parsed.RawText,
		Confidence: confidence,
	}, nil
}

// renderPages turns the document bytes into one JPEG per page. Image
// uploads pass through re-encoded as a single page.
func renderPages(in Input) ([][]byte, error) {
	ext := strings.ToLower(fileExt(in.Filename))
	switch ext {
	case "jpg", "jpeg", "png":
		return renderImage(in.Data, ext)
	}

	doc, err := fitz.NewFromMemory(in.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer doc.Close()

	var images [][]byte
	for pageNum := 0; pageNum < doc.NumPage(); pageNum++ {
		img, err := doc.Image(pageNum)
		if err != nil {
			continue
		}
		data, err := encodeJPEG(img)
		if err != nil {
			continue
		}
		images = append(images, data)
	}
	return images, nil
}

func renderImage(data []byte, ext string) ([][]byte, error) {
	var img image.Image
	var err error
	switch ext {
	case "jpg", "jpeg":
		img, err = jpeg.Decode(bytes.NewReader(data))
	case "png":
		img, err = png.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	encoded, err := encodeJPEG(img)
	if err != nil {
		return nil, err
	}
	return [][]byte{encoded}, nil
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

func fileExt(filename string) string {
	if idx := strings.LastIndex(filename, "."); idx >= 0 {
		return filename[idx+1:]
	}
	return ""
}

func buildVisionPrompt(declaredType string) string {
	req := registry.RequirementsFor(declaredType)

	var b strings.Builder
	fmt.Fprintf(&b, "Carefully examine this %s submitted with a mortgage application and extract ALL information.\n\n", req.DisplayName)
	b.WriteString("REQUIRED FIELDS:\n")
	for _, f := range req.RequiredFields {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	if len(req.OptionalFields) > 0 {
		b.WriteString("\nOPTIONAL FIELDS (extract if visible):\n")
		for _, f := range req.OptionalFields {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	b.WriteString(`
Return a JSON object with this exact structure:
{
  "fields": {"<field_name>": "<value as printed>"},
  "raw_text": "all visible text on the document",
  "confidence": <0.0 to 1.0, your confidence in the extraction>
}

IMPORTANT:
- Extract EXACTLY what you see. Do not guess or make up values.
- Use YYYY-MM-DD for dates where the printed format allows it.
- For amounts, keep the printed value without currency symbols.
- Omit a field from "fields" entirely if it is not visible.`)
	return b.String()
}
