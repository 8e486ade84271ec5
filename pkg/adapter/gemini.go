package adapter

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/momentseek/pkg/model"
	"google.golang.org/genai"
)

// Gemini is the subset of the genai client used for moment prediction
type Gemini interface {
	GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type GeminiClient struct {
	client          *genai.Client
	generativeModel string
}

type GeminiOption func(*GeminiClient)

func WithGenerativeModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.generativeModel = model
	}
}

func NewGemini(ctx context.Context, projectID, location string, opts ...GeminiOption) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &GeminiClient{
		client:          client,
		generativeModel: "gemini-2.5-flash",
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func (g *GeminiClient) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate content")
	}
	return resp, nil
}

// Inline video parts are capped by the API request size
const maxInlineVideoBytes = 20 << 20

const momentInstruction = `You locate moments in a video that answer a question.
Return every time range (in seconds from the start of the video) where the
answer to the question is visible, with your confidence in [0, 1].
Return an empty list when nothing in the video matches.`

// PredictionSchema describes the payload returned by every predictor
func PredictionSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"predicted_moments": {
				Type:        "array",
				Description: "Matching moments as [start_seconds, end_seconds, confidence]",
				Items: &jsonschema.Schema{
					Type:  "array",
					Items: &jsonschema.Schema{Type: "number"},
				},
			},
		},
		Required: []string{"predicted_moments"},
	}
}

// GeminiPredictor asks a Gemini model for moments and returns the same
// payload shape as the prediction server.
type GeminiPredictor struct {
	gemini Gemini
}

func NewGeminiPredictor(gemini Gemini) *GeminiPredictor {
	return &GeminiPredictor{gemini: gemini}
}

func (p *GeminiPredictor) Predict(ctx context.Context, input *model.PredictInput) (*model.Prediction, error) {
	if input == nil || input.Video == nil || input.Video.Open == nil {
		return nil, goerr.Wrap(model.ErrVideoRequired, "no video to send")
	}

	data, err := readVideo(ctx, input.Video)
	if err != nil {
		return nil, err
	}

	schema, err := convertJSONSchemaToGenai(PredictionSchema())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to convert prediction schema")
	}

	mimeType := input.Video.MIMEType
	if mimeType == "" {
		mimeType = "video/mp4"
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{InlineData: &genai.Blob{Data: data, MIMEType: mimeType}},
				{Text: input.Query},
			},
		},
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: momentInstruction}},
		},
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
		Temperature:      ptrFloat32(0),
	}

	resp, err := p.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return nil, goerr.Wrap(model.ErrPredictionFailed, "gemini prediction failed",
			goerr.V("cause", err.Error()))
	}

	text := responseText(resp)
	if text == "" {
		return nil, goerr.Wrap(model.ErrPredictionFailed, "gemini returned no content")
	}
	if !json.Valid([]byte(text)) {
		return nil, goerr.Wrap(model.ErrMalformedResponse, "gemini returned invalid JSON",
			goerr.V("body", truncate(text, maxErrorBodyChars)))
	}

	return &model.Prediction{Raw: []byte(text)}, nil
}

func readVideo(ctx context.Context, video *model.Video) ([]byte, error) {
	r, err := video.Open(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open video", goerr.V("video", video.Label))
	}
	defer r.Close()

	data, err := io.ReadAll(io.LimitReader(r, maxInlineVideoBytes+1))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read video", goerr.V("video", video.Label))
	}
	if len(data) > maxInlineVideoBytes {
		return nil, goerr.New("video too large for inline prediction",
			goerr.V("video", video.Label),
			goerr.V("limit", maxInlineVideoBytes))
	}
	return data, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

func ptrFloat32(v float32) *float32 {
	return &v
}

// convertJSONSchemaToGenai converts JSON Schema to genai.Schema
func convertJSONSchemaToGenai(schema *jsonschema.Schema) (*genai.Schema, error) {
	if schema == nil {
		return nil, nil
	}

	out := &genai.Schema{Description: schema.Description}

	switch schema.Type {
	case "object":
		out.Type = genai.TypeObject
	case "string":
		out.Type = genai.TypeString
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	case "array":
		out.Type = genai.TypeArray
	case "":
	default:
		return nil, goerr.New("unsupported schema type", goerr.V("type", schema.Type))
	}

	if len(schema.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(schema.Properties))
		for name, prop := range schema.Properties {
			converted, err := convertJSONSchemaToGenai(prop)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to convert property schema", goerr.V("property", name))
			}
			out.Properties[name] = converted
		}
	}
	out.Required = schema.Required

	if schema.Items != nil {
		converted, err := convertJSONSchemaToGenai(schema.Items)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to convert items schema")
		}
		out.Items = converted
	}

	return out, nil
}
