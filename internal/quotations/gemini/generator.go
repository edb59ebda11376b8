// Package gemini adapts the Google generative AI service to the quotation
// report generator port.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/quotia/backend/internal/quotations"
)

const (
	defaultModel = "gemini-1.5-flash-latest"

	generationTemperature     = 1
	generationTopK            = 1
	generationTopP            = 1
	generationMaxOutputTokens = 16384
)

var (
	errMissingAPIKey = errors.New("gemini: api key is required")
	// ErrBlocked indicates the request or response was rejected by the
	// service's safety filters.
	ErrBlocked = errors.New("gemini: request blocked")
	// ErrEmptyResponse indicates the service returned no usable report text.
	ErrEmptyResponse = errors.New("gemini: empty response")
)

// GeneratorConfig describes the settings for the Gemini-backed generator.
type GeneratorConfig struct {
	APIKey string
	// Model overrides the default model name when set.
	Model  string
	Logger *zap.Logger
}

// Generator produces quotation reports through the Gemini API. It satisfies
// quotations.ReportGenerator.
type Generator struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGenerator constructs the generator and its underlying API client.
func NewGenerator(ctx context.Context, cfg GeneratorConfig) (*Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errMissingAPIKey
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	model := cfg.Model
	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{client: client, model: model, logger: logger}, nil
}

// Close releases the underlying API client.
func (g *Generator) Close() error {
	return g.client.Close()
}

// GenerateReport requests a markdown quotation report for the input. A mockup
// image, when present, is attached inline so the model can weigh the UI
// complexity in its estimates.
func (g *Generator) GenerateReport(ctx context.Context, input quotations.GenerationInput) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(generationTemperature)
	model.SetTopK(generationTopK)
	model.SetTopP(generationTopP)
	model.SetMaxOutputTokens(generationMaxOutputTokens)
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockMediumAndAbove},
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockMediumAndAbove},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockMediumAndAbove},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockMediumAndAbove},
	}

	parts := []genai.Part{genai.Text(buildPrompt(input))}
	if input.Mockup != nil {
		parts = append(parts,
			genai.ImageData(imageFormat(input.Mockup.MIMEType), input.Mockup.Data),
			genai.Text("\nBased on the details above and the provided mockup image, generate the quotation report."),
		)
	}

	g.logger.Info("requesting quotation report",
		zap.String("model", g.model),
		zap.String("project", input.ProjectName),
		zap.Bool("with_mockup", input.Mockup != nil))

	response, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}

	text, err := extractText(response)
	if err != nil {
		g.logger.Error("quotation report generation failed",
			zap.String("project", input.ProjectName),
			zap.Error(err))
		return "", err
	}

	g.logger.Info("quotation report generated",
		zap.String("project", input.ProjectName),
		zap.Int("length", len(text)))
	return text, nil
}

// extractText validates the response and joins its text parts. Safety blocks
// surface as ErrBlocked so callers can distinguish them from transport errors.
func extractText(response *genai.GenerateContentResponse) (string, error) {
	if response.PromptFeedback != nil && response.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return "", fmt.Errorf("%w: %s", ErrBlocked, response.PromptFeedback.BlockReason)
	}
	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		var reason genai.FinishReason
		if len(response.Candidates) > 0 {
			reason = response.Candidates[0].FinishReason
		}
		return "", fmt.Errorf("%w: no candidate content, finish reason %s", ErrEmptyResponse, reason)
	}

	candidate := response.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: finish reason %s", ErrBlocked, candidate.FinishReason)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

// imageFormat converts a MIME type like "image/png" to the bare format name
// the API expects.
func imageFormat(mimeType string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
}

func buildPrompt(input quotations.GenerationInput) string {
	var sb strings.Builder

	sb.WriteString("You are a specialist software developer and project manager with deep knowledge of software pricing and the full development process: hours, licences, cloud usage, legal permissions, hiring, and related costs.\n\n")
	sb.WriteString("Generate a comprehensive software project quotation report based on the following details. Structure the report professionally with clear sections (Introduction, Scope, Technology Stack Estimate, Feature Breakdown Estimate, Timeline Estimate, Cost Estimate, Assumptions, Simulation, Next Steps).\n\n")

	fmt.Fprintf(&sb, "**Project Name:** %s\n\n", input.ProjectName)
	fmt.Fprintf(&sb, "**Project Description:**\n%s\n\n", input.Description)

	if input.SelfMade {
		sb.WriteString("**Development Team Structure:** Solo Developer / Self-Made\n\n")
	} else {
		sb.WriteString("**Development Team Structure:** Team-Based Project (assume standard team roles like PM, Devs, QA if applicable)\n\n")
	}

	if input.Capital > 0 {
		fmt.Fprintf(&sb, "**Estimated Initial Capital/Budget:** $ USD %.2f\n", input.Capital)
		sb.WriteString("- Consider this budget constraint in your estimations. If this budget is not enough, notify the user and suggest both an initial capital and a total capital.\n\n")
	} else {
		sb.WriteString("**Estimated Initial Capital/Budget:** Not specified\n\n")
	}

	sb.WriteString("**Key Requirements for the Report:**\n")
	if input.Mockup != nil {
		sb.WriteString("1. **Analyze Complexity:** Based on the description and the provided mockup image, assess the overall complexity.\n")
		sb.WriteString("2. **Estimate Design Effort:** Evaluate the provided mockup. Estimate the time and cost needed for a UI/UX designer to refine and implement this design, considering its complexity.\n")
	} else {
		sb.WriteString("1. **Analyze Complexity:** Based on the description, assess the overall complexity.\n")
		sb.WriteString("2. **Estimate Design Effort:** No mockup provided; assume standard design effort or mention the need for a design phase.\n")
	}
	sb.WriteString("3. **Technology Stack:** Suggest a suitable technology stack if not specified, or comment on the feasibility of any mentioned technologies. Estimate effort related to stack setup and configuration.\n")
	sb.WriteString("4. **Feature Breakdown:** Break down major features from the description and estimate effort (hours, days, or story points) for each.\n")
	sb.WriteString("5. **Timeline:** Provide a rough timeline estimate (weeks or months) for development phases (Design, Development, Testing, Deployment).\n")
	sb.WriteString("6. **Cost Estimation:** Provide a cost range based on estimated effort and typical freelance or agency rates, clearly stating the assumed rate. Factor in the team structure (solo vs. team).\n")
	sb.WriteString("7. **Assumptions:** Clearly list any assumptions made during the estimation.\n")
	sb.WriteString("8. **Professional Tone:** Use clear, concise, professional language suitable for a client proposal.\n")
	sb.WriteString("9. **Format:** Output the report as well-structured markdown (headings, lists, bold text, tables).\n")
	sb.WriteString("10. **Projection:** Simulate the first year of the product based on development, usage, and demand, unless the description requests a different projection.\n\n")

	sb.WriteString("Additional notes:\n")
	sb.WriteString("a) The report must be written in Spanish.\n")
	if input.Mockup != nil {
		sb.WriteString("b) Comment on the mockup: how complex the app or system may be given the quality of its UI/UX, and whether that implies more time, more budget, or hiring a designer.\n")
	}
	sb.WriteString("c) The quotation is the core deliverable: research and compare prices for anything that must be paid (licences, subscriptions, cloud services) relevant to this type of project.\n")
	sb.WriteString("d) Adapt every estimate to a user based in Mexico; rates and costs differ from other markets.\n")

	return sb.String()
}
