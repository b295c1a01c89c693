package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"procurement-recon/internal/core"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"
	"github.com/shopspring/decimal"
)

// ErrExtraction marks model output that cannot be turned into invoice lines.
var ErrExtraction = errors.New("invoice extraction failed")

// ExtractedLine is one invoice line as read by the model. Amounts are decimal strings.
type ExtractedLine struct {
	Description string `json:"description" jsonschema:"description=Line description exactly as printed"`
	Quantity    string `json:"quantity" jsonschema:"description=Billed quantity as a plain decimal string"`
	UnitPrice   string `json:"unit_price" jsonschema:"description=Unit price as a decimal string without currency symbol"`
	LineTotal   string `json:"line_total" jsonschema:"description=Line total as printed or empty if absent"`
}

// ExtractedInvoice is the structured output requested from the model.
type ExtractedInvoice struct {
	SupplierReference string          `json:"supplier_reference" jsonschema:"description=Supplier's own invoice number"`
	IssuedAt          string          `json:"issued_at" jsonschema:"description=Issue date as YYYY-MM-DD or empty if absent"`
	Lines             []ExtractedLine `json:"lines"`
}

// Normalize trims whitespace and strips currency symbols and thousands separators
// from amounts.
func (e *ExtractedInvoice) Normalize() {
	e.SupplierReference = strings.TrimSpace(e.SupplierReference)
	e.IssuedAt = strings.TrimSpace(e.IssuedAt)
	for i := range e.Lines {
		l := &e.Lines[i]
		l.Description = strings.Join(strings.Fields(l.Description), " ")
		l.Quantity = cleanAmount(l.Quantity)
		l.UnitPrice = cleanAmount(l.UnitPrice)
		l.LineTotal = cleanAmount(l.LineTotal)
	}
}

func cleanAmount(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "").Replace(s)
	return s
}

// Validate rejects output that would produce an unusable invoice.
func (e *ExtractedInvoice) Validate() error {
	if len(e.Lines) == 0 {
		return fmt.Errorf("%w: no lines", ErrExtraction)
	}
	if e.IssuedAt != "" {
		if _, err := time.Parse("2006-01-02", e.IssuedAt); err != nil {
			return fmt.Errorf("%w: issued_at %q is not YYYY-MM-DD", ErrExtraction, e.IssuedAt)
		}
	}
	for i, l := range e.Lines {
		if l.Description == "" {
			return fmt.Errorf("%w: line %d has no description", ErrExtraction, i+1)
		}
		qty, err := decimal.NewFromString(l.Quantity)
		if err != nil || !qty.IsPositive() {
			return fmt.Errorf("%w: line %d quantity %q must be a positive number", ErrExtraction, i+1, l.Quantity)
		}
		price, err := decimal.NewFromString(l.UnitPrice)
		if err != nil || price.IsNegative() {
			return fmt.Errorf("%w: line %d unit price %q must be a non-negative number", ErrExtraction, i+1, l.UnitPrice)
		}
		if l.LineTotal != "" {
			if _, err := decimal.NewFromString(l.LineTotal); err != nil {
				return fmt.Errorf("%w: line %d total %q is not a number", ErrExtraction, i+1, l.LineTotal)
			}
		}
	}
	return nil
}

// ToInvoice builds an unresolved, pending invoice. Line totals are recomputed
// from quantity and price; the printed total is not trusted. Call Normalize and
// Validate first.
func (e *ExtractedInvoice) ToInvoice(id string, purchaseOrderID *string, supplierID string, receivedAt time.Time) (*core.Invoice, error) {
	inv := &core.Invoice{
		ID:                id,
		PurchaseOrderID:   purchaseOrderID,
		SupplierID:        supplierID,
		IssuedAt:          receivedAt.UTC().Truncate(24 * time.Hour),
		SupplierReference: e.SupplierReference,
		Approval:          core.ApprovalPending,
	}
	if e.IssuedAt != "" {
		issued, err := time.Parse("2006-01-02", e.IssuedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
		}
		inv.IssuedAt = issued
	}

	total := decimal.Zero
	for i, l := range e.Lines {
		qty, err := decimal.NewFromString(l.Quantity)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d quantity: %v", ErrExtraction, i+1, err)
		}
		price, err := decimal.NewFromString(l.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d unit price: %v", ErrExtraction, i+1, err)
		}
		lt := qty.Mul(price).Round(2)
		inv.Lines = append(inv.Lines, core.InvoiceLine{
			Description: l.Description,
			Quantity:    qty,
			UnitPrice:   price,
			LineTotal:   lt,
			Provenance:  core.ProvenanceUnmatched,
		})
		total = total.Add(lt)
	}
	inv.TotalAmount = total
	return inv, nil
}

// Extractor reads supplier invoices into structured lines.
type Extractor interface {
	ExtractText(ctx context.Context, text string) (*ExtractedInvoice, error)
	ExtractImage(ctx context.Context, mimeType string, data []byte) (*ExtractedInvoice, error)
}

// InvoiceExtractor calls the OpenAI Responses API with a strict JSON schema.
type InvoiceExtractor struct {
	client *openai.Client
	model  string
}

// NewInvoiceExtractor returns an extractor using model (gpt-4o when empty).
// Extra options are passed to the OpenAI client.
func NewInvoiceExtractor(apiKey, model string, opts ...option.RequestOption) *InvoiceExtractor {
	if model == "" {
		model = string(shared.ChatModelGPT4o)
	}
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &InvoiceExtractor{client: &client, model: model}
}

const extractionPrompt = `You read supplier invoices for a restaurant.
Extract every billed line item. Rules:
1. Copy each description exactly as printed.
2. Quantities and prices are plain decimal strings (e.g. "18", "2.50"), no currency symbols.
3. Do not invent lines, merge lines, or skip delivery or deposit lines.
4. Leave supplier_reference, issued_at or line_total empty when the invoice does not show them.`

// ExtractText extracts lines from OCR or pasted invoice text.
func (x *InvoiceExtractor) ExtractText(ctx context.Context, text string) (*ExtractedInvoice, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty invoice text", ErrExtraction)
	}
	input := responses.ResponseNewParamsInputUnion{
		OfString: param.NewOpt(extractionPrompt + "\n\nInvoice:\n" + text),
	}
	return x.extract(ctx, input)
}

// ExtractImage extracts lines from a photographed or scanned invoice.
func (x *InvoiceExtractor) ExtractImage(ctx context.Context, mimeType string, data []byte) (*ExtractedInvoice, error) {
	switch mimeType {
	case "image/jpeg", "image/png", "image/webp":
	default:
		return nil, fmt.Errorf("%w: unsupported image type %q", ErrExtraction, mimeType)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrExtraction)
	}

	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
	input := responses.ResponseNewParamsInputUnion{
		OfInputItemList: responses.ResponseInputParam{
			responses.ResponseInputItemParamOfMessage(
				responses.ResponseInputMessageContentListParam{
					{OfInputText: &responses.ResponseInputTextParam{Text: extractionPrompt}},
					{OfInputImage: &responses.ResponseInputImageParam{
						ImageURL: param.NewOpt(dataURL),
						Detail:   responses.ResponseInputImageDetailHigh,
					}},
				},
				responses.EasyInputMessageRoleUser,
			),
		},
	}
	return x.extract(ctx, input)
}

func (x *InvoiceExtractor) extract(ctx context.Context, input responses.ResponseNewParamsInputUnion) (*ExtractedInvoice, error) {
	schemaMap, err := extractionSchema()
	if err != nil {
		return nil, err
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(x.model),
		Input: input,
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Type:        constant.JSONSchema("json_schema"),
					Name:        "supplier_invoice",
					Strict:      param.NewOpt(true),
					Schema:      schemaMap,
					Description: param.NewOpt("Line items read from a supplier invoice"),
				},
			},
		},
	}

	resp, err := x.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai responses error: %w", err)
	}
	return parseExtraction(resp.OutputText())
}

func parseExtraction(content string) (*ExtractedInvoice, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: empty response content", ErrExtraction)
	}
	var out ExtractedInvoice
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("%w: parse completion: %v", ErrExtraction, err)
	}
	out.Normalize()
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// extractionSchema reflects ExtractedInvoice into the map form the API expects.
func extractionSchema() (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schemaJSON, err := json.Marshal(reflector.Reflect(&ExtractedInvoice{}))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(schemaJSON, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema to map: %w", err)
	}
	return schemaMap, nil
}
