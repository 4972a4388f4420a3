package extraction

import (
	"context"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/sashabaranov/go-openai"

	"github.com/freightdesk/shipledger/ledger"
)

const systemPrompt = "You are a data-entry assistant for a freight forwarder. " +
	"You read shipping documents and return structured shipment data as JSON."

const extractionPromptTemplate = `Extract the shipment fields below from the document text.
Return a single JSON object and nothing else. Omit any field the text does not mention.

Fields:
- container_number: container number, 4 uppercase letters followed by 7 digits
- house_bol_number: house bill of lading number
- master_bol_number: master bill of lading number
- port_of_loading: port where cargo is loaded
- port_of_discharge: port where cargo is discharged
- vessel_name: name of the vessel
- voyage_number: voyage number
- flight_number: flight number, for air freight
- gross_weight_kgs: gross weight in kilograms, as a number
- shipper_name: name of the shipper
- consignee_name: name of the consignee
- transportMode: one of ocean, air, land, rail

Document text:
%s`

// FieldExtractor asks an LLM to pull shipment fields out of document
// text.
type FieldExtractor struct {
	client *openai.Client
	model  string
}

// NewFieldExtractor creates a FieldExtractor talking to the OpenAI API.
func NewFieldExtractor(apiKey, model string) (*FieldExtractor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("extraction requires an OpenAI API key")
	}

	return &FieldExtractor{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// ExtractFields returns the shipment fields the model found in the text
// as a partial snapshot. Values come back unvalidated; callers run them
// through the validator before writing.
func (e *FieldExtractor) ExtractFields(ctx context.Context, text string) (ledger.Snapshot, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(extractionPromptTemplate, text)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("calling extraction model: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("extraction model returned no choices")
	}

	return ParseModelResponse(resp.Choices[0].Message.Content)
}

// ParseModelResponse decodes the model output into a snapshot, tolerating
// the markdown code fences models like to wrap JSON in.
func ParseModelResponse(content string) (ledger.Snapshot, error) {
	content = strings.TrimSpace(content)
	if after, found := strings.CutPrefix(content, "```json"); found {
		content = after
	} else if after, found := strings.CutPrefix(content, "```"); found {
		content = after
	}
	content = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(content), "```"))

	var fields ledger.Snapshot
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(content, &fields); err != nil {
		return nil, fmt.Errorf("parsing extraction response: %w", err)
	}

	return fields, nil
}
