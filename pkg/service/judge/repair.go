package judge

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/argus/pkg/domain/model"
)

const repairSystemPrompt = `You convert the answer of an image inspection model into a JSON verdict.
Use only information found in the answer. Do not invent observations.
If the answer does not state whether the image is valid, set is_valid to false and confidence to 0.1.`

func repair(ctx context.Context, client gollem.LLMClient, text string) (*model.Verdict, error) {
	session, err := client.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(verdictSchema()),
		gollem.WithSessionSystemPrompt(repairSystemPrompt),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create repair session")
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(text))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate repaired verdict")
	}
	if resp == nil || len(resp.Texts) == 0 {
		return nil, goerr.New("repair session returned no text")
	}

	return ParseVerdict(strings.Join(resp.Texts, ""))
}

func stringList(description string) *gollem.Parameter {
	return &gollem.Parameter{
		Type:        gollem.TypeArray,
		Description: description,
		Items:       &gollem.Parameter{Type: gollem.TypeString},
		Required:    true,
	}
}

func verdictSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "InspectionVerdict",
		Description: "Verdict of an image inspection",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"is_valid": {
				Type:        gollem.TypeBoolean,
				Description: "true if the validation criteria are met",
				Required:    true,
			},
			"confidence": {
				Type:        gollem.TypeNumber,
				Description: "Confidence in the assessment between 0 and 1",
				Required:    true,
			},
			"diagnosis": {
				Type:     gollem.TypeObject,
				Required: true,
				Properties: map[string]*gollem.Parameter{
					"overall_assessment":   {Type: gollem.TypeString, Description: "One sentence summary", Required: true},
					"confidence_level":     {Type: gollem.TypeNumber, Description: "Same as confidence", Required: true},
					"key_observations":     stringList("Visible features"),
					"matched_criteria":     stringList("Criteria that were met"),
					"failed_criteria":      stringList("Criteria that failed or could not be assessed"),
					"detailed_explanation": {Type: gollem.TypeString, Required: true},
				},
			},
			"explanation": {Type: gollem.TypeString, Required: true},
		},
	}
}
