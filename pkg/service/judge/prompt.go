package judge

import (
	"fmt"
	"strings"

	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/domain/types"
)

// responseContract is appended to every question so that the model answers with the
// verdict JSON only
const responseContract = `CRITICAL: You MUST respond with ONLY a JSON object. DO NOT include any other text, explanations, or markdown formatting.
The JSON object MUST follow this exact format:

{
  "is_valid": boolean,
  "confidence": number,
  "diagnosis": {
    "overall_assessment": string,
    "confidence_level": number,
    "key_observations": string[],
    "matched_criteria": string[],
    "failed_criteria": string[],
    "detailed_explanation": string
  },
  "explanation": string,
  "characteristics": {
    "physical_state": {
      "matches_expected": boolean,
      "has_defects": boolean,
      "condition_details": string[]
    }
  }
}

Field rules:
- is_valid: true if the validation criteria are met
- confidence: 0.8-1.0 when very sure about the assessment (positive or negative), 0.4-0.7 when the component is visible but some aspects are unclear, 0.1-0.3 when the image cannot be properly analyzed
- confidence_level: same as confidence
- key_observations: list ALL visible features, even if uncertain
- failed_criteria: criteria that failed or could not be assessed`

// BuildQuestion renders the question sent to the vision judge. A custom prompt replaces
// the default task list and is given the folder context instead.
func BuildQuestion(category *model.Category, state types.State, customPrompt, description string) string {
	var sb strings.Builder
	stateText := strings.ReplaceAll(state.String(), "_", " ")

	if customPrompt != "" {
		sb.WriteString(customPrompt)
		sb.WriteString("\n\n")
		fmt.Fprintf(&sb, "Note: This image is from a folder labeled %q.\n", stateText)
		sb.WriteString("Please analyze the image based on the prompt above, while considering this folder context.\n")
	} else {
		name := category.Name
		if name == "" {
			name = strings.ReplaceAll(category.ID.String(), "_", " ")
		}

		sb.WriteString(category.Prompt(state))
		sb.WriteString("\n\n")
		fmt.Fprintf(&sb, "Please analyze this image for %s validation.\n", name)
		fmt.Fprintf(&sb, "This image is from a folder labeled %q, indicating it should be in %s state.\n\n", stateText, stateText)

		sb.WriteString("Key validation task:\n")
		fmt.Fprintf(&sb, "1. Verify if the actual state matches the expected %q state\n", stateText)
		sb.WriteString("- If not, what is its actual state?\n")
		sb.WriteString("- Document any discrepancy between folder classification and actual state\n\n")

		sb.WriteString("2. Physical State Assessment\n")
		if len(category.CriticalFeatures) > 0 {
			sb.WriteString("Critical features to check:\n")
			for _, f := range category.CriticalFeatures {
				fmt.Fprintf(&sb, "- %s\n", f)
			}
		}
		if len(category.FailureModes) > 0 {
			sb.WriteString("Known failure modes:\n")
			for _, f := range category.FailureModes {
				fmt.Fprintf(&sb, "- %s\n", f)
			}
		}
		sb.WriteString("- Note any defects or issues\n\n")

		sb.WriteString("3. Overall Assessment\n")
		fmt.Fprintf(&sb, "- Determine if this is valid for the %s state folder\n", stateText)
		sb.WriteString("- If invalid, explain why it doesn't belong in this folder\n")
	}

	if description != "" {
		fmt.Fprintf(&sb, "\nFolder description: %s\n", description)
	}

	sb.WriteString("\nRespond with a detailed assessment following the exact schema provided.\n\n")
	sb.WriteString(responseContract)
	return sb.String()
}
