package llm

import "github.com/ppiankov/credence/internal/model"

// Tool names the engine is forced to call
const (
	ToolVerifyNews  = "verify_news"
	ToolVerifyVideo = "verify_video"
)

func stringList(description string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": description,
	}
}

// VerdictTool returns the function schema for a modality
func VerdictTool(ct model.ContentType) ToolSchema {
	props := map[string]any{
		"verdict": map[string]any{
			"type":        "string",
			"enum":        []string{"true", "false", "misleading", "unverified"},
			"description": "The verification verdict",
		},
		"confidence": map[string]any{
			"type":        "number",
			"minimum":     0,
			"maximum":     100,
			"description": "Confidence score from 0-100",
		},
		"explanation": map[string]any{
			"type":        "string",
			"description": "Detailed explanation of the analysis, in the language of the submitted content",
		},
		"sources":            stringList("Complete absolute URLs copied from the evidence list"),
		"redFlags":           stringList("Warning signs or issues found"),
		"positiveIndicators": stringList("Signs of credibility found"),
	}

	tool := ToolSchema{
		Name:        ToolVerifyNews,
		Description: "Return the structured credibility verdict for the submitted content",
	}
	if ct == model.ContentVideo {
		props["deepfakeIndicators"] = stringList("Signs of AI generation or face manipulation")
		props["editingArtifacts"] = stringList("Signs of cuts, splices or compositing")
		props["audioVisualSync"] = map[string]any{
			"type":        "string",
			"description": "Assessment of audio and lip synchronization, or why it could not be assessed",
		}
		tool.Name = ToolVerifyVideo
		tool.Description = "Return the structured authenticity verdict for the submitted video"
	}

	tool.Parameters = map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             []string{"verdict", "confidence", "explanation"},
		"additionalProperties": false,
	}
	return tool
}

// toolArguments mirrors the schema. Pointers distinguish missing from zero.
type toolArguments struct {
	Verdict            *string  `json:"verdict"`
	Confidence         *float64 `json:"confidence"`
	Explanation        *string  `json:"explanation"`
	Sources            []string `json:"sources"`
	RedFlags           []string `json:"redFlags"`
	PositiveIndicators []string `json:"positiveIndicators"`
	DeepfakeIndicators []string `json:"deepfakeIndicators"`
	EditingArtifacts   []string `json:"editingArtifacts"`
	AudioVisualSync    *string  `json:"audioVisualSync"`
}
