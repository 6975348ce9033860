package openai

import "encoding/json"

const sessionAnalysisSchemaName = "session_analysis_v2"

const sessionAnalysisSchemaJSON = `{
  "type": "object",
  "additionalProperties": false,
  "required": [
    "sessionSummary",
    "contentCoverage",
    "facilitationQuality",
    "protocolSafety",
    "riskDetection"
  ],
  "properties": {
    "sessionSummary": { "type": "string" },
    "contentCoverage": {
      "type": "object",
      "additionalProperties": false,
      "required": ["score", "rating", "justification", "evidenceQuotes"],
      "properties": {
        "score": { "type": "integer", "enum": [1, 2, 3] },
        "rating": { "enum": ["MISSED", "PARTIAL", "COMPLETE"] },
        "justification": { "type": "string" },
        "evidenceQuotes": { "type": "array", "items": { "type": "string" } }
      }
    },
    "facilitationQuality": {
      "type": "object",
      "additionalProperties": false,
      "required": ["score", "rating", "justification", "evidenceQuotes"],
      "properties": {
        "score": { "type": "integer", "enum": [1, 2, 3] },
        "rating": { "enum": ["POOR", "ADEQUATE", "EXCELLENT"] },
        "justification": { "type": "string" },
        "evidenceQuotes": { "type": "array", "items": { "type": "string" } }
      }
    },
    "protocolSafety": {
      "type": "object",
      "additionalProperties": false,
      "required": ["score", "rating", "justification", "evidenceQuotes"],
      "properties": {
        "score": { "type": "integer", "enum": [1, 2, 3] },
        "rating": { "enum": ["VIOLATION", "MINOR_DRIFT", "ADHERENT"] },
        "justification": { "type": "string" },
        "evidenceQuotes": { "type": "array", "items": { "type": "string" } }
      }
    },
    "riskDetection": {
      "type": "object",
      "additionalProperties": false,
      "required": ["flag", "rationale", "extractedQuotes", "requiresSupervisorReview"],
      "properties": {
        "flag": { "enum": ["SAFE", "RISK"] },
        "rationale": { "type": "string" },
        "extractedQuotes": { "type": "array", "items": { "type": "string" } },
        "requiresSupervisorReview": { "type": "boolean" }
      }
    }
  }
}`

var parsedSessionAnalysisSchema = mustParseSchema(sessionAnalysisSchemaJSON)

func sessionAnalysisSchema() map[string]any {
	return parsedSessionAnalysisSchema
}

func mustParseSchema(rawSchema string) map[string]any {
	var schema map[string]any
	if err := json.Unmarshal([]byte(rawSchema), &schema); err != nil {
		panic(err)
	}
	return schema
}
