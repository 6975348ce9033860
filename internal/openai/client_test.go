package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"
)

const validAnalysisJSON = `{
	"sessionSummary": "The fellow opened with a check-in. Growth mindset content was covered. The session closed with reflections.",
	"contentCoverage": {"score":3,"rating":"COMPLETE","justification":"All growth mindset elements were discussed in depth.","evidenceQuotes":["brain is like a muscle"]},
	"facilitationQuality": {"score":2,"rating":"ADEQUATE","justification":"Some warmth but few open-ended questions were asked.","evidenceQuotes":["how did that feel"]},
	"protocolSafety": {"score":3,"rating":"ADHERENT","justification":"No medical advice was given at any point here.","evidenceQuotes":["stay with the exercise"]},
	"riskDetection": {"flag":"SAFE","rationale":"No safety concerns surfaced.","extractedQuotes":[],"requiresSupervisorReview":false}
}`

func TestGenerateAnalysisUsesStrictSchema(t *testing.T) {
	t.Parallel()

	doer := &fakeHTTPDoer{
		statusCode: http.StatusOK,
		body:       `{"choices":[{"message":{"content":` + strconv.Quote(validAnalysisJSON) + `}}]}`,
	}
	client := NewClient("test-api-key", "gpt-4o-mini", "", doer)

	content, err := client.GenerateAnalysis(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("GenerateAnalysis error: %v", err)
	}
	if !strings.Contains(content, "sessionSummary") {
		t.Fatalf("content missing sessionSummary: %s", content)
	}

	var payload map[string]any
	if err := json.Unmarshal(doer.requestBody, &payload); err != nil {
		t.Fatalf("decode request payload: %v", err)
	}

	responseFormat, ok := payload["response_format"].(map[string]any)
	if !ok {
		t.Fatalf("response_format missing in request")
	}
	if got, want := responseFormat["type"], "json_schema"; got != want {
		t.Fatalf("response_format.type got %v want %v", got, want)
	}
	jsonSchema, ok := responseFormat["json_schema"].(map[string]any)
	if !ok {
		t.Fatalf("response_format.json_schema missing in request")
	}
	if got, want := jsonSchema["name"], sessionAnalysisSchemaName; got != want {
		t.Fatalf("json_schema.name got %v want %v", got, want)
	}
	if got, want := jsonSchema["strict"], true; got != want {
		t.Fatalf("json_schema.strict got %v want %v", got, want)
	}

	messages, ok := payload["messages"].([]any)
	if !ok || len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %v", payload["messages"])
	}
}

func TestGenerateAnalysisRefusal(t *testing.T) {
	t.Parallel()

	doer := &fakeHTTPDoer{
		statusCode: http.StatusOK,
		body:       `{"choices":[{"message":{"content":null,"refusal":"cannot comply"}}]}`,
	}
	client := NewClient("test-api-key", "", "", doer)

	_, err := client.GenerateAnalysis(context.Background(), "s", "u")
	if err == nil || !strings.Contains(err.Error(), "refusal") {
		t.Fatalf("expected refusal error, got %v", err)
	}
}

func TestGenerateAnalysisEmptyContent(t *testing.T) {
	t.Parallel()

	doer := &fakeHTTPDoer{
		statusCode: http.StatusOK,
		body:       `{"choices":[{"message":{"content":""}}]}`,
	}
	client := NewClient("test-api-key", "", "", doer)

	_, err := client.GenerateAnalysis(context.Background(), "s", "u")
	if err == nil || !strings.Contains(err.Error(), "empty content") {
		t.Fatalf("expected empty content error, got %v", err)
	}
}

func TestGenerateAnalysisAPIError(t *testing.T) {
	t.Parallel()

	doer := &fakeHTTPDoer{
		statusCode: http.StatusTooManyRequests,
		body:       `{"error":{"message":"rate limited"}}`,
	}
	client := NewClient("test-api-key", "", "", doer)

	_, err := client.GenerateAnalysis(context.Background(), "s", "u")
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected api error message, got %v", err)
	}
}

func TestGenerateAnalysisContentParts(t *testing.T) {
	t.Parallel()

	doer := &fakeHTTPDoer{
		statusCode: http.StatusOK,
		body:       `{"choices":[{"message":{"content":[{"type":"text","text":"{\"a\":"},{"type":"text","text":"1}"}]}}]}`,
	}
	client := NewClient("test-api-key", "", "", doer)

	content, err := client.GenerateAnalysis(context.Background(), "s", "u")
	if err != nil {
		t.Fatalf("GenerateAnalysis error: %v", err)
	}
	if content != `{"a":1}` {
		t.Fatalf("expected joined content parts, got %q", content)
	}
}

func TestGenerateAnalysisMissingKey(t *testing.T) {
	t.Parallel()

	client := NewClient("  ", "", "", &fakeHTTPDoer{})
	if _, err := client.GenerateAnalysis(context.Background(), "s", "u"); err == nil {
		t.Fatalf("expected error for empty api key")
	}
}

type fakeHTTPDoer struct {
	statusCode  int
	body        string
	requestBody []byte
}

func (f *fakeHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	f.requestBody = append([]byte(nil), body...)

	return &http.Response{
		StatusCode: f.statusCode,
		Body:       io.NopCloser(strings.NewReader(f.body)),
		Header:     make(http.Header),
	}, nil
}
