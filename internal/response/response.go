// Package response turns raw model output into the structured answer shown
// to the user.
package response

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Quality is the model's own judgement of its answer.
type Quality string

const (
	Good Quality = "good"
	Bad  Quality = "bad"
)

// MaxFollowups caps the number of suggested follow-up questions.
const MaxFollowups = 3

// Answer is the structured form of a model reply.
type Answer struct {
	MarkdownText      string   `json:"markdown_text"`
	FollowupQuestions []string `json:"followup_questions"`
	Quality           Quality  `json:"response_quality"`
}

// Degraded wraps text that could not be parsed.
func Degraded(raw string) Answer {
	return Answer{MarkdownText: raw, FollowupQuestions: []string{}, Quality: Bad}
}

// Parse reads raw as {"markdown_text", "followup_questions",
// "response_quality"}. Anything that does not fit yields Degraded(raw);
// Parse never fails.
func Parse(raw string) Answer {
	body := stripFence(raw)
	if !gjson.Valid(body) {
		return Degraded(raw)
	}
	doc := gjson.Parse(body)
	if !doc.IsObject() {
		return Degraded(raw)
	}

	text := doc.Get("markdown_text")
	followups := doc.Get("followup_questions")
	quality := doc.Get("response_quality")
	if text.Type != gjson.String || !followups.IsArray() || quality.Type != gjson.String {
		return Degraded(raw)
	}

	questions := []string{}
	for _, q := range followups.Array() {
		if q.Type != gjson.String {
			return Degraded(raw)
		}
		questions = append(questions, q.String())
	}
	if len(questions) > MaxFollowups {
		questions = questions[:MaxFollowups]
	}

	q := Bad
	if strings.EqualFold(strings.TrimSpace(quality.String()), string(Good)) {
		q = Good
	}
	return Answer{MarkdownText: text.String(), FollowupQuestions: questions, Quality: q}
}

// stripFence removes one surrounding ``` or ```json fence.
func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.HasPrefix(strings.TrimSpace(s[:nl]), "{") {
		s = s[nl+1:]
	}
	return strings.TrimSpace(s)
}
