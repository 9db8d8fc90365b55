package response

import "testing"

func TestParse_Valid(t *testing.T) {
	raw := `{"markdown_text":"**Go** and Python.","followup_questions":["Which projects use Go?"],"response_quality":"good"}`
	got := Parse(raw)
	if got.Quality != Good {
		t.Errorf("got quality %q, want good", got.Quality)
	}
	if got.MarkdownText != "**Go** and Python." {
		t.Errorf("got text %q", got.MarkdownText)
	}
	if len(got.FollowupQuestions) != 1 || got.FollowupQuestions[0] != "Which projects use Go?" {
		t.Errorf("got followups %v", got.FollowupQuestions)
	}
}

func TestParse_Degrades(t *testing.T) {
	cases := map[string]string{
		"plain text":         "Sorry, I am temporarily unavailable. Please try again later.",
		"truncated json":     `{"markdown_text":"cut off`,
		"missing quality":    `{"markdown_text":"x","followup_questions":[]}`,
		"followups not list": `{"markdown_text":"x","followup_questions":"a","response_quality":"good"}`,
		"non-string item":    `{"markdown_text":"x","followup_questions":[1],"response_quality":"good"}`,
		"array":              `["markdown_text"]`,
		"empty":              ``,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			got := Parse(raw)
			if got.MarkdownText != raw {
				t.Errorf("got text %q, want the raw input", got.MarkdownText)
			}
			if got.FollowupQuestions == nil || len(got.FollowupQuestions) != 0 {
				t.Errorf("got followups %v, want empty", got.FollowupQuestions)
			}
			if got.Quality != Bad {
				t.Errorf("got quality %q, want bad", got.Quality)
			}
		})
	}
}

func TestParse_CodeFence(t *testing.T) {
	raw := "```json\n{\"markdown_text\":\"hi\",\"followup_questions\":[],\"response_quality\":\"good\"}\n```"
	got := Parse(raw)
	if got.Quality != Good || got.MarkdownText != "hi" {
		t.Errorf("got %+v, want fenced json accepted", got)
	}
}

func TestParse_QualityNormalised(t *testing.T) {
	if got := Parse(`{"markdown_text":"a","followup_questions":[],"response_quality":"GOOD"}`); got.Quality != Good {
		t.Errorf("got %q, want good", got.Quality)
	}
	if got := Parse(`{"markdown_text":"a","followup_questions":[],"response_quality":"meh"}`); got.Quality != Bad {
		t.Errorf("got %q, want bad", got.Quality)
	}
}

func TestParse_TruncatesFollowups(t *testing.T) {
	got := Parse(`{"markdown_text":"a","followup_questions":["1","2","3","4","5"],"response_quality":"good"}`)
	if len(got.FollowupQuestions) != MaxFollowups {
		t.Errorf("got %d followups, want %d", len(got.FollowupQuestions), MaxFollowups)
	}
}
