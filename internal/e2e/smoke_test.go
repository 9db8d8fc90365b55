//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

var baseURL string

func TestMain(m *testing.M) {
	baseURL = os.Getenv("JARVIS_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}

	// Wait for server readiness (up to 30s)
	ready := false
	for i := 0; i < 30; i++ {
		resp, err := http.Get(baseURL + "/api/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				ready = true
				break
			}
		}
		time.Sleep(1 * time.Second)
	}
	if !ready {
		fmt.Fprintf(os.Stderr, "server at %s not ready after 30s\n", baseURL)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

type chatResponse struct {
	Answer    string   `json:"answer"`
	SessionID string   `json:"session_id"`
	Followups []string `json:"followups"`
}

// sendChat POSTs a query to /api/chat and returns the decoded reply.
func sendChat(t *testing.T, sessionID, query string) chatResponse {
	t.Helper()

	body, err := json.Marshal(map[string]string{"session_id": sessionID, "query": query})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	client := &http.Client{Timeout: 3 * time.Minute}
	resp, err := client.Post(baseURL+"/api/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/chat: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal response: %v (body: %s)", err, string(raw))
	}
	return out
}

func cacheStats(t *testing.T) map[string]int {
	t.Helper()
	resp, err := http.Get(baseURL + "/api/cache/stats")
	if err != nil {
		t.Fatalf("GET /api/cache/stats: %v", err)
	}
	defer resp.Body.Close()
	var stats map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	return stats
}

func TestChatAssignsSession(t *testing.T) {
	reply := sendChat(t, "", "What programming languages does he know?")
	if reply.SessionID == "" {
		t.Fatal("expected a session id")
	}
	if len(reply.Answer) <= 10 {
		t.Errorf("expected meaningful answer (len > 10), got len=%d: %s", len(reply.Answer), reply.Answer)
	}
	t.Logf("reply: %.300s", reply.Answer)
}

func TestConversationKeepsSession(t *testing.T) {
	first := sendChat(t, "", "Where did he study?")
	second := sendChat(t, first.SessionID, "And what did he study there?")
	if second.SessionID != first.SessionID {
		t.Errorf("session changed: %s -> %s", first.SessionID, second.SessionID)
	}
	t.Logf("reply: %.300s", second.Answer)
}

func TestRepeatedQuestionHitsCache(t *testing.T) {
	before := cacheStats(t)
	q := "What projects has he built?"
	first := sendChat(t, "", q)
	after := cacheStats(t)
	if after["puts"] == before["puts"] {
		t.Skipf("first answer was not admitted to the cache: %.200s", first.Answer)
	}

	second := sendChat(t, "", q)
	if cacheStats(t)["hits"] <= after["hits"] {
		t.Errorf("expected a cache hit for the repeated question")
	}
	if second.Answer != first.Answer {
		t.Errorf("cached answer differs:\n%s\n%s", first.Answer, second.Answer)
	}
}

func TestKnowledgeSearch(t *testing.T) {
	resp, err := http.Get(baseURL + "/api/knowledge/search?q=skills&k=3")
	if err != nil {
		t.Fatalf("GET /api/knowledge/search: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	var hits []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		t.Fatalf("decode hits: %v", err)
	}
	if len(hits) > 3 {
		t.Errorf("got %d hits, want at most 3", len(hits))
	}
}
