package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	server := flag.String("server", "http://localhost:8000", "Jarvis server URL")
	session := flag.String("session", "", "resume an existing session id")
	flag.Parse()

	fmt.Println("Jarvis CLI Chat")
	fmt.Printf("Server: %s\n", *server)
	fmt.Println("Type 'exit' or 'quit' to leave.")
	fmt.Println("Commands: /health, /stats, /clear, /new")
	fmt.Println("---")

	client := &http.Client{Timeout: 5 * time.Minute}
	sessionID := *session
	var followups []string

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		switch input {
		case "exit", "quit":
			fmt.Println("Bye!")
			return
		case "/health":
			printJSON(client, http.MethodGet, *server+"/api/health")
			continue
		case "/stats":
			printJSON(client, http.MethodGet, *server+"/api/cache/stats")
			continue
		case "/clear":
			printJSON(client, http.MethodDelete, *server+"/api/cache")
			continue
		case "/new":
			sessionID = ""
			followups = nil
			fmt.Println("Started a new session.")
			continue
		}

		// A bare number picks one of the last follow-up suggestions.
		var n int
		if _, err := fmt.Sscanf(input, "%d", &n); err == nil && n >= 1 && n <= len(followups) && fmt.Sprint(n) == input {
			input = followups[n-1]
			fmt.Printf("\033[90m%s\033[0m\n", input)
		}

		answer, sid, fu, err := sendMessage(client, *server, sessionID, input)
		if err != nil {
			printError("%v", err)
			continue
		}
		sessionID, followups = sid, fu

		fmt.Printf("\033[36m[jarvis]\033[0m %s\n", answer)
		for i, q := range followups {
			fmt.Printf("  \033[33m%d.\033[0m %s\n", i+1, q)
		}
	}
}

func sendMessage(client *http.Client, server, sessionID, query string) (string, string, []string, error) {
	body, _ := json.Marshal(map[string]string{
		"session_id": sessionID,
		"query":      query,
	})

	resp, err := client.Post(server+"/api/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", sessionID, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", sessionID, nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, string(data))
	}

	var msg struct {
		Answer    string   `json:"answer"`
		SessionID string   `json:"session_id"`
		Followups []string `json:"followups"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return "", sessionID, nil, fmt.Errorf("parse response: %w", err)
	}
	return msg.Answer, msg.SessionID, msg.Followups, nil
}

func printJSON(client *http.Client, method, url string) {
	req, _ := http.NewRequest(method, url, nil)
	resp, err := client.Do(req)
	if err != nil {
		printError("Request failed: %v", err)
		return
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		printError("Server error (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
		return
	}
	if len(bytes.TrimSpace(data)) == 0 {
		fmt.Println("OK")
		return
	}
	var out bytes.Buffer
	if json.Indent(&out, data, "", "  ") != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Println(out.String())
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
