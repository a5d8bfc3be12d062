package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	serverURL = envOr("ACCEPTANCE_SERVER_URL", "http://localhost:8080")
	authToken = envOr("ACCEPTANCE_AUTH_TOKEN", "your-secret-token")
)

const (
	maxDuration     = 2 * time.Second
	concurrentCalls = 20
)

type MCPRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type CallToolParams struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments,omitempty"`
}

// FormulateArgs selects the broiler starter profile and the whole starter catalog
type FormulateArgs struct {
	ProfileID     string   `json:"profile_id"`
	IngredientIDs []string `json:"ingredient_ids"`
}

var starterArgs = FormulateArgs{
	ProfileID:     "1",
	IngredientIDs: []string{"1", "2", "3", "4", "5", "6", "7"},
}

func main() {
	fmt.Printf("🧪 Feed Formulation MCP Server acceptance tests against %s\n\n", serverURL)

	steps := []struct {
		label string
		run   func() error
	}{
		{"Health endpoint (no auth)", testHealth},
		{"MCP endpoint without auth is rejected", func() error { return expectStatus("", http.StatusUnauthorized) }},
		{"MCP endpoint with wrong auth is rejected", func() error { return expectStatus("wrong-api-key", http.StatusUnauthorized) }},
		{"MCP initialize with correct auth", testInitialize},
		{"formulate_feed tool call", func() error { return timedToolCall(1) }},
		{"REST /formulate endpoint", testREST},
		{"Concurrent formulate_feed calls", testConcurrentLoad},
	}

	for i, step := range steps {
		fmt.Printf("%d. %s...\n", i+1, step.label)
		if err := step.run(); err != nil {
			fmt.Printf("❌ %s failed: %v\n", step.label, err)
			os.Exit(1)
		}
		fmt.Printf("✅ passed\n\n")
	}

	fmt.Printf("🎉 All acceptance tests passed!\n")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func testHealth() error {
	resp, err := http.Get(serverURL + "/health")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	return nil
}

func initializeRequest() MCPRequest {
	return MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]any{
			"protocolVersion": "2025-06-18",
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]string{"name": "acceptance", "version": "1.0.0"},
		},
	}
}

func post(path, token string, payload any) (int, []byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, serverURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, body, err
}

func expectStatus(token string, want int) error {
	status, body, err := post("/mcp", token, initializeRequest())
	if err != nil {
		return err
	}
	if status != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, status, body)
	}
	return nil
}

func testInitialize() error {
	status, body, err := post("/mcp", authToken, initializeRequest())
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("expected status 200, got %d: %s", status, body)
	}
	if !strings.Contains(string(body), "serverInfo") {
		return fmt.Errorf("response doesn't contain expected MCP initialize result")
	}
	return nil
}

// callFormulate runs formulate_feed and returns its structured result
func callFormulate(requestID int) (map[string]any, error) {
	status, body, err := post("/mcp", authToken, MCPRequest{
		JSONRPC: "2.0",
		ID:      requestID,
		Method:  "tools/call",
		Params:  CallToolParams{Name: "formulate_feed", Arguments: starterArgs},
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("expected status 200, got %d: %s", status, body)
	}

	var mcpResponse struct {
		Result struct {
			IsError           bool           `json:"isError"`
			StructuredContent map[string]any `json:"structuredContent"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &mcpResponse); err != nil {
		return nil, fmt.Errorf("failed to parse MCP response JSON: %w", err)
	}
	if mcpResponse.Result.IsError {
		return nil, fmt.Errorf("tool reported an error: %s", body)
	}
	if mcpResponse.Result.StructuredContent == nil {
		return nil, fmt.Errorf("MCP response missing structuredContent")
	}
	return mcpResponse.Result.StructuredContent, nil
}

func validateBlend(result map[string]any) error {
	if feasible, _ := result["feasible"].(bool); !feasible {
		return fmt.Errorf("expected a feasible blend, got status %v", result["status"])
	}
	total, _ := result["total_percentage"].(float64)
	if total < 99.9 || total > 100.1 {
		return fmt.Errorf("blend sums to %.3f%%, expected 100%%", total)
	}
	return nil
}

func timedToolCall(requestID int) error {
	start := time.Now()
	result, err := callFormulate(requestID)
	if err != nil {
		return err
	}
	if err := validateBlend(result); err != nil {
		return err
	}

	duration := time.Since(start)
	if duration > maxDuration {
		return fmt.Errorf("call took %v, expected under %v", duration, maxDuration)
	}
	fmt.Printf("    ✓ objective %v, %v active ingredients (%.3fs)\n",
		result["objective"], result["active_ingredients"], duration.Seconds())
	return nil
}

func testREST() error {
	status, body, err := post("/formulate", authToken, []FormulateArgs{starterArgs, starterArgs})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("expected status 200, got %d: %s", status, body)
	}

	var results []map[string]any
	if err := json.Unmarshal(body, &results); err != nil {
		return fmt.Errorf("failed to parse batch response: %w", err)
	}
	if len(results) != 2 {
		return fmt.Errorf("expected 2 results, got %d", len(results))
	}
	for _, result := range results {
		if err := validateBlend(result); err != nil {
			return err
		}
	}
	return nil
}

func testConcurrentLoad() error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []string
		slowest  time.Duration
	)

	start := time.Now()
	for i := 0; i < concurrentCalls; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			callStart := time.Now()
			result, err := callFormulate(id + 100)
			if err == nil {
				err = validateBlend(result)
			}
			elapsed := time.Since(callStart)

			mu.Lock()
			defer mu.Unlock()
			if elapsed > slowest {
				slowest = elapsed
			}
			if err != nil {
				failures = append(failures, fmt.Sprintf("call %d: %v", id, err))
			}
		}(i)
	}
	wg.Wait()

	fmt.Printf("    ✓ %d calls in %.3fs, slowest %.3fs\n", concurrentCalls, time.Since(start).Seconds(), slowest.Seconds())
	if len(failures) > 0 {
		return fmt.Errorf("%d calls failed: %s", len(failures), strings.Join(failures, "; "))
	}
	if slowest > 3*maxDuration {
		return fmt.Errorf("slowest call took %v under load", slowest)
	}
	return nil
}
