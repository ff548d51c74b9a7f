//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/docsage/internal/api/handlers"
	"github.com/cloo-solutions/docsage/internal/dedup"
	"github.com/cloo-solutions/docsage/internal/logger"
	"github.com/cloo-solutions/docsage/internal/openai"
	"github.com/cloo-solutions/docsage/internal/repository"
	"github.com/cloo-solutions/docsage/internal/server"
	"github.com/cloo-solutions/docsage/internal/service"
	"github.com/cloo-solutions/docsage/internal/storage"
	"github.com/cloo-solutions/docsage/internal/testutil"
)

const (
	e2eDimensions    = 1536
	e2eMaxChunkChars = 200
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	Archive      *storage.RawPageArchive
	OpenAI       *FakeOpenAI
	ServerURL    string
	ServerCloser func()
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E test environment with containers and server
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	archive, err := storage.NewRawPageArchive(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     testutil.RustFSAccessKey,
		SecretAccessKey: testutil.RustFSSecretKey,
		Bucket:          "e2e-raw-pages",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create raw page archive: %v", err)
	}
	if err := archive.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	fake := NewFakeOpenAI()

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	serverURL, serverCloser := startServer(t, pool, archive, fake, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		RustFSC:      s3C,
		Pool:         pool,
		Archive:      archive,
		OpenAI:       fake,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.OpenAI != nil {
		e.OpenAI.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	StatusCode int               `json:"-"`
	Data       json.RawMessage   `json:"data"`
	Error      string            `json:"error,omitempty"`
	Code       string            `json:"code,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}) (*APIResponse, error) {
	return e.doRequest(http.MethodPost, path, body)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodDelete, path, nil)
}

// GetRaw performs a GET request and returns the body unparsed
func (e *E2ETestEnv) GetRaw(path string) (int, string, error) {
	resp, err := e.HTTPClient.Get(e.ServerURL + path)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", err
	}
	return resp.StatusCode, string(body), nil
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, e.ServerURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	apiResp := &APIResponse{StatusCode: resp.StatusCode}
	if len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, apiResp); err != nil {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
	}

	if resp.StatusCode >= 400 {
		return apiResp, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}

	return apiResp, nil
}

// startServer wires the answer and ingestion pipelines the way serve does,
// pointing the OpenAI clients at the fake server.
func startServer(t *testing.T, pool *pgxpool.Pool, archive *storage.RawPageArchive, fake *FakeOpenAI, port int) (string, func()) {
	log := logger.Nop()

	documents := repository.NewDocumentRepository(pool)
	embedder := openai.NewClientWithConfig(openai.Config{
		APIKey:              "sk-e2e",
		BaseURL:             fake.URL(),
		EmbeddingDimensions: e2eDimensions,
	})
	chat := openai.NewChatClient(openai.ChatConfig{
		APIKey:  "sk-e2e",
		BaseURL: fake.URL(),
		Model:   "gpt-4o-mini",
	})

	retriever := service.NewRetriever(embedder, documents, log)
	prompts := service.NewPromptBuilder(service.PromptBuilderConfig{
		SupportURL:   "https://support.example.com",
		CommunityURL: "https://community.example.com",
	})
	answers := service.NewAnswerService(retriever, prompts, service.NewGenerationClient(chat, log), service.DefaultAnswerServiceConfig(), log)
	ingest := service.NewIngestService(embedder, documents, archive, service.IngestConfig{MaxChunkChars: e2eMaxChunkChars}, log)
	deduplicator := service.NewDeduplicator(dedup.NewMemoryStore(), time.Minute, log)

	router := server.NewRouter(server.RouterConfig{
		AskHandler:      handlers.NewAskHandler(answers, deduplicator, log),
		SearchHandler:   handlers.NewSearchHandler(retriever),
		DocumentHandler: handlers.NewDocumentHandler(ingest, documents, archive),
		Logger:          log,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// FakeOpenAI serves the embeddings and chat completions endpoints.
// Embeddings are hashed bags of words so texts sharing vocabulary land close
// together; completions return CannedAnswer.
type FakeOpenAI struct {
	server    *httptest.Server
	chatCalls int32
}

// CannedAnswer is returned by every chat completion.
const CannedAnswer = "## Summary\nOpen the Students page and click Add Student.\n\n" +
	"## Overview\nAdministrators enroll new students from the Students page.\n\n" +
	"## Step-by-Step Instructions\n1. Open the Students page.\n2. Click Add Student.\n3. Save the form.\n\n" +
	"## References\n- [Student Enrollment](https://docs.example.com/students/enroll)"

func NewFakeOpenAI() *FakeOpenAI {
	f := &FakeOpenAI{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", f.handleEmbeddings)
	mux.HandleFunc("/v1/chat/completions", f.handleChat)
	f.server = httptest.NewServer(mux)
	return f
}

// URL is the base URL to configure the OpenAI clients with.
func (f *FakeOpenAI) URL() string {
	return f.server.URL + "/v1"
}

func (f *FakeOpenAI) ChatCalls() int {
	return int(atomic.LoadInt32(&f.chatCalls))
}

func (f *FakeOpenAI) Close() {
	f.server.Close()
}

func (f *FakeOpenAI) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	type item struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	}
	data := make([]item, len(req.Input))
	for i, text := range req.Input {
		data[i] = item{Object: "embedding", Embedding: bagOfWords(text, e2eDimensions), Index: i}
	}

	writeJSON(w, map[string]interface{}{
		"object": "list",
		"data":   data,
		"model":  req.Model,
		"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
	})
}

func (f *FakeOpenAI) handleChat(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&f.chatCalls, 1)

	writeJSON(w, map[string]interface{}{
		"id":      "chatcmpl-e2e",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   "gpt-4o-mini",
		"choices": []map[string]interface{}{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": CannedAnswer},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 10, "total_tokens": 20},
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func bagOfWords(text string, dims int) []float32 {
	vec := make([]float32, dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, word := range words {
		if len(word) < 3 {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.TrimSuffix(word, "s")))
		vec[h.Sum32()%uint32(dims)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
