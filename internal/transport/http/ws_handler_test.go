package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"aptitude-ace/internal/app"
	"aptitude-ace/internal/attempts"
	"aptitude-ace/internal/domain"
	"aptitude-ace/internal/infra/memory"
	"github.com/gorilla/websocket"
)

func TestWebSocketPracticeFlow(t *testing.T) {
	store := attempts.NewStore(memory.NewKVStore())
	service := newTestService(store, &fakeResults{})

	server := httptest.NewServer(NewRouter(RouterDeps{Service: service}))
	defer server.Close()

	conn := dial(t, server, "/ws?mode=practice&topicId=arith")
	defer conn.Close()

	state := readUntil(t, conn, "state")
	if state["state"] != "in_progress" {
		t.Fatalf("expected in_progress, got %v", state["state"])
	}
	question, _ := state["question"].(map[string]any)
	if question["id"] != "q1" {
		t.Fatalf("expected first question q1, got %v", question["id"])
	}
	if _, leaked := question["correctAnswer"]; leaked {
		t.Fatalf("question view must not carry the answer")
	}

	send(t, conn, "answer", map[string]any{"option": "4"})
	result := readUntil(t, conn, "answerResult")
	if result["correct"] != true || result["questionId"] != "q1" {
		t.Fatalf("unexpected answer result %v", result)
	}

	send(t, conn, "advance", nil)
	send(t, conn, "answer", map[string]any{"option": "7"})
	result = readUntil(t, conn, "answerResult")
	if result["correct"] != false || result["correctAnswer"] != "6" {
		t.Fatalf("unexpected answer result %v", result)
	}

	send(t, conn, "advance", nil)
	submission := readUntil(t, conn, "submission")
	if submission["local"] != true || submission["remote"] == true {
		t.Fatalf("expected local-only submission, got %v", submission)
	}

	if stats := store.LoadStats(context.Background(), "arith"); stats.Attempts != 1 || stats.LastScore != 50 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestWebSocketRejectsInvalidCommands(t *testing.T) {
	store := attempts.NewStore(memory.NewKVStore())
	service := newTestService(store, &fakeResults{})

	server := httptest.NewServer(NewRouter(RouterDeps{Service: service}))
	defer server.Close()

	conn := dial(t, server, "/ws?mode=practice&topicId=arith")
	defer conn.Close()
	readUntil(t, conn, "state")

	send(t, conn, "advance", nil)
	if msg := readUntil(t, conn, "error"); msg["message"] != domain.ErrInvalidTransition.Error() {
		t.Fatalf("unexpected error %v", msg)
	}
	send(t, conn, "dance", nil)
	if msg := readUntil(t, conn, "error"); msg["message"] != "unsupported message type" {
		t.Fatalf("unexpected error %v", msg)
	}
}

func TestWebSocketRequiresTopicForPractice(t *testing.T) {
	service := newTestService(attempts.NewStore(memory.NewKVStore()), &fakeResults{})
	server := httptest.NewServer(NewRouter(RouterDeps{Service: service}))
	defer server.Close()

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?mode=practice"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", resp)
	}
}

func TestWebSocketEmptyTopicEndsInEmptyState(t *testing.T) {
	service := newTestService(attempts.NewStore(memory.NewKVStore()), &fakeResults{})
	server := httptest.NewServer(NewRouter(RouterDeps{Service: service}))
	defer server.Close()

	conn := dial(t, server, "/ws?mode=practice&topicId=nothing-here")
	defer conn.Close()

	state := readUntil(t, conn, "state")
	if state["state"] != "empty" || state["message"] == "" {
		t.Fatalf("expected empty state with message, got %v", state)
	}
}

func TestWebSocketIgnoresClientUserWhenSignedOut(t *testing.T) {
	store := attempts.NewStore(memory.NewKVStore())
	results := &fakeResults{}
	service := newTestService(store, results)

	server := httptest.NewServer(NewRouter(RouterDeps{
		Service:     service,
		CurrentUser: func() string { return "" },
	}))
	defer server.Close()

	conn := dial(t, server, "/ws?mode=practice&topicId=arith&userId=someone-else")
	defer conn.Close()
	readUntil(t, conn, "state")

	send(t, conn, "finish", nil)
	submission := readUntil(t, conn, "submission")
	if submission["local"] != true || submission["remote"] == true {
		t.Fatalf("expected local-only submission, got %v", submission)
	}
	if got := results.results(); len(got) != 0 {
		t.Fatalf("expected no remote submission, got %+v", got)
	}
	if local := store.LocalResults(context.Background(), domain.ModePractice); len(local) != 1 || local[0].UserID != "" {
		t.Fatalf("expected one anonymous local result, got %+v", local)
	}
}

func TestWebSocketRejectsMismatchedUser(t *testing.T) {
	service := newTestService(attempts.NewStore(memory.NewKVStore()), &fakeResults{})
	server := httptest.NewServer(NewRouter(RouterDeps{
		Service:     service,
		CurrentUser: func() string { return "u1" },
	}))
	defer server.Close()

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?mode=practice&topicId=arith&userId=someone-else"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}
}

func TestWebSocketSubmitsForSignedInUser(t *testing.T) {
	results := &fakeResults{}
	service := newTestService(attempts.NewStore(memory.NewKVStore()), results)
	server := httptest.NewServer(NewRouter(RouterDeps{
		Service:     service,
		CurrentUser: func() string { return "u1" },
	}))
	defer server.Close()

	conn := dial(t, server, "/ws?mode=practice&topicId=arith")
	defer conn.Close()
	readUntil(t, conn, "state")

	send(t, conn, "finish", nil)
	submission := readUntil(t, conn, "submission")
	if submission["remote"] != true {
		t.Fatalf("expected remote submission, got %v", submission)
	}
	got := results.results()
	if len(got) != 1 || got[0].UserID != "u1" {
		t.Fatalf("expected one result for u1, got %+v", got)
	}
}

func newTestService(store *attempts.Store, results app.ResultsAPI) *app.QuizService {
	questions := memory.NewQuestionRepository(memory.NewStaticQuestionLoader(sampleQuestions()), time.Minute)
	return app.NewQuizService(
		memory.NewSessionStore(),
		questions,
		nil,
		app.NewSubmitter(results, store),
		store,
	)
}

func dial(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	msg := map[string]any{"type": typ}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readUntil skips messages (tick snapshots and the like) until one of type want.
func readUntil(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	for i := 0; i < 50; i++ {
		var msg struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json waiting for %s: %v", want, err)
		}
		if msg.Type != want {
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			t.Fatalf("decode %s payload: %v", want, err)
		}
		return payload
	}
	t.Fatalf("no %s message received", want)
	return nil
}

type fakeResults struct {
	mu        sync.Mutex
	submitErr error
	submitted []domain.Result
}

func (f *fakeResults) SubmitResult(ctx context.Context, mode domain.Mode, result domain.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, result)
	return nil
}

func (f *fakeResults) results() []domain.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Result(nil), f.submitted...)
}

func (f *fakeResults) UpdateTopicProgress(context.Context, string, domain.TopicProgress) error {
	return nil
}

func (f *fakeResults) UpdateStreak(context.Context, string) error { return nil }

func (f *fakeResults) UnlockGrandTest(context.Context, string) error { return nil }

func (f *fakeResults) Profile(context.Context) (domain.Profile, error) {
	return domain.Profile{}, nil
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", TopicID: "arith", Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: "4"},
		{ID: "q2", TopicID: "arith", Prompt: "What is 3 + 3?", Options: []string{"6", "7"}, CorrectAnswer: "6", Explanation: "3 + 3 = 6"},
	}
}
