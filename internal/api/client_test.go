package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aptitude-ace/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/api", 2*time.Second, StaticToken(token))
}

func TestTopicQuestionsAcceptsMongoIDsAndWrappedLists(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/topics/ratios/questions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"questions":[{"_id":"q1","question":"1:2 = ?:4","options":["1","2"],"correctAnswer":"2"}]}`))
	}, "")

	questions, err := client.TopicQuestions(context.Background(), "ratios")
	if err != nil {
		t.Fatalf("TopicQuestions: %v", err)
	}
	if len(questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(questions))
	}
	q := questions[0]
	if q.ID != "q1" || q.TopicID != "ratios" || q.Prompt != "1:2 = ?:4" || q.CorrectAnswer != "2" {
		t.Fatalf("unexpected question %+v", q)
	}
}

func TestLoadQuestionsDispatchesOnMode(t *testing.T) {
	var paths []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_, _ = w.Write([]byte(`[]`))
	}, "")

	ctx := context.Background()
	for _, mode := range []domain.Mode{domain.ModePractice, domain.ModeDaily, domain.ModeGrand} {
		if _, err := client.LoadQuestions(ctx, mode, "ratios"); err != nil {
			t.Fatalf("LoadQuestions(%s): %v", mode, err)
		}
	}
	want := []string{"/api/topics/ratios/questions", "/api/daily-challenge", "/api/grand-test/questions"}
	if len(paths) != len(want) {
		t.Fatalf("expected %d calls, got %v", len(want), paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("call %d: expected %s, got %s", i, want[i], paths[i])
		}
	}

	if _, err := client.LoadQuestions(ctx, domain.Mode("arcade"), ""); !errors.Is(err, domain.ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
}

func TestSubmitResultPostsToModeEndpointWithBearer(t *testing.T) {
	var gotPath, gotAuth string
	var got domain.Result
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}, "tok-1")

	result := domain.Result{UserID: "u1", Score: 80, TimeSpent: 120, QuestionsAttempted: 10, CorrectAnswers: 8}
	if err := client.SubmitResult(context.Background(), domain.ModeDaily, result); err != nil {
		t.Fatalf("SubmitResult: %v", err)
	}
	if gotPath != "/api/daily-challenge/results" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotAuth != "Bearer tok-1" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if got.Score != 80 || got.UserID != "u1" || got.CorrectAnswers != 8 {
		t.Fatalf("unexpected body %+v", got)
	}
}

func TestStatusErrorClassification(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/quiz-results":
			http.Error(w, "bad payload", http.StatusBadRequest)
		case "/api/grand-test/results":
			http.Error(w, "down", http.StatusBadGateway)
		default:
			http.Error(w, "expired", http.StatusUnauthorized)
		}
	}, "")

	ctx := context.Background()
	err := client.SubmitResult(ctx, domain.ModePractice, domain.Result{})
	var se *StatusError
	if !errors.As(err, &se) || !se.Permanent() {
		t.Fatalf("expected permanent status error, got %v", err)
	}

	err = client.SubmitResult(ctx, domain.ModeGrand, domain.Result{})
	if !errors.As(err, &se) || se.Permanent() {
		t.Fatalf("expected retryable status error, got %v", err)
	}

	_, err = client.Profile(ctx)
	if !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if errors.As(err, &se) && se.Permanent() {
		t.Fatalf("401 must not be permanent")
	}
}

func TestProgressMutationsUseUserScopedPaths(t *testing.T) {
	type call struct{ method, path string }
	var calls []call
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, call{r.Method, r.URL.Path})
		w.WriteHeader(http.StatusNoContent)
	}, "tok")

	ctx := context.Background()
	if err := client.UpdateTopicProgress(ctx, "u1", domain.TopicProgress{TopicID: "ratios", Score: 80}); err != nil {
		t.Fatalf("UpdateTopicProgress: %v", err)
	}
	if err := client.UpdateStreak(ctx, "u1"); err != nil {
		t.Fatalf("UpdateStreak: %v", err)
	}
	if err := client.UnlockGrandTest(ctx, "u1"); err != nil {
		t.Fatalf("UnlockGrandTest: %v", err)
	}

	want := []call{
		{http.MethodPut, "/api/users/u1/topics/ratios/progress"},
		{http.MethodPatch, "/api/users/u1/streak"},
		{http.MethodPost, "/api/users/u1/unlock-grand-test"},
	}
	if len(calls) != len(want) {
		t.Fatalf("expected %d calls, got %v", len(want), calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("call %d: expected %v, got %v", i, want[i], calls[i])
		}
	}
}

func TestLoginAndProfileDecodeUser(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			var creds Credentials
			_ = json.NewDecoder(r.Body).Decode(&creds)
			if creds.Email != "a@b.c" || creds.Password != "pw" {
				t.Fatalf("unexpected credentials %+v", creds)
			}
			_, _ = w.Write([]byte(`{"token":"jwt","user":{"_id":"u1","name":"Ada","email":"a@b.c"}}`))
		case "/api/auth/profile":
			_, _ = w.Write([]byte(`{"user":{"_id":"u1","streak":3,"progress":[{"topicId":"ratios","unlocked":true,"score":90,"completedQuestions":4}]}}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}, "")

	ctx := context.Background()
	resp, err := client.Login(ctx, Credentials{Email: "a@b.c", Password: "pw"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.Token != "jwt" || resp.Profile.ID != "u1" || resp.Profile.Name != "Ada" {
		t.Fatalf("unexpected login response %+v", resp)
	}

	profile, err := client.Profile(ctx)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if profile.Streak != 3 || len(profile.Topics) != 1 || profile.Topics[0].Score != 90 {
		t.Fatalf("unexpected profile %+v", profile)
	}
}
