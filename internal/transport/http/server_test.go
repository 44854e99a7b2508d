package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quizme/internal/app"
	"quizme/internal/domain"
	"quizme/internal/infra/memory"
)

type testEnv struct {
	server   *httptest.Server
	service  *app.RoomService
	store    *memory.Store
	quizzes  *memory.QuizStore
	quizRepo *memory.QuizRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	quizzes := memory.NewQuizStore(sampleQuiz())
	quizRepo := memory.NewQuizRepository(quizzes, time.Minute)
	service := app.NewRoomService(app.Deps{
		Rooms:       store,
		Players:     store,
		Submissions: store,
		Winners:     store,
		Quizzes:     quizRepo,
		Notifier:    memory.NewRoomBroadcaster(),
		Locker:      memory.NewAdvanceLocker(),
	}, app.WithLogger(log))
	t.Cleanup(service.Close)

	authoring := app.NewQuizService(quizzes, log, quizRepo)

	server := httptest.NewServer(NewRouter(
		NewRoomsHandler(service, log),
		NewQuizzesHandler(authoring, log),
		NewWSHandler(service, log),
		log,
	))
	t.Cleanup(server.Close)
	return &testEnv{server: server, service: service, store: store, quizzes: quizzes, quizRepo: quizRepo}
}

// do sends a JSON request and decodes the JSON response into out when non-nil.
func (e *testEnv) do(t *testing.T, method, path, hostToken string, body any, out any) int {
	t.Helper()
	return e.send(t, method, path, map[string]string{hostTokenHeader: hostToken}, body, out)
}

// author is do for the quiz authoring routes, which identify the host by ID.
func (e *testEnv) author(t *testing.T, method, path, host string, body any, out any) int {
	t.Helper()
	return e.send(t, method, path, map[string]string{hostIDHeader: host}, body, out)
}

func (e *testEnv) send(t *testing.T, method, path string, headers map[string]string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) createRoom(t *testing.T) createRoomResponse {
	t.Helper()
	var created createRoomResponse
	if status := e.do(t, http.MethodPost, "/api/rooms", "", map[string]string{"quizId": "quiz-1"}, &created); status != http.StatusCreated {
		t.Fatalf("create room status %d", status)
	}
	return created
}

func sampleQuiz() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:     "quiz-1",
			Title:  "Arithmetic",
			HostID: "host-1",
			Slides: []domain.Slide{
				{
					ID:           1,
					Position:     0,
					Question:     "What is 2 + 2?",
					QuestionType: domain.MultipleChoice,
					Options:      []string{"3", "4", "5"},
					Answer:       domain.ChoiceAnswer(1),
				},
				{
					ID:           2,
					Position:     1,
					Question:     "Pick the even numbers",
					QuestionType: domain.Checkbox,
					Options:      []string{"1", "2", "3", "4"},
					Answer:       domain.CheckboxAnswer{1, 3},
				},
			},
		},
	}
}
