package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"quizme/internal/domain"
)

func TestHostFlowOverREST(t *testing.T) {
	env := newTestEnv(t)
	created := env.createRoom(t)
	code := created.Room.Code
	if created.HostToken == "" || created.Room.Phase != domain.PhaseLobby {
		t.Fatalf("unexpected create response %+v", created)
	}

	player, err := env.service.Join(context.Background(), code, "alice", "")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	var view domain.RoomView
	if status := env.do(t, http.MethodPost, "/api/rooms/"+code+"/start", created.HostToken, map[string]any{"winnerCount": 1}, &view); status != http.StatusOK {
		t.Fatalf("start status %d", status)
	}
	if view.Phase != domain.PhaseActive || view.CurrentSlide == nil || view.CurrentSlide.ID != 1 {
		t.Fatalf("unexpected view after start %+v", view)
	}

	if _, err := env.service.Submit(context.Background(), code, "alice", player.Token, 1, json.RawMessage(`1`)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	var stats domain.SlideStats
	if status := env.do(t, http.MethodGet, "/api/rooms/"+code+"/stats", created.HostToken, nil, &stats); status != http.StatusOK {
		t.Fatalf("stats status %d", status)
	}
	if len(stats.Answered) != 1 || stats.OptionCounts[1] != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	if status := env.do(t, http.MethodPost, "/api/rooms/"+code+"/results", created.HostToken, nil, nil); status != http.StatusConflict {
		t.Fatalf("expected 409 for results from first slide, got %d", status)
	}
	if status := env.do(t, http.MethodPost, "/api/rooms/"+code+"/advance", created.HostToken, map[string]int{"delta": 1}, &view); status != http.StatusOK {
		t.Fatalf("advance status %d", status)
	}
	if view.SlideIndex != 1 {
		t.Fatalf("expected slide 1, got %d", view.SlideIndex)
	}

	var results domain.Results
	if status := env.do(t, http.MethodPost, "/api/rooms/"+code+"/results", created.HostToken, nil, &results); status != http.StatusOK {
		t.Fatalf("show results status %d", status)
	}
	if results.Scores["alice"] != 1 || len(results.Winners) != 1 || results.Winners[0] != "alice" {
		t.Fatalf("unexpected results %+v", results)
	}

	var fetched domain.Results
	if status := env.do(t, http.MethodGet, "/api/rooms/"+code+"/results", "", nil, &fetched); status != http.StatusOK {
		t.Fatalf("get results status %d", status)
	}
	if fetched.Scores["alice"] != 1 {
		t.Fatalf("unexpected fetched results %+v", fetched)
	}

	body := map[string]string{"name": "alice", "token": player.Token, "contactName": "Alice", "email": "alice@example.com"}
	if status := env.do(t, http.MethodPost, "/api/rooms/"+code+"/winners", "", body, nil); status != http.StatusCreated {
		t.Fatalf("winner status %d", status)
	}

	var winners []domain.Winner
	if status := env.do(t, http.MethodGet, "/api/rooms/"+code+"/winners", created.HostToken, nil, &winners); status != http.StatusOK {
		t.Fatalf("list winners status %d", status)
	}
	if len(winners) != 1 || winners[0].Contact.Email != "alice@example.com" {
		t.Fatalf("unexpected winners %+v", winners)
	}
}

func TestRESTErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	created := env.createRoom(t)
	code := created.Room.Code

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"unknown room", http.MethodGet, "/api/rooms/NOPE00", "", nil, http.StatusNotFound},
		{"unknown quiz", http.MethodPost, "/api/rooms", "", map[string]string{"quizId": "missing"}, http.StatusNotFound},
		{"missing quiz id", http.MethodPost, "/api/rooms", "", map[string]string{}, http.StatusBadRequest},
		{"wrong host token", http.MethodPost, "/api/rooms/" + code + "/start", "nope", nil, http.StatusForbidden},
		{"bad winner count", http.MethodPost, "/api/rooms/" + code + "/start", created.HostToken, map[string]int{"winnerCount": 0}, http.StatusBadRequest},
		{"advance in lobby", http.MethodPost, "/api/rooms/" + code + "/advance", created.HostToken, map[string]int{"delta": 1}, http.StatusConflict},
		{"bad delta", http.MethodPost, "/api/rooms/" + code + "/advance", created.HostToken, map[string]int{"delta": 3}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/rooms/" + code + "/advance", created.HostToken, map[string]int{"steps": 1}, http.StatusBadRequest},
		{"results not ready", http.MethodGet, "/api/rooms/" + code + "/results", "", nil, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := env.do(t, tc.method, tc.path, tc.token, tc.body, nil); got != tc.want {
				t.Fatalf("want %d, got %d", tc.want, got)
			}
		})
	}
}

func TestSettingsToggleAutoAdvance(t *testing.T) {
	env := newTestEnv(t)
	created := env.createRoom(t)
	code := created.Room.Code
	env.do(t, http.MethodPost, "/api/rooms/"+code+"/start", created.HostToken, nil, nil)

	var view domain.RoomView
	status := env.do(t, http.MethodPatch, "/api/rooms/"+code+"/settings", created.HostToken,
		map[string]any{"autoAdvance": true, "slideDuration": 600}, &view)
	if status != http.StatusOK {
		t.Fatalf("settings status %d", status)
	}
	if !view.AutoAdvance || view.SlideDuration != 600 {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.server.Client().Get(env.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}
}

func TestMetricsExposeRoutePatterns(t *testing.T) {
	env := newTestEnv(t)
	created := env.createRoom(t)
	if status := env.do(t, http.MethodGet, "/api/rooms/"+created.Room.Code, "", nil, nil); status != http.StatusOK {
		t.Fatalf("get room status %d", status)
	}

	resp, err := env.server.Client().Get(env.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(body), `route="/api/rooms/{code}"`) {
		t.Fatalf("expected requests labelled by route pattern, got:\n%s", body)
	}
}
