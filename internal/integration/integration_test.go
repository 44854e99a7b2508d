package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quizme/internal/app"
	"quizme/internal/domain"
	"quizme/internal/infra/postgres"
	pgmigrations "quizme/internal/infra/postgres/migrations"
	infraredis "quizme/internal/infra/redis"
)

func TestRoomLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	loader := postgres.NewQuizStore(pool, log)
	quiz, err := loader.SaveQuiz(ctx, sampleQuiz())
	if err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
	checkbox, scale := quiz.Slides[1].ID, quiz.Slides[2].ID
	if _, err := pool.Exec(ctx, `UPDATE slides SET answer = '"oops"'::jsonb WHERE id=$1`, scale); err != nil {
		t.Fatalf("break answer key: %v", err)
	}

	store := postgres.NewStore(pool)
	cache := infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute, log)
	service := app.NewRoomService(app.Deps{
		Rooms:       store,
		Players:     store,
		Submissions: store,
		Winners:     store,
		Quizzes:     cache,
		Notifier:    infraredis.NewRoomNotifier(redisClient, log),
		Locker:      infraredis.NewAdvanceLocker(redisClient, 5*time.Second, log),
	}, app.WithLogger(log))
	defer service.Close()

	room, err := service.CreateRoom(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	alice, err := service.Join(ctx, room.Code, "alice", "")
	if err != nil {
		t.Fatalf("join alice: %v", err)
	}
	bob, err := service.Join(ctx, room.Code, "bob", "")
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}
	if _, err := service.Join(ctx, room.Code, "alice", ""); !errors.Is(err, domain.ErrPlayerNameTaken) {
		t.Fatalf("expected name taken, got %v", err)
	}

	updates, cancel, err := service.Subscribe(ctx, room.Code)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if _, err := service.Start(ctx, room.Code, room.HostToken, app.StartOptions{WinnerCount: 1}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForIndex(t, updates, 0)

	submit := func(p domain.Player, slideID int64, payload string) {
		t.Helper()
		if _, err := service.Submit(ctx, room.Code, p.Name, p.Token, slideID, json.RawMessage(payload)); err != nil {
			t.Fatalf("submit %s: %v", p.Name, err)
		}
	}
	submit(alice, quiz.Slides[0].ID, `0`)
	submit(alice, quiz.Slides[0].ID, `1`)
	submit(bob, quiz.Slides[0].ID, `1`)
	submit(alice, checkbox, `[0,2]`)
	submit(bob, checkbox, `[0,1]`)
	submit(bob, scale, `[2,1,0]`) // scored zero: the stored key is unusable

	for want := 1; want <= 2; want++ {
		if _, err := service.Advance(ctx, room.Code, room.HostToken, 1); err != nil {
			t.Fatalf("advance: %v", err)
		}
		waitForIndex(t, updates, want)
	}

	results, err := service.ShowResults(ctx, room.Code, room.HostToken)
	if err != nil {
		t.Fatalf("show results: %v", err)
	}
	if results.Scores["alice"] != 3 || results.Scores["bob"] != 1 {
		t.Fatalf("unexpected scores %v", results.Scores)
	}
	if len(results.Winners) != 1 || results.Winners[0] != "alice" {
		t.Fatalf("expected alice to win, got %v", results.Winners)
	}
	waitForIndex(t, updates, domain.ResultsIndex)

	if _, err := service.SubmitWinnerContact(ctx, room.Code, "alice", alice.Token, domain.Contact{Name: "Alice", Email: "alice@example.com"}); err != nil {
		t.Fatalf("winner contact: %v", err)
	}
	winners, err := service.WinnerContacts(ctx, room.Code, room.HostToken)
	if err != nil {
		t.Fatalf("list winners: %v", err)
	}
	if len(winners) != 1 || winners[0].PlayerName != "alice" || winners[0].Contact.Email != "alice@example.com" {
		t.Fatalf("unexpected winners %+v", winners)
	}

	if _, err := service.Submit(ctx, room.Code, "bob", bob.Token, quiz.Slides[0].ID, json.RawMessage(`1`)); !errors.Is(err, domain.ErrRoomFinished) {
		t.Fatalf("expected submissions to be refused after results, got %v", err)
	}

	authoring := app.NewQuizService(loader, log, cache)
	list, err := authoring.ListQuizzes(ctx, "host-1")
	if err != nil {
		t.Fatalf("list quizzes: %v", err)
	}
	if len(list) != 1 || list[0].ID != quiz.ID || list[0].SlideCount != 3 {
		t.Fatalf("unexpected quiz list %+v", list)
	}
	if err := authoring.DeleteQuiz(ctx, "host-1", quiz.ID); !errors.Is(err, domain.ErrQuizInUse) {
		t.Fatalf("expected quiz with rooms to be kept, got %v", err)
	}

	draft, err := authoring.CreateQuiz(ctx, "host-1", "Draft")
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	added, err := authoring.SaveSlide(ctx, "host-1", draft.ID, domain.Slide{
		Question:     "Order these",
		QuestionType: domain.Scale,
		Options:      []string{"b", "a"},
		Answer:       domain.ScaleAnswer{1, 0},
	})
	if err != nil {
		t.Fatalf("save slide: %v", err)
	}
	if _, err := cache.GetQuiz(ctx, draft.ID); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if err := authoring.DeleteSlide(ctx, "host-1", draft.ID, draft.Slides[0].ID); err != nil {
		t.Fatalf("delete slide: %v", err)
	}
	cached, err := cache.GetQuiz(ctx, draft.ID)
	if err != nil {
		t.Fatalf("reload draft: %v", err)
	}
	if len(cached.Slides) != 1 || cached.Slides[0].ID != added.ID {
		t.Fatalf("cache served stale slides %+v", cached.Slides)
	}
	if err := authoring.DeleteQuiz(ctx, "host-1", draft.ID); err != nil {
		t.Fatalf("delete draft: %v", err)
	}
	if _, err := cache.GetQuiz(ctx, draft.ID); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("deleted quiz still served: %v", err)
	}
}

func waitForIndex(t *testing.T, updates <-chan domain.RoomView, index int) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case view := <-updates:
			if view.SlideIndex == index {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for slide index %d", index)
		}
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateDB(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:     "quiz-1",
		Title:  "Integration",
		HostID: "host-1",
		Slides: []domain.Slide{
			{
				Position:     0,
				Question:     "What is 2 + 2?",
				QuestionType: domain.MultipleChoice,
				Options:      []string{"3", "4", "5"},
				Answer:       domain.ChoiceAnswer(1),
			},
			{
				Position:     1,
				Question:     "Which are prime?",
				QuestionType: domain.Checkbox,
				Options:      []string{"2", "4", "5", "9"},
				Answer:       domain.CheckboxAnswer{0, 2},
			},
			{
				Position:     2,
				Question:     "Order by size",
				QuestionType: domain.Scale,
				Options:      []string{"Moon", "Earth", "Sun"},
				Answer:       domain.ScaleAnswer{2, 1, 0},
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
