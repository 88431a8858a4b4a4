package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
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

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/infra/postgres"
	pgmigrations "live-quiz-service/internal/infra/postgres/migrations"
	infraredis "live-quiz-service/internal/infra/redis"
)

func TestCompletedSessionIsArchived(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	archive := postgres.NewResultsArchive(pool)
	store := memory.NewStore(infraredis.NewSequence(redisClient))
	generator := infraredis.NewGeneratorCache(redisClient, memory.NewStaticGenerator(memory.SampleBank()), 5*time.Minute)
	events := &recorder{}
	service := app.NewQuizService(store, generator, events,
		app.WithArchiver(archive),
		app.WithRoomCodes(infraredis.NewRoomCodes(redisClient, time.Hour)))

	quiz, err := service.CreateSession(ctx, domain.CreateSessionInput{Topic: "arithmetic", QuestionsCount: 2, TimePerQuestion: 20})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	alice, _, err := service.Join(ctx, quiz.RoomCode, "Alice")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	bob, _, err := service.Join(ctx, strings.ToLower(quiz.RoomCode), "Bob")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := service.Start(ctx, quiz.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	q0 := quiz.Questions[0]
	mustSubmit(t, service, quiz.ID, alice.ID, q0.ID, q0.CorrectAnswer, 3)
	mustSubmit(t, service, quiz.ID, bob.ID, q0.ID, (q0.CorrectAnswer+1)%domain.OptionsPerQuestion, 5)

	if _, err := service.Advance(ctx, quiz.ID, 1); err != nil {
		t.Fatalf("advance: %v", err)
	}
	q1 := quiz.Questions[1]
	mustSubmit(t, service, quiz.ID, alice.ID, q1.ID, q1.CorrectAnswer, 4)
	mustSubmit(t, service, quiz.ID, bob.ID, q1.ID, q1.CorrectAnswer, 6)

	rankings, err := service.End(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if len(rankings) != 2 || rankings[0].ParticipantID != alice.ID {
		t.Fatalf("expected alice leading, got %+v", rankings)
	}

	archived, err := archive.LoadResults(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("load results: %v", err)
	}
	if archived.RoomCode != quiz.RoomCode || len(archived.Rankings) != 2 {
		t.Fatalf("unexpected archive row %+v", archived)
	}
	if archived.Rankings[0].Score != 100 || archived.Rankings[1].Score != 50 {
		t.Fatalf("unexpected archived scores %+v", archived.Rankings)
	}

	// the join code is free again once the session completes
	ok, err := infraredis.NewRoomCodes(redisClient, time.Hour).Reserve(ctx, quiz.RoomCode)
	if err != nil || !ok {
		t.Fatalf("expected room code released: ok=%v err=%v", ok, err)
	}

	if _, err := archive.LoadResults(ctx, quiz.ID+1000); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown session, got %v", err)
	}
}

func TestArchiveKeepsSessionsThatReuseAnID(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	archive := postgres.NewResultsArchive(pool)

	// each run gets a fresh in-process sequence, as after a restart
	run := func(code string) (*app.QuizService, domain.SessionWithQuestions) {
		service := app.NewQuizService(memory.NewStore(nil), memory.NewStaticGenerator(memory.SampleBank()), &recorder{},
			app.WithArchiver(archive),
			app.WithRoomCodeGenerator(func() (string, error) { return code, nil }))
		quiz, err := service.CreateSession(ctx, domain.CreateSessionInput{Topic: "arithmetic", QuestionsCount: 1})
		if err != nil {
			t.Fatalf("create session %s: %v", code, err)
		}
		return service, quiz
	}

	first, oldQuiz := run("RUNAAA")
	if _, _, err := first.Join(ctx, oldQuiz.RoomCode, "Early"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := first.End(ctx, oldQuiz.ID); err != nil {
		t.Fatalf("end first: %v", err)
	}

	second, quiz := run("RUNBBB")
	if quiz.ID != oldQuiz.ID {
		t.Fatalf("expected id reuse, got %d and %d", oldQuiz.ID, quiz.ID)
	}
	if _, err := second.Results(ctx, quiz.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected unfinished session, got %v", err)
	}
	if _, err := second.End(ctx, quiz.ID); err != nil {
		t.Fatalf("end second: %v", err)
	}

	res, err := second.Results(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if res.RoomCode != "RUNBBB" || res.CompletedAt.IsZero() {
		t.Fatalf("expected the second run's archived row, got %+v", res)
	}

	var rows int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM session_results WHERE session_id=$1`, quiz.ID).Scan(&rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 2 {
		t.Fatalf("expected both runs archived, got %d rows", rows)
	}
}

func mustSubmit(t *testing.T, service *app.QuizService, sessionID, participantID, questionID int64, answer, seconds int) {
	t.Helper()
	_, err := service.SubmitAnswer(context.Background(), sessionID, domain.AnswerSubmission{
		ParticipantID:  participantID,
		QuestionID:     questionID,
		SelectedAnswer: answer,
		ResponseTime:   seconds,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
}

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Broadcast(_ int64, event domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
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

func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
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

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
