package database

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/itstheanurag/snipexec/internal/config"
	"github.com/itstheanurag/snipexec/internal/executor"
)

const DatabasePingTimeout = 10

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
	id          BIGSERIAL PRIMARY KEY,
	language    TEXT        NOT NULL,
	outcome     TEXT        NOT NULL,
	exit_code   INTEGER     NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT      NOT NULL
)`

const insertRun = `
INSERT INTO runs (language, outcome, exit_code, started_at, duration_ms)
VALUES ($1, $2, $3, $4, $5)`

// Database is the run log. It stores one row per finished execution and
// never sees submitted code or program output.
type Database struct {
	Pool *pgxpool.Pool
	log  *zerolog.Logger
}

// queryLogger traces statements at debug level.
type queryLogger struct {
	log *zerolog.Logger
}

type queryStartKey struct{}

func (q *queryLogger) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, time.Now())
}

func (q *queryLogger) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	event := q.log.Debug()
	if data.Err != nil {
		event = q.log.Warn().Err(data.Err)
	}
	if start, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
		event = event.Dur("duration", time.Since(start))
	}
	event.Str("command", data.CommandTag.String()).Msg("query finished")
}

func DSN(conf *config.Config) string {
	host := net.JoinHostPort(conf.Db.Host, strconv.Itoa(conf.Db.Port))
	encodedPassword := url.QueryEscape(conf.Db.Password)

	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
		url.QueryEscape(conf.Db.User),
		encodedPassword,
		host,
		conf.Db.Name,
		conf.Db.SSLMode,
	)
}

func New(ctx context.Context, conf *config.Config, log *zerolog.Logger) (*Database, error) {
	pgxPoolConfig, err := pgxpool.ParseConfig(DSN(conf))
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pgxPoolConfig.ConnConfig.RuntimeParams["application_name"] = "snipexec"
	pgxPoolConfig.ConnConfig.Tracer = &queryLogger{log: log}

	pgxPoolConfig.ConnConfig.DialFunc = func(ctx context.Context, network, addr string) (net.Conn, error) {
		dialer := &net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}
		return dialer.DialContext(ctx, network, addr)
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxPoolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, DatabasePingTimeout*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(pingCtx, createRunsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create runs table: %w", err)
	}

	log.Info().Msg("database connection established")

	return &Database{Pool: pool, log: log}, nil
}

// Record implements executor.Recorder.
func (db *Database) Record(ctx context.Context, run executor.Run) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := db.Pool.Exec(ctx, insertRun,
		run.Language,
		string(run.Outcome),
		run.ExitCode,
		run.StartedAt,
		run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (db *Database) Close() error {
	db.log.Info().Msg("Closing database connection pool")
	db.Pool.Close()
	return nil
}
