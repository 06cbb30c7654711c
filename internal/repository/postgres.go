// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Ошибки уровня хранилища. Сервис и обработчики сопоставляют их
// с кодами ответов через errors.Is.
var (
	// ErrUserExists возвращается при попытке создать пользователя с уже существующим email.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserReferenced возвращается при удалении пользователя, на которого ссылаются автомобили или заказы.
	ErrUserReferenced = errors.New("user is referenced by vehicles or orders")
	// ErrVehicleExists возвращается при дублировании регистрационного номера или VIN.
	ErrVehicleExists = errors.New("vehicle already exists")
	// ErrVehicleNotFound возвращается, если автомобиль не найден.
	ErrVehicleNotFound = errors.New("vehicle not found")
	// ErrVehicleHasRepairs возвращается при удалении автомобиля с историей заказов.
	ErrVehicleHasRepairs = errors.New("vehicle has repair history")
	// ErrPartExists возвращается при дублировании кода запчасти.
	ErrPartExists = errors.New("part already exists")
	// ErrPartNotFound возвращается, если запчасть не найдена.
	ErrPartNotFound = errors.New("part not found")
	// ErrPartInUse возвращается при удалении запчасти, списанной хотя бы в один заказ.
	ErrPartInUse = errors.New("part is referenced by consumption records")
	// ErrInsufficientStock возвращается при списании количества, превышающего остаток на складе.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrServiceNotFound возвращается, если услуга не найдена в прейскуранте.
	ErrServiceNotFound = errors.New("service not found")
	// ErrServiceInUse возвращается при удалении услуги, привязанной хотя бы к одному заказу.
	ErrServiceInUse = errors.New("service is referenced by orders")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderCompleted возвращается при попытке изменить завершённый заказ.
	ErrOrderCompleted = errors.New("order already completed")
	// ErrOrderHasParts возвращается при удалении заказа со списанными запчастями.
	ErrOrderHasParts = errors.New("order has consumed parts")
	// ErrInvalidStatusTransition возвращается при недопустимом переходе статуса заказа.
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраи полезны для Serialization Failure и Deadlocks:
		// конкурирующие списания со склада и правки одного заказа.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// isPgError сообщает, имеет ли ошибка указанный код PostgreSQL.
func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// Деньги хранятся в БД в копейках, на границе модели конвертируются в float64.
func toCents(v float64) int64 {
	return int64(math.Round(v * 100))
}

func fromCents(c int64) float64 {
	return float64(c) / 100
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
