package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/shopcart/cart-service/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// numericValueOutOfRange is raised when quantity overflows its INTEGER column.
const numericValueOutOfRange = "22003"

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) CartRepository {
	return &postgresRepository{pool: pool}
}

func ConnectPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres url: %w", err)
	}
	cfg.MaxConns = 20

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return pool, nil
}

func RunPostgresMigrations(pool *pgxpool.Pool, migrationsPath string) error {
	// Closing this *sql.DB leaves the pool open.
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: "cart_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (r *postgresRepository) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	query := `
		SELECT c.user_id, i.product_id, i.quantity
		FROM carts c
		LEFT JOIN cart_items i ON i.user_id = c.user_id
		WHERE c.user_id = $1
		ORDER BY i.product_id
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart: %w", err)
	}
	defer rows.Close()

	var cart *domain.Cart
	for rows.Next() {
		var (
			uid       string
			productID *int64
			quantity  *int
		)
		if err := rows.Scan(&uid, &productID, &quantity); err != nil {
			return nil, fmt.Errorf("failed to scan cart row: %w", err)
		}
		if cart == nil {
			cart = &domain.Cart{UserID: uid, Items: []domain.CartItem{}}
		}
		// LEFT JOIN yields one all-NULL item row for an empty cart.
		if productID != nil && quantity != nil {
			cart.Items = append(cart.Items, domain.CartItem{ProductID: *productID, Quantity: *quantity})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	if cart == nil {
		return nil, ErrCartNotFound
	}
	return cart, nil
}

func (r *postgresRepository) AddItem(ctx context.Context, userID string, productID int64, quantity int) (int, error) {
	return withTx(ctx, r.pool, func(tx pgx.Tx) (int, error) {
		_, err := tx.Exec(ctx, `
			INSERT INTO carts (user_id) VALUES ($1)
			ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
		`, userID)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert cart: %w", err)
		}

		var current int
		err = tx.QueryRow(ctx, `
			INSERT INTO cart_items (user_id, product_id, quantity) VALUES ($1, $2, $3)
			ON CONFLICT (user_id, product_id)
			DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()
			RETURNING quantity
		`, userID, productID, quantity).Scan(&current)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == numericValueOutOfRange {
			return 0, ErrQuantityLimit
		}
		if err != nil {
			return 0, fmt.Errorf("failed to increment item: %w", err)
		}

		return current, nil
	})
}

func (r *postgresRepository) RemoveItem(ctx context.Context, userID string, productID int64, quantity int) (int, error) {
	return withTx(ctx, r.pool, func(tx pgx.Tx) (int, error) {
		// Lock the cart row first, in the same order AddItem takes its locks.
		var uid string
		err := tx.QueryRow(ctx, `SELECT user_id FROM carts WHERE user_id = $1 FOR UPDATE`, userID).Scan(&uid)
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrCartNotFound
		}
		if err != nil {
			return 0, fmt.Errorf("failed to lock cart: %w", err)
		}

		var current int
		err = tx.QueryRow(ctx, `
			SELECT quantity FROM cart_items
			WHERE user_id = $1 AND product_id = $2
			FOR UPDATE
		`, userID, productID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrItemNotFound
		}
		if err != nil {
			return 0, fmt.Errorf("failed to lock item: %w", err)
		}

		remaining := current - quantity
		if remaining <= 0 {
			remaining = 0
			_, err = tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, productID)
		} else {
			_, err = tx.Exec(ctx, `
				UPDATE cart_items SET quantity = $3, updated_at = NOW()
				WHERE user_id = $1 AND product_id = $2
			`, userID, productID, remaining)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to decrement item: %w", err)
		}

		if _, err := tx.Exec(ctx, `UPDATE carts SET updated_at = NOW() WHERE user_id = $1`, userID); err != nil {
			return 0, fmt.Errorf("failed to touch cart: %w", err)
		}

		return remaining, nil
	})
}

func (r *postgresRepository) Close(context.Context) error {
	r.pool.Close()
	return nil
}

func withTx[T any](ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) (T, error)) (_ T, txErr error) {
	var zero T

	tx, err := pool.Begin(ctx)
	if err != nil {
		return zero, fmt.Errorf("failed to begin tx: %w", err)
	}

	// Rollback also returns the connection to the pool on every error path.
	defer func() {
		if txErr != nil {
			rollbackErr := tx.Rollback(ctx)
			if rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
				txErr = errors.Join(txErr, fmt.Errorf("tx.Rollback: %w", rollbackErr))
			}
		}
	}()

	result, err := fn(tx)
	if err != nil {
		return zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return zero, fmt.Errorf("failed to commit tx: %w", err)
	}

	return result, nil
}
