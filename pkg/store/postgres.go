package store

import (
	"context"
	_ "embed"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/geniass/stockwatch/pkg/config"
	"github.com/geniass/stockwatch/pkg/scraper"
)

//go:embed schema.sql
var schema string

var (
	ErrTransactionBegin  = errors.New("failed to begin transaction")
	ErrTransactionCommit = errors.New("failed to commit transaction")
)

const productColumns = `id, owner, code, title, url, current_price, previous_price, availability,
	last_checked, next_check, check_count, fail_count, created_at`

// Connect opens a pool and pings it. The returned func closes the pool.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, func(), error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.BuildDSN())
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to parse database config")
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open database")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, errors.Wrap(err, "failed to ping database")
	}
	return pool, pool.Close, nil
}

// Migrate creates the tables and indexes if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return errors.Wrap(err, "failed to apply schema")
}

// Postgres is the Store backed by PostgreSQL. Observations run in a transaction holding the row lock.
type Postgres struct {
	pool *pgxpool.Pool
	opts Options
	now  func() time.Time
	log  *slog.Logger
}

func NewPostgres(pool *pgxpool.Pool, opts Options, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, opts: opts.withDefaults(), now: time.Now, log: logger}
}

func (s *Postgres) UpsertProduct(ctx context.Context, owner, code, title, url string) (Product, error) {
	now := s.now()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO products (id, owner, code, title, url, availability, next_check, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (owner, code) DO UPDATE SET title = EXCLUDED.title, url = EXCLUDED.url
		RETURNING `+productColumns,
		uuid.New(), owner, code, title, url, string(scraper.Unknown), now)
	p, err := scanProduct(row)
	return p, errors.Wrapf(err, "upsert product %s/%s", owner, code)
}

func (s *Postgres) RemoveProduct(ctx context.Context, owner, code string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE owner = $1 AND code = $2`, owner, code)
	if err != nil {
		return errors.Wrapf(err, "remove product %s/%s", owner, code)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	return p, errors.Wrapf(err, "get product %s", id)
}

func (s *Postgres) FindProduct(ctx context.Context, owner, code string) (Product, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE owner = $1 AND code = $2`, owner, code)
	p, err := scanProduct(row)
	return p, errors.Wrapf(err, "find product %s/%s", owner, code)
}

func (s *Postgres) ListProducts(ctx context.Context, owner string) ([]Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE owner = $1
		ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, errors.Wrapf(err, "list products of %s", owner)
	}
	return collectProducts(rows)
}

func (s *Postgres) DueProducts(ctx context.Context, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = DefaultDueLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE next_check <= $1 AND availability <> $2
		ORDER BY next_check ASC
		LIMIT $3`, s.now(), string(scraper.Inactive), limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due products")
	}
	return collectProducts(rows)
}

func (s *Postgres) RecordObservation(ctx context.Context, id uuid.UUID, obs Observation) (Recorded, error) {
	var rec Recorded
	_, err := s.inTx(ctx, func(tx pgx.Tx) (Product, error) {
		p, err := lockProduct(ctx, tx, id)
		if err != nil {
			return Product{}, err
		}
		rec.Before = p

		sample, drop := applyObservation(&p, obs, s.now(), s.opts)
		if sample != nil {
			_, err := tx.Exec(ctx, `
				INSERT INTO price_history (product_id, price, availability, checked_at)
				VALUES ($1, $2, $3, $4)`,
				sample.ProductID, sample.Price, string(sample.Availability), sample.CheckedAt)
			if err != nil {
				return Product{}, errors.Wrap(err, "append price history")
			}
		}

		_, err = tx.Exec(ctx, `
			UPDATE products SET
				title = $2, current_price = $3, previous_price = $4, availability = $5,
				last_checked = $6, next_check = $7, check_count = $8, fail_count = $9
			WHERE id = $1`,
			p.ID, p.Title, p.CurrentPrice, p.PreviousPrice, string(p.Availability),
			p.LastChecked, p.NextCheck, p.CheckCount, p.FailCount)
		if err != nil {
			return Product{}, errors.Wrap(err, "update product")
		}
		rec.Product = p
		rec.Drop = drop
		return p, nil
	})
	if err != nil {
		return Recorded{}, err
	}
	return rec, nil
}

func (s *Postgres) RecordFailure(ctx context.Context, id uuid.UUID) (Product, error) {
	now := s.now()
	row := s.pool.QueryRow(ctx, `
		UPDATE products SET
			fail_count = fail_count + 1, last_checked = $2, next_check = $3
		WHERE id = $1
		RETURNING `+productColumns,
		id, now, now.Add(s.opts.Cooldown))
	p, err := scanProduct(row)
	return p, errors.Wrapf(err, "record failure of %s", id)
}

func (s *Postgres) PriceDrop(ctx context.Context, id uuid.UUID, newPrice decimal.Decimal) (Drop, error) {
	var current decimal.NullDecimal
	err := s.pool.QueryRow(ctx, `SELECT current_price FROM products WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return Drop{}, ErrNotFound
	}
	if err != nil {
		return Drop{}, errors.Wrapf(err, "read current price of %s", id)
	}
	return ComputeDrop(current, newPrice, s.opts.DropThreshold), nil
}

func (s *Postgres) PriceHistory(ctx context.Context, id uuid.UUID, limit int) ([]PriceSample, error) {
	if limit <= 0 {
		limit = DefaultHistoryLen
	}
	if _, err := s.GetProduct(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT product_id, price, availability, checked_at FROM price_history
		WHERE product_id = $1
		ORDER BY checked_at DESC, id DESC
		LIMIT $2`, id, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "select price history of %s", id)
	}
	samples, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (PriceSample, error) {
		var (
			sample       PriceSample
			availability string
		)
		err := row.Scan(&sample.ProductID, &sample.Price, &availability, &sample.CheckedAt)
		sample.Availability = scraper.Availability(availability)
		return sample, err
	})
	return samples, errors.Wrap(err, "scan price history")
}

func (s *Postgres) SetInactive(ctx context.Context, owner, code string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE products SET availability = $3 WHERE owner = $1 AND code = $2`,
		owner, code, string(scraper.Inactive))
	if err != nil {
		return errors.Wrapf(err, "pause %s/%s", owner, code)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) Reactivate(ctx context.Context, owner, code string) error {
	if _, err := s.FindProduct(ctx, owner, code); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE products SET availability = $3, next_check = $4
		WHERE owner = $1 AND code = $2 AND availability = $5`,
		owner, code, string(scraper.Unknown), s.now(), string(scraper.Inactive))
	return errors.Wrapf(err, "resume %s/%s", owner, code)
}

func (s *Postgres) inTx(ctx context.Context, fn func(tx pgx.Tx) (Product, error)) (Product, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Product{}, errors.Mark(err, ErrTransactionBegin)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.log.Warn("failed to rollback transaction", "error", err)
		}
	}()

	p, err := fn(tx)
	if err != nil {
		return Product{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Product{}, errors.Mark(err, ErrTransactionCommit)
	}
	return p, nil
}

func lockProduct(ctx context.Context, tx pgx.Tx, id uuid.UUID) (Product, error) {
	row := tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id)
	p, err := scanProduct(row)
	return p, errors.Wrapf(err, "lock product %s", id)
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p            Product
		availability string
		lastChecked  *time.Time
	)
	err := row.Scan(&p.ID, &p.Owner, &p.Code, &p.Title, &p.URL, &p.CurrentPrice, &p.PreviousPrice,
		&availability, &lastChecked, &p.NextCheck, &p.CheckCount, &p.FailCount, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, err
	}
	p.Availability = scraper.Availability(availability)
	if lastChecked != nil {
		p.LastChecked = *lastChecked
	}
	return p, nil
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Product, error) {
		return scanProduct(row)
	})
	return products, errors.Wrap(err, "scan products")
}
