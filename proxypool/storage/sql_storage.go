package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"stealthfetch/internal/shared/logger"
	"stealthfetch/proxypool/model"
)

// proxyRow is the bun row mapping for one persisted proxy.
type proxyRow struct {
	bun.BaseModel `bun:"table:proxies,alias:p"`

	ID            int64     `bun:"id,pk,autoincrement"`
	Host          string    `bun:"host,notnull"`
	Port          int       `bun:"port,notnull"`
	Protocol      string    `bun:"protocol,notnull"`
	Country       string    `bun:"country"`
	Source        string    `bun:"source"`
	Success       int       `bun:"success,notnull,default:0"`
	Fail          int       `bun:"fail,notnull,default:0"`
	LastUsed      time.Time `bun:"last_used,nullzero"`
	CooldownUntil time.Time `bun:"cooldown_until,nullzero"`
	CreatedAt     time.Time `bun:"created_at,nullzero"`
}

// SQLStorage implements Store on a Postgres table via bun. Save replaces
// the previous snapshot wholesale inside one transaction.
type SQLStorage struct {
	db *bun.DB
}

// NewSQLStorage opens the database behind the DSN, verifies connectivity
// and ensures the snapshot table exists.
func NewSQLStorage(ctx context.Context, dsn string) (*SQLStorage, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.NewCreateTable().
		Model((*proxyRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create proxies table: %w", err)
	}

	return &SQLStorage{db: db}, nil
}

// Load reads the stored snapshot in insertion order.
func (s *SQLStorage) Load(ctx context.Context) ([]*model.Proxy, error) {
	l := logger.WithComponent("ProxyPool/Storage")

	var rows []proxyRow
	if err := s.db.NewSelect().
		Model(&rows).
		Order("id ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("error loading proxy snapshot: %w", err)
	}

	proxies := make([]*model.Proxy, 0, len(rows))
	for _, r := range rows {
		if r.Host == "" || r.Port < 1 || r.Port > 65535 {
			l.Warn().Str("host", r.Host).Int("port", r.Port).Msg("Skipping malformed proxy row.")
			continue
		}
		proxies = append(proxies, model.Restore(r.Host, r.Port, r.Protocol, r.Country, r.Source,
			r.Success, r.Fail, r.LastUsed, r.CooldownUntil, r.CreatedAt))
	}

	l.Info().Int("count", len(proxies)).Msg("Successfully loaded proxies from database.")
	return proxies, nil
}

// Save replaces the stored snapshot with the given entries.
func (s *SQLStorage) Save(ctx context.Context, proxies []*model.Proxy) error {
	rows := make([]proxyRow, 0, len(proxies))
	for _, p := range proxies {
		rows = append(rows, proxyRow{
			Host:          p.Host,
			Port:          p.Port,
			Protocol:      p.Protocol,
			Country:       p.Country,
			Source:        p.Source,
			Success:       p.Success(),
			Fail:          p.Fail(),
			LastUsed:      p.LastUsed(),
			CooldownUntil: p.CooldownUntil(),
			CreatedAt:     p.CreatedAt(),
		})
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewTruncateTable().Model((*proxyRow)(nil)).Exec(ctx); err != nil {
			return fmt.Errorf("error clearing previous snapshot: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("error inserting proxy snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	l := logger.WithComponent("ProxyPool/Storage")
	l.Info().Int("count", len(rows)).Msg("Successfully saved proxies to database.")
	return nil
}

// Close releases the underlying connection pool.
func (s *SQLStorage) Close() error {
	return s.db.Close()
}
