package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the relational backend. Inventory and equipment are kept
// as JSONB columns so the row stays one-per-character.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects and pings.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Pool exposes the underlying pool for migrations.
func (s *PostgresStore) Pool() *pgxpool.Pool { return s.pool }

const playerColumns = `id, name, name_lower, room_id, hp, max_hp, mana, max_mana,
	level, xp_total, constitution, dexterity, is_staff, inventory, equipment,
	created_at, updated_at`

func scanPlayer(row pgx.Row) (*PlayerRecord, error) {
	var rec PlayerRecord
	var inv, eq []byte
	err := row.Scan(
		&rec.ID, &rec.Name, &rec.NameLower, &rec.RoomID,
		&rec.HP, &rec.MaxHP, &rec.Mana, &rec.MaxMana,
		&rec.Level, &rec.XPTotal, &rec.Constitution, &rec.Dexterity,
		&rec.IsStaff, &inv, &eq, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(inv) > 0 {
		if err := json.Unmarshal(inv, &rec.Inventory); err != nil {
			return nil, fmt.Errorf("decode inventory: %w", err)
		}
	}
	if len(eq) > 0 {
		if err := json.Unmarshal(eq, &rec.Equipment); err != nil {
			return nil, fmt.Errorf("decode equipment: %w", err)
		}
	}
	return &rec, nil
}

func encodeBags(rec *PlayerRecord) (inv, eq []byte, err error) {
	inv, err = json.Marshal(rec.Inventory)
	if err != nil {
		return nil, nil, fmt.Errorf("encode inventory: %w", err)
	}
	eq, err = json.Marshal(rec.Equipment)
	if err != nil {
		return nil, nil, fmt.Errorf("encode equipment: %w", err)
	}
	return inv, eq, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id int64) (*PlayerRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+playerColumns+` FROM players WHERE id = $1`, id)
	rec, err := scanPlayer(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("find player %d: %w", id, err)
	}
	return rec, err
}

func (s *PostgresStore) FindByNameLower(ctx context.Context, nameLower string) (*PlayerRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+playerColumns+` FROM players WHERE name_lower = $1`, nameLower)
	rec, err := scanPlayer(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("find player %q: %w", nameLower, err)
	}
	return rec, err
}

func (s *PostgresStore) Create(ctx context.Context, rec *PlayerRecord) error {
	inv, eq, err := encodeBags(rec)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	err = s.pool.QueryRow(ctx, `
		INSERT INTO players (name, name_lower, room_id, hp, max_hp, mana, max_mana,
			level, xp_total, constitution, dexterity, is_staff, inventory, equipment,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING id`,
		rec.Name, rec.NameLower, rec.RoomID, rec.HP, rec.MaxHP, rec.Mana, rec.MaxMana,
		rec.Level, rec.XPTotal, rec.Constitution, rec.Dexterity, rec.IsStaff, inv, eq,
		rec.CreatedAt, rec.UpdatedAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("create player %q: %w", rec.Name, err)
	}
	return nil
}

// Save is a single upsert: the write-behind worker may flush a record the
// row for which was never created on this instance.
func (s *PostgresStore) Save(ctx context.Context, rec *PlayerRecord) error {
	if rec.ID == 0 {
		return fmt.Errorf("save player %q: no id assigned", rec.Name)
	}
	inv, eq, err := encodeBags(rec)
	if err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.UpdatedAt = time.Now().UTC()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO players (id, name, name_lower, room_id, hp, max_hp, mana, max_mana,
			level, xp_total, constitution, dexterity, is_staff, inventory, equipment,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, name_lower = EXCLUDED.name_lower,
			room_id = EXCLUDED.room_id, hp = EXCLUDED.hp, max_hp = EXCLUDED.max_hp,
			mana = EXCLUDED.mana, max_mana = EXCLUDED.max_mana,
			level = EXCLUDED.level, xp_total = EXCLUDED.xp_total,
			constitution = EXCLUDED.constitution, dexterity = EXCLUDED.dexterity,
			is_staff = EXCLUDED.is_staff, inventory = EXCLUDED.inventory,
			equipment = EXCLUDED.equipment, updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.Name, rec.NameLower, rec.RoomID, rec.HP, rec.MaxHP,
		rec.Mana, rec.MaxMana, rec.Level, rec.XPTotal,
		rec.Constitution, rec.Dexterity, rec.IsStaff, inv, eq,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save player %d: %w", rec.ID, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM players WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete player %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindAccount(ctx context.Context, nameLower string) (*AccountRecord, error) {
	var acct AccountRecord
	err := s.pool.QueryRow(ctx, `
		SELECT player_id, name_lower, password_hash, created_at
		FROM accounts WHERE name_lower = $1`, nameLower,
	).Scan(&acct.PlayerID, &acct.NameLower, &acct.PasswordHash, &acct.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find account %q: %w", nameLower, err)
	}
	return &acct, nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, acct *AccountRecord) error {
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (player_id, name_lower, password_hash, created_at)
		VALUES ($1, $2, $3, $4)`,
		acct.PlayerID, acct.NameLower, acct.PasswordHash, acct.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create account %q: %w", acct.NameLower, err)
	}
	return nil
}

func (s *PostgresStore) DeleteAccount(ctx context.Context, nameLower string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE name_lower = $1`, nameLower)
	if err != nil {
		return fmt.Errorf("delete account %q: %w", nameLower, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
