package profile

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore is the PostgreSQL-backed profile store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle. Run Migrate before first use.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("profile: load migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("profile: migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("profile: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("profile: migrate up: %w", err)
	}
	return nil
}

const profileColumns = `id, gender, city, interests, banned, online, blocked,
	report_count, reputation_score, premium_until, last_partner_id,
	safety_notified, message_count`

func scanProfile(row interface{ Scan(...any) error }) (*UserProfile, error) {
	var u UserProfile
	var premiumUntil sql.NullTime
	err := row.Scan(
		&u.ID,
		&u.Gender,
		&u.City,
		pq.Array(&u.Interests),
		&u.Banned,
		&u.Online,
		pq.Array(&u.Blocked),
		&u.ReportCount,
		&u.ReputationScore,
		&premiumUntil,
		&u.LastPartnerID,
		&u.SafetyNotified,
		&u.MessageCount,
	)
	if err != nil {
		return nil, err
	}
	if premiumUntil.Valid {
		t := premiumUntil.Time
		u.PremiumUntil = &t
	}
	return &u, nil
}

// EnsureProfile creates an empty row for id if the user is not known yet.
func (s *PostgresStore) EnsureProfile(ctx context.Context, id string) error {
	const query = `INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("profile: ensure %s: %w", id, err)
	}
	return nil
}

// GetProfile loads a single profile. Returns ErrNotFound for unknown ids.
func (s *PostgresStore) GetProfile(ctx context.Context, id string) (*UserProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM users WHERE id = $1`
	u, err := scanProfile(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("profile: get %s: %w", id, err)
	}
	return u, nil
}

// QueryCandidates returns the profiles in filter.CandidateIDs that pass the
// hard exclusions and the mode predicate. The clause set is fixed per mode;
// no field names are built dynamically.
func (s *PostgresStore) QueryCandidates(ctx context.Context, filter CandidateFilter) ([]*UserProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM users
		WHERE id = ANY($1)
		  AND id <> $2
		  AND NOT banned
		  AND report_count < $3
		  AND NOT ($2 = ANY(blocked))
		  AND NOT (id = ANY($4))`

	args := []any{
		pq.Array(filter.CandidateIDs),
		filter.RequesterID,
		filter.MaxReportCount,
		pq.Array(filter.RequesterBlocked),
	}

	switch filter.Mode {
	case ModeGender:
		query += ` AND LOWER(gender) = LOWER($5)`
		args = append(args, filter.TargetGender)
	case ModeCity:
		query += ` AND LOWER(city) = LOWER($5)`
		args = append(args, filter.City)
	case ModeInterests:
		query += ` AND interests && $5`
		args = append(args, pq.Array(filter.Interests))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("profile: query candidates: %w", err)
	}
	defer rows.Close()

	var candidates []*UserProfile
	for rows.Next() {
		u, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("profile: scan candidate: %w", err)
		}
		candidates = append(candidates, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("profile: query candidates: %w", err)
	}
	return candidates, nil
}

// UpdateReputation applies a signed delta to the reputation score.
func (s *PostgresStore) UpdateReputation(ctx context.Context, id string, delta int) error {
	const query = `UPDATE users SET reputation_score = reputation_score + $2 WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id, delta); err != nil {
		return fmt.Errorf("profile: update reputation %s: %w", id, err)
	}
	return nil
}

// IncrementReportCount bumps the monotonic report counter and returns the
// new value.
func (s *PostgresStore) IncrementReportCount(ctx context.Context, id string) (int, error) {
	const query = `UPDATE users SET report_count = report_count + 1 WHERE id = $1 RETURNING report_count`
	var count int
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("profile: increment reports %s: %w", id, err)
	}
	return count, nil
}

// SetBanned hard-excludes the user from all future matching.
func (s *PostgresStore) SetBanned(ctx context.Context, id string) error {
	const query = `UPDATE users SET banned = TRUE WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("profile: set banned %s: %w", id, err)
	}
	return nil
}

// SetOnline records the coarse reachability signal.
func (s *PostgresStore) SetOnline(ctx context.Context, id string, online bool) error {
	const query = `UPDATE users SET online = $2 WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id, online); err != nil {
		return fmt.Errorf("profile: set online %s: %w", id, err)
	}
	return nil
}

// SetLastPartner records the most recent session counterpart for reconnect.
func (s *PostgresStore) SetLastPartner(ctx context.Context, id, partnerID string) error {
	const query = `UPDATE users SET last_partner_id = $2 WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id, partnerID); err != nil {
		return fmt.Errorf("profile: set last partner %s: %w", id, err)
	}
	return nil
}

// AppendBlocked adds blockedID to the user's block list if not already present.
func (s *PostgresStore) AppendBlocked(ctx context.Context, id, blockedID string) error {
	const query = `UPDATE users SET blocked = array_append(blocked, $2)
		WHERE id = $1 AND NOT ($2 = ANY(blocked))`
	if _, err := s.db.ExecContext(ctx, query, id, blockedID); err != nil {
		return fmt.Errorf("profile: append blocked %s: %w", id, err)
	}
	return nil
}

// MarkSafetyNotified records that the one-time safety notice was delivered.
func (s *PostgresStore) MarkSafetyNotified(ctx context.Context, id string) error {
	const query = `UPDATE users SET safety_notified = TRUE WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("profile: mark safety notified %s: %w", id, err)
	}
	return nil
}

// IncrementMessageCount bumps the relayed-message counter.
func (s *PostgresStore) IncrementMessageCount(ctx context.Context, id string) error {
	const query = `UPDATE users SET message_count = message_count + 1 WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("profile: increment messages %s: %w", id, err)
	}
	return nil
}

// DecayReputation moves every non-zero score one step toward zero in a single
// statement. Positive scores lose one point, negative scores gain one, so
// decay alone can never take a score below zero.
func (s *PostgresStore) DecayReputation(ctx context.Context) (int64, error) {
	const query = `UPDATE users
		SET reputation_score = reputation_score - SIGN(reputation_score)::int
		WHERE reputation_score <> 0`
	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("profile: decay reputation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("profile: decay reputation: %w", err)
	}
	return n, nil
}
