package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/plaza-server/internal/store"
)

//go:embed schema.sql
var schema string

const defaultHistoryLimit = 50

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// ApplySchema creates the tables if they do not exist yet.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// New creates a new SQLite store and applies the embedded schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, ApplySchema)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema or seed rows.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; :memory: requires it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// translateErr maps driver errors onto store sentinels.
func translateErr(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return err
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ==== RoomStore implementation ====

// FindRoom retrieves a room by ID.
func (s *SQLiteStore) FindRoom(ctx context.Context, roomID string) (*store.Room, error) {
	query := `
		SELECT id, name, capacity, active, created_by, created_at
		FROM rooms
		WHERE id = ?
	`
	var room store.Room
	err := s.db.QueryRowContext(ctx, query, roomID).Scan(
		&room.ID,
		&room.Name,
		&room.Capacity,
		&room.Active,
		&room.CreatedBy,
		&room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %s: %w", roomID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	return &room, nil
}

// CreateRoom inserts a new room.
func (s *SQLiteStore) CreateRoom(ctx context.Context, room *store.Room) error {
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now()
	}
	room.CreatedAt = room.CreatedAt.UTC()

	query := `
		INSERT INTO rooms (id, name, capacity, active, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		room.ID, room.Name, room.Capacity, room.Active, room.CreatedBy, room.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert room: %w", translateErr(err))
	}
	return nil
}

// ==== MembershipStore implementation ====

// UpsertMembership inserts or updates the (room,user) row; joined_at is kept on update.
func (s *SQLiteStore) UpsertMembership(ctx context.Context, m *store.Membership) error {
	query := `
		INSERT INTO room_memberships (room_id, user_id, username, avatar, role, online, joined_at, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (room_id, user_id) DO UPDATE SET
			username  = excluded.username,
			avatar    = excluded.avatar,
			role      = excluded.role,
			online    = excluded.online,
			last_seen = excluded.last_seen
	`
	joined := m.JoinedAt
	if joined.IsZero() {
		joined = m.LastSeen
	}
	_, err := s.db.ExecContext(ctx, query,
		m.RoomID, m.UserID, m.Username, m.Avatar, string(m.Role), m.Online,
		joined.UTC(), m.LastSeen.UTC())
	if err != nil {
		return fmt.Errorf("upsert membership: %w", translateErr(err))
	}
	return nil
}

// TouchMembership marks an existing row online.
func (s *SQLiteStore) TouchMembership(ctx context.Context, roomID, userID, username, avatar string, seen time.Time) error {
	query := `
		UPDATE room_memberships
		SET username = ?, avatar = ?, online = 1, last_seen = ?
		WHERE room_id = ? AND user_id = ?
	`
	res, err := s.db.ExecContext(ctx, query, username, avatar, seen.UTC(), roomID, userID)
	if err != nil {
		return fmt.Errorf("touch membership: %w", err)
	}
	return expectAffected(res)
}

// SetMembershipOffline flips the online flag off.
func (s *SQLiteStore) SetMembershipOffline(ctx context.Context, roomID, userID string, seen time.Time) error {
	query := `
		UPDATE room_memberships
		SET online = 0, last_seen = ?
		WHERE room_id = ? AND user_id = ?
	`
	res, err := s.db.ExecContext(ctx, query, seen.UTC(), roomID, userID)
	if err != nil {
		return fmt.Errorf("set membership offline: %w", err)
	}
	return expectAffected(res)
}

// FindMemberships lists every membership of a room.
func (s *SQLiteStore) FindMemberships(ctx context.Context, roomID string) ([]*store.Membership, error) {
	query := `
		SELECT room_id, user_id, username, avatar, role, online, joined_at, last_seen
		FROM room_memberships
		WHERE room_id = ?
		ORDER BY joined_at ASC, user_id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("query memberships: %w", err)
	}
	defer rows.Close()

	var members []*store.Membership
	for rows.Next() {
		var (
			m    store.Membership
			role string
		)
		if err := rows.Scan(&m.RoomID, &m.UserID, &m.Username, &m.Avatar, &role, &m.Online, &m.JoinedAt, &m.LastSeen); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		m.Role = store.Role(role)
		members = append(members, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", err)
	}
	return members, nil
}

// SetMemberRole updates a member's role.
func (s *SQLiteStore) SetMemberRole(ctx context.Context, roomID, userID string, role store.Role) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE room_memberships SET role = ? WHERE room_id = ? AND user_id = ?`,
		string(role), roomID, userID)
	if err != nil {
		return fmt.Errorf("set member role: %w", err)
	}
	return expectAffected(res)
}

// DemoteAdminsExcept demotes every admin but keepUserID.
func (s *SQLiteStore) DemoteAdminsExcept(ctx context.Context, roomID, keepUserID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE room_memberships SET role = ? WHERE room_id = ? AND role = ? AND user_id <> ?`,
		string(store.RoleMember), roomID, string(store.RoleAdmin), keepUserID)
	if err != nil {
		return 0, fmt.Errorf("demote admins: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// DeleteMembership removes the (room,user) row.
func (s *SQLiteStore) DeleteMembership(ctx context.Context, roomID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM room_memberships WHERE room_id = ? AND user_id = ?`, roomID, userID)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	return expectAffected(res)
}

// ==== MessageStore implementation ====

// InsertChatMessage appends a delivery record.
func (s *SQLiteStore) InsertChatMessage(ctx context.Context, msg *store.ChatMessage) error {
	recipients := msg.Recipients
	if recipients == nil {
		recipients = []string{}
	}
	encoded, err := json.Marshal(recipients)
	if err != nil {
		return fmt.Errorf("encode recipients: %w", err)
	}

	var target sql.NullString
	if msg.TargetUserID != "" {
		target = sql.NullString{String: msg.TargetUserID, Valid: true}
	}

	query := `
		INSERT INTO chat_messages (id, room_id, sender_id, sender_name, type, content, target_user_id, recipients, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		msg.ID, msg.RoomID, msg.SenderID, msg.SenderName, string(msg.Type), msg.Content,
		target, string(encoded), msg.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("insert chat message: %w", translateErr(err))
	}
	return nil
}

// ListChatMessages returns up to limit latest messages, oldest first.
func (s *SQLiteStore) ListChatMessages(ctx context.Context, roomID string, limit int) ([]*store.ChatMessage, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	query := `
		SELECT id, room_id, sender_id, sender_name, type, content, COALESCE(target_user_id, ''), recipients, created_at
		FROM chat_messages
		WHERE room_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.ChatMessage, 0, limit)
	for rows.Next() {
		var (
			msg        store.ChatMessage
			chatType   string
			recipients string
		)
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.SenderName, &chatType,
			&msg.Content, &msg.TargetUserID, &recipients, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		msg.Type = store.ChatType(chatType)
		if err := json.Unmarshal([]byte(recipients), &msg.Recipients); err != nil {
			return nil, fmt.Errorf("decode recipients: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}

	slices.Reverse(messages)
	return messages, nil
}
