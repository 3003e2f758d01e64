package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Backend is the raw storage behind a Store. It holds transcripts keyed by session id and knows
// nothing about prompts, roles or trimming
type Backend interface {
	Create(ctx context.Context, id string, transcript Transcript) error
	Exists(ctx context.Context, id string) (bool, error)
	Messages(ctx context.Context, id string) (Transcript, error)
	Append(ctx context.Context, id string, msg Message) error
	Trim(ctx context.Context, id string, maxMessages int) error
	Delete(ctx context.Context, id string) (bool, error)
	IDs(ctx context.Context) ([]string, error)
}

/** In-memory backend **/

// InMemoryBackend keeps transcripts in process memory. Nothing survives a restart
type InMemoryBackend struct {
	transcripts map[string]Transcript
	order       []string // session ids in creation order
	mu          sync.RWMutex
}

// NewInMemoryBackend creates an empty in-memory backend
func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{
		transcripts: make(map[string]Transcript),
		mu:          sync.RWMutex{},
	}
}

// Create registers a new transcript under id
func (b *InMemoryBackend) Create(ctx context.Context, id string, transcript Transcript) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.transcripts[id]; exists {
		return fmt.Errorf("session %s already exists", id)
	}

	b.transcripts[id] = transcript.Clone()
	b.order = append(b.order, id)

	return nil
}

// Exists reports whether id is registered
func (b *InMemoryBackend) Exists(ctx context.Context, id string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, exists := b.transcripts[id]
	return exists, nil
}

// Messages returns a copy of the transcript for id
func (b *InMemoryBackend) Messages(ctx context.Context, id string) (Transcript, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	transcript, exists := b.transcripts[id]
	if !exists {
		return nil, ErrSessionNotFound
	}

	// Return a copy to avoid race conditions
	return transcript.Clone(), nil
}

// Append adds msg to the end of the transcript for id
func (b *InMemoryBackend) Append(ctx context.Context, id string, msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	transcript, exists := b.transcripts[id]
	if !exists {
		return ErrSessionNotFound
	}

	b.transcripts[id] = append(transcript, msg)
	return nil
}

// Trim applies the sliding window to the transcript for id while holding the write lock
func (b *InMemoryBackend) Trim(ctx context.Context, id string, maxMessages int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	transcript, exists := b.transcripts[id]
	if !exists {
		return ErrSessionNotFound
	}

	if trimmed, changed := TrimTranscript(transcript, maxMessages); changed {
		b.transcripts[id] = trimmed
	}
	return nil
}

// Delete removes id and reports whether it was registered
func (b *InMemoryBackend) Delete(ctx context.Context, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.transcripts[id]; !exists {
		return false, nil
	}

	delete(b.transcripts, id)
	if i := slices.Index(b.order, id); i >= 0 {
		b.order = slices.Delete(b.order, i, i+1)
	}

	return true, nil
}

// IDs returns a snapshot of all registered ids in creation order
func (b *InMemoryBackend) IDs(ctx context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, len(b.order))
	copy(ids, b.order)

	return ids, nil
}

/** GORM backend **/

// SessionRecord is the persisted row for a session
type SessionRecord struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;index"`
	UpdatedAt time.Time `gorm:"column:updated_at"`

	Messages []MessageRecord `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

// TableName sets the table name for GORM
func (SessionRecord) TableName() string {
	return "chat_sessions"
}

// MessageRecord is the persisted row for one transcript entry
type MessageRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `gorm:"column:created_at"`

	SessionID string `gorm:"type:char(36);not null;index"`
	Position  int    `gorm:"not null"`
	Role      string `gorm:"size:20;not null"`
	Content   string `gorm:"type:text"`
}

// TableName sets the table name for GORM
func (MessageRecord) TableName() string {
	return "chat_messages"
}

// GormBackend stores transcripts in a SQL database through GORM
type GormBackend struct {
	db *gorm.DB
}

// NewMySqlBackend opens a MySQL connection and migrates the session tables
func NewMySqlBackend(databaseURL string) (*GormBackend, error) {
	return NewGormBackend(mysql.Open(databaseURL))
}

// NewGormBackend opens a connection with the given dialector and migrates the session tables
func NewGormBackend(dialector gorm.Dialector) (*GormBackend, error) {
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Auto-migrate tables
	if err := db.AutoMigrate(&SessionRecord{}, &MessageRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate tables: %w", err)
	}

	return &GormBackend{db: db}, nil
}

// Create inserts the session row and its initial messages in one transaction
func (b *GormBackend) Create(ctx context.Context, id string, transcript Transcript) error {
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&SessionRecord{ID: id}).Error; err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}

		return insertMessages(tx, id, 0, transcript)
	})
}

// Exists reports whether a session row exists for id
func (b *GormBackend) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := b.db.WithContext(ctx).Model(&SessionRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to query session: %w", err)
	}
	return count > 0, nil
}

// Messages loads the transcript for id ordered by position
func (b *GormBackend) Messages(ctx context.Context, id string) (Transcript, error) {
	db := b.db.WithContext(ctx)
	if err := findSession(db, id); err != nil {
		return nil, err
	}

	return loadMessages(db, id)
}

// Append inserts msg after the current last position
func (b *GormBackend) Append(ctx context.Context, id string, msg Message) error {
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockSession(tx, id); err != nil {
			return err
		}

		// Positions are always dense from 0, so the count is the next position
		var count int64
		if err := tx.Model(&MessageRecord{}).Where("session_id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count messages: %w", err)
		}

		if err := insertMessages(tx, id, int(count), Transcript{msg}); err != nil {
			return err
		}

		return touchSession(tx, id)
	})
}

// Trim reads and rewrites the transcript for id inside one transaction holding the session row lock
func (b *GormBackend) Trim(ctx context.Context, id string, maxMessages int) error {
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockSession(tx, id); err != nil {
			return err
		}

		transcript, err := loadMessages(tx, id)
		if err != nil {
			return err
		}

		trimmed, changed := TrimTranscript(transcript, maxMessages)
		if !changed {
			return nil
		}

		if err := tx.Where("session_id = ?", id).Delete(&MessageRecord{}).Error; err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}

		if err := insertMessages(tx, id, 0, trimmed); err != nil {
			return err
		}

		return touchSession(tx, id)
	})
}

// Delete removes the session and its messages and reports whether it existed
func (b *GormBackend) Delete(ctx context.Context, id string) (bool, error) {
	existed := false

	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Delete messages associated with the session
		if err := tx.Where("session_id = ?", id).Delete(&MessageRecord{}).Error; err != nil {
			return fmt.Errorf("failed to delete session messages: %w", err)
		}

		// Delete the session itself
		result := tx.Where("id = ?", id).Delete(&SessionRecord{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete session: %w", result.Error)
		}

		existed = result.RowsAffected > 0
		return nil
	})

	return existed, err
}

// IDs returns all session ids ordered by creation time
func (b *GormBackend) IDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	if err := b.db.WithContext(ctx).Model(&SessionRecord{}).Order("created_at ASC").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to query session ids: %w", err)
	}
	return ids, nil
}

// Close closes the database connection
func (b *GormBackend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from gorm.DB: %w", err)
	}
	return sqlDB.Close()
}

// findSession returns ErrSessionNotFound when no row exists for id
func findSession(db *gorm.DB, id string) error {
	var record SessionRecord
	if err := db.Select("id").First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to get session: %w", err)
	}
	return nil
}

// lockSession is findSession taking a row lock, so appends and trims on one session serialise
func lockSession(tx *gorm.DB, id string) error {
	return findSession(tx.Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

// loadMessages returns the transcript rows for id ordered by position
func loadMessages(db *gorm.DB, id string) (Transcript, error) {
	var records []MessageRecord
	if err := db.Where("session_id = ?", id).Order("position ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	transcript := make(Transcript, 0, len(records))
	for _, record := range records {
		transcript = append(transcript, Message{Role: Role(record.Role), Content: record.Content})
	}

	return transcript, nil
}

// touchSession bumps updated_at on the session row
func touchSession(db *gorm.DB, id string) error {
	if err := db.Model(&SessionRecord{}).Where("id = ?", id).Update("updated_at", time.Now().UTC()).Error; err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// insertMessages writes transcript rows starting at position start
func insertMessages(db *gorm.DB, id string, start int, transcript Transcript) error {
	if len(transcript) == 0 {
		return nil
	}

	records := make([]MessageRecord, 0, len(transcript))
	for i, msg := range transcript {
		records = append(records, MessageRecord{
			SessionID: id,
			Position:  start + i,
			Role:      string(msg.Role),
			Content:   msg.Content,
		})
	}

	if err := db.Create(&records).Error; err != nil {
		return fmt.Errorf("failed to save messages: %w", err)
	}
	return nil
}
