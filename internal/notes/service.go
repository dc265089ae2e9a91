package notes

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/inkwell-notes/inkwell/internal/events"
	"github.com/inkwell-notes/inkwell/internal/fault"
	"github.com/inkwell-notes/inkwell/internal/identifier"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrEmptyTitle indicates a create or update with a blank title.
	ErrEmptyTitle = errors.New("notes: title is required")
	// ErrNoteNotFound indicates the note does not exist under the bound
	// owner. A delete of an already-deleted note reports this rather
	// than succeeding silently, so stale callers learn their view is
	// out of date.
	ErrNoteNotFound = errors.New("notes: note not found")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingOwner      = errors.New("owner identifier is required")
	noOpLogger           = zap.NewNop()
)

const (
	opStoreNew = "notes.store.new"
	opCreate   = "notes.create"
	opUpdate   = "notes.update"
	opDelete   = "notes.delete"
	opList     = "notes.list"
)

// StoreConfig describes the dependencies of an owner-bound note store.
type StoreConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider identifier.Provider
	Logger     *zap.Logger
	Events     *events.Dispatcher
	OwnerID    string
}

// Store provides CRUD over the notes of a single owner. The owner is
// fixed at construction and every query is filtered by it, so records
// of other owners are unreachable through a Store by construction.
type Store struct {
	db     *gorm.DB
	clock  func() time.Time
	ids    identifier.Provider
	log    *zap.Logger
	events *events.Dispatcher
	owner  string
}

// NewStore constructs a note store bound to the given owner.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, fault.New(opStoreNew, "missing_database", fault.KindStorage, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, fault.New(opStoreNew, "missing_id_provider", fault.KindStorage, errMissingIDProvider)
	}
	if strings.TrimSpace(cfg.OwnerID) == "" {
		return nil, fault.New(opStoreNew, "missing_owner", fault.KindValidation, errMissingOwner)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{
		db:     cfg.Database,
		clock:  clock,
		ids:    cfg.IDProvider,
		log:    logger,
		events: cfg.Events,
		owner:  cfg.OwnerID,
	}, nil
}

// OwnerID returns the owner the store is bound to.
func (s *Store) OwnerID() string {
	return s.owner
}

// Create persists a new note owned by the bound user. The title is
// required; content may be empty. CreatedAt and UpdatedAt are set to
// the same instant.
func (s *Store) Create(ctx context.Context, title, content string) (Note, error) {
	if strings.TrimSpace(title) == "" {
		return Note{}, fault.New(opCreate, "empty_title", fault.KindValidation, ErrEmptyTitle)
	}

	id, err := s.ids.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Note{}, fault.New(opCreate, "id_generation_failed", fault.KindStorage, err)
	}

	now := s.clock().UTC()
	record := Note{
		ID:        id,
		OwnerID:   s.owner,
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("note_id", id))
		return Note{}, fault.New(opCreate, "insert_failed", fault.KindStorage, err)
	}

	s.publishChange(record.ID)
	return record, nil
}

// Update fetches the note scoped to the bound owner, replaces title and
// content, refreshes UpdatedAt, and saves the record explicitly.
func (s *Store) Update(ctx context.Context, noteID, title, content string) (Note, error) {
	if strings.TrimSpace(title) == "" {
		return Note{}, fault.New(opUpdate, "empty_title", fault.KindValidation, ErrEmptyTitle)
	}

	var record Note
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND id = ?", s.owner, noteID).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, fault.New(opUpdate, "not_found", fault.KindValidation, ErrNoteNotFound)
	}
	if err != nil {
		s.logError(opUpdate, "lookup_failed", err, zap.String("note_id", noteID))
		return Note{}, fault.New(opUpdate, "lookup_failed", fault.KindStorage, err)
	}

	record.Title = title
	record.Content = content
	record.UpdatedAt = s.clock().UTC()
	if err := s.db.WithContext(ctx).Save(&record).Error; err != nil {
		s.logError(opUpdate, "save_failed", err, zap.String("note_id", noteID))
		return Note{}, fault.New(opUpdate, "save_failed", fault.KindStorage, err)
	}

	s.publishChange(record.ID)
	return record, nil
}

// Delete removes the note scoped to the bound owner.
func (s *Store) Delete(ctx context.Context, noteID string) error {
	result := s.db.WithContext(ctx).
		Where("owner_id = ? AND id = ?", s.owner, noteID).
		Delete(&Note{})
	if result.Error != nil {
		s.logError(opDelete, "delete_failed", result.Error, zap.String("note_id", noteID))
		return fault.New(opDelete, "delete_failed", fault.KindStorage, result.Error)
	}
	if result.RowsAffected == 0 {
		return fault.New(opDelete, "not_found", fault.KindValidation, ErrNoteNotFound)
	}

	s.publishChange(noteID)
	return nil
}

// List returns the bound owner's notes ordered by UpdatedAt descending.
// The result is a point-in-time snapshot; callers re-invoke List to
// observe later mutations.
func (s *Store) List(ctx context.Context) ([]Note, error) {
	var records []Note
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", s.owner).
		Order("updated_at DESC").
		Find(&records).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, fault.New(opList, "query_failed", fault.KindStorage, err)
	}
	return records, nil
}

func (s *Store) publishChange(noteID string) {
	if s.events == nil {
		return
	}
	s.events.Publish(events.Message{
		UserID:    s.owner,
		EventType: events.EventNoteChanged,
		NoteIDs:   []string{noteID},
		Timestamp: s.clock().UTC(),
	})
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.String("owner_id", s.owner),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.log.Error("note store error", attrs...)
}
