package users

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/inkwell-notes/inkwell/internal/fault"
	"github.com/inkwell-notes/inkwell/internal/identifier"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrUsernameTaken indicates the requested username already exists.
	ErrUsernameTaken = errors.New("users: username already exists")
	// ErrInvalidCredentials indicates the username/password pair did not
	// match a stored record. Unknown user and wrong password are
	// deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("users: invalid username or password")
	// ErrBlankCredentials indicates a blank username or password.
	ErrBlankCredentials = errors.New("users: username and password are required")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew = "users.service.new"
	opRegister   = "users.register"
	opLogin      = "users.login"
	opLogout     = "users.logout"
	opRestore    = "users.restore_session"
	opFind       = "users.find"
)

// SessionState is the snapshot published to session observers.
type SessionState struct {
	Authenticated bool
	User          User
}

// Listener receives session-state snapshots synchronously on every
// committed transition.
type Listener func(SessionState)

// ServiceConfig describes the dependencies of the user service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider identifier.Provider
	Logger     *zap.Logger
}

// Service owns user identity records and the authentication session. It
// is the sole gate to note access: callers obtain the bound user id from
// the session and scope their note store to it.
type Service struct {
	db    *gorm.DB
	clock func() time.Time
	ids   identifier.Provider
	log   *zap.Logger

	mu           sync.Mutex
	current      *User
	listeners    map[int64]Listener
	nextListener int64
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fault.New(opServiceNew, "missing_database", fault.KindStorage, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, fault.New(opServiceNew, "missing_id_provider", fault.KindStorage, errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:        cfg.Database,
		clock:     clock,
		ids:       cfg.IDProvider,
		log:       logger,
		listeners: map[int64]Listener{},
	}, nil
}

// Register creates a new user and authenticates the session as that
// user. The username must not already exist; matching is case-sensitive
// and exact. Failure leaves the current session state unchanged.
func (s *Service) Register(ctx context.Context, username, password string) (User, error) {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return User{}, fault.New(opRegister, "blank_credentials", fault.KindValidation, ErrBlankCredentials)
	}

	var existing User
	err := s.db.WithContext(ctx).Where("username = ?", username).Take(&existing).Error
	if err == nil {
		return User{}, fault.New(opRegister, "username_taken", fault.KindValidation, ErrUsernameTaken)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(opRegister, "lookup_failed", err, zap.String("username", username))
		return User{}, fault.New(opRegister, "lookup_failed", fault.KindStorage, err)
	}

	hash, salt, err := hashPassword(password)
	if err != nil {
		s.logError(opRegister, "hash_failed", err)
		return User{}, fault.New(opRegister, "hash_failed", fault.KindStorage, err)
	}

	id, err := s.ids.NewID()
	if err != nil {
		s.logError(opRegister, "id_generation_failed", err)
		return User{}, fault.New(opRegister, "id_generation_failed", fault.KindStorage, err)
	}

	record := User{
		ID:           id,
		Username:     username,
		PasswordHash: hash,
		PasswordSalt: salt,
		CreatedAt:    s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logError(opRegister, "insert_failed", err, zap.String("username", username))
		return User{}, fault.New(opRegister, "insert_failed", fault.KindStorage, err)
	}

	s.persistMarker(ctx, opRegister, record.ID)
	s.commitSession(&record)
	s.log.Info("user registered", zap.String("user_id", record.ID))
	return record, nil
}

// Login authenticates the session against a stored user. The record is
// fetched by username alone and the password is verified in constant
// time against the stored argon2id digest. Failure leaves the current
// session state unchanged.
func (s *Service) Login(ctx context.Context, username, password string) (User, error) {
	var record User
	err := s.db.WithContext(ctx).Where("username = ?", username).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, fault.New(opLogin, "credential_mismatch", fault.KindValidation, ErrInvalidCredentials)
	}
	if err != nil {
		s.logError(opLogin, "lookup_failed", err, zap.String("username", username))
		return User{}, fault.New(opLogin, "lookup_failed", fault.KindStorage, err)
	}

	if !verifyPassword(password, record.PasswordSalt, record.PasswordHash) {
		return User{}, fault.New(opLogin, "credential_mismatch", fault.KindValidation, ErrInvalidCredentials)
	}

	s.persistMarker(ctx, opLogin, record.ID)
	s.commitSession(&record)
	s.log.Info("user logged in", zap.String("user_id", record.ID))
	return record, nil
}

// Logout unconditionally transitions to Unauthenticated. It is
// idempotent, never fails, and leaves the User record untouched; a
// failure to clear the persisted marker is logged and swallowed so
// logout cannot be blocked by storage.
func (s *Service) Logout(ctx context.Context) {
	if err := s.db.WithContext(ctx).
		Where("slot = ?", activeSessionSlot).
		Delete(&SessionMarker{}).Error; err != nil {
		s.logError(opLogout, "marker_delete_failed", err)
	}
	s.commitSession(nil)
	s.log.Info("session cleared")
}

// RestoreSession re-authenticates from the persisted last-active-user
// marker. It is intended to run once at process start. When no marker
// exists, or the marker no longer resolves to a user, the session stays
// Unauthenticated and no error is returned; a stale marker is removed.
func (s *Service) RestoreSession(ctx context.Context) (User, bool, error) {
	var marker SessionMarker
	err := s.db.WithContext(ctx).Where("slot = ?", activeSessionSlot).Take(&marker).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, false, nil
	}
	if err != nil {
		s.logError(opRestore, "marker_lookup_failed", err)
		return User{}, false, fault.New(opRestore, "marker_lookup_failed", fault.KindStorage, err)
	}

	var record User
	err = s.db.WithContext(ctx).Where("id = ?", marker.UserID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := s.db.WithContext(ctx).
			Where("slot = ?", activeSessionSlot).
			Delete(&SessionMarker{}).Error; err != nil {
			s.logError(opRestore, "stale_marker_delete_failed", err)
		}
		return User{}, false, nil
	}
	if err != nil {
		s.logError(opRestore, "user_lookup_failed", err, zap.String("user_id", marker.UserID))
		return User{}, false, fault.New(opRestore, "user_lookup_failed", fault.KindStorage, err)
	}

	s.commitSession(&record)
	s.log.Info("session restored", zap.String("user_id", record.ID))
	return record, true, nil
}

// Current returns the authenticated user, if any.
func (s *Service) Current() (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return User{}, false
	}
	return *s.current, true
}

// Subscribe registers a session observer and returns its unsubscribe
// func. Observers run synchronously after each committed transition.
func (s *Service) Subscribe(listener Listener) func() {
	s.mu.Lock()
	s.nextListener++
	id := s.nextListener
	s.listeners[id] = listener
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// FindByID resolves a stored user by identifier.
func (s *Service) FindByID(ctx context.Context, id string) (User, bool, error) {
	var record User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, false, nil
	}
	if err != nil {
		s.logError(opFind, "lookup_failed", err, zap.String("user_id", id))
		return User{}, false, fault.New(opFind, "lookup_failed", fault.KindStorage, err)
	}
	return record, true, nil
}

// persistMarker records the last-active user. Best effort: a marker
// write failure must not undo an otherwise successful authentication.
func (s *Service) persistMarker(ctx context.Context, operation, userID string) {
	marker := SessionMarker{
		Slot:      activeSessionSlot,
		UserID:    userID,
		UpdatedAt: s.clock().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slot"}},
		UpdateAll: true,
	}).Create(&marker).Error
	if err != nil {
		s.logError(operation, "marker_write_failed", err, zap.String("user_id", userID))
	}
}

func (s *Service) commitSession(user *User) {
	s.mu.Lock()
	s.current = user
	state := SessionState{}
	if user != nil {
		state = SessionState{Authenticated: true, User: *user}
	}
	observers := make([]Listener, 0, len(s.listeners))
	for _, listener := range s.listeners {
		observers = append(observers, listener)
	}
	s.mu.Unlock()

	for _, listener := range observers {
		listener(state)
	}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.log.Error("user service error", attrs...)
}
