package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/inkwell-notes/inkwell/internal/auth"
	"github.com/inkwell-notes/inkwell/internal/events"
	"github.com/inkwell-notes/inkwell/internal/identifier"
	"github.com/inkwell-notes/inkwell/internal/notes"
	"github.com/inkwell-notes/inkwell/internal/users"
	"gorm.io/gorm"
)

const testSigningSecret = "router-test-secret"

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&users.User{}, &users.SessionMarker{}, &notes.Note{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	idProvider := identifier.NewUUIDProvider()
	dispatcher := events.NewDispatcher()

	userService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
	})
	if err != nil {
		t.Fatalf("failed to build user service: %v", err)
	}

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		TokenTTL:      time.Hour,
	})

	noteStores := func(ownerID string) (*notes.Store, error) {
		return notes.NewStore(notes.StoreConfig{
			Database:   db,
			IDProvider: idProvider,
			Events:     dispatcher,
			OwnerID:    ownerID,
		})
	}

	handler, err := NewHTTPHandler(Dependencies{
		UserService: userService,
		Tokens:      tokenManager,
		NoteStores:  noteStores,
		Events:      dispatcher,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return handler
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func registerUser(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()
	recorder := doJSON(t, handler, http.MethodPost, "/auth/register", "", map[string]string{
		"username": username,
		"password": password,
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("registration returned %d: %s", recorder.Code, recorder.Body.String())
	}
	var payload struct {
		AccessToken string `json:"access_token"`
	}
	decodeBody(t, recorder, &payload)
	if payload.AccessToken == "" {
		t.Fatalf("expected an access token")
	}
	return payload.AccessToken
}
