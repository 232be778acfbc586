package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/openmatlab/rollflow/internal/auth"
	"github.com/openmatlab/rollflow/internal/cache"
	"github.com/openmatlab/rollflow/internal/flows"
	"github.com/openmatlab/rollflow/internal/groups"
	"github.com/openmatlab/rollflow/internal/media"
	"github.com/openmatlab/rollflow/internal/sharing"
	"github.com/openmatlab/rollflow/internal/techniques"
	"github.com/openmatlab/rollflow/internal/training"
	"github.com/openmatlab/rollflow/internal/users"
	"gorm.io/gorm"
)

type stubProviderVerifier struct {
	claims map[string]auth.ProviderClaims
}

func (s stubProviderVerifier) Verify(_ context.Context, token string) (auth.ProviderClaims, error) {
	claims, ok := s.claims[token]
	if !ok {
		return auth.ProviderClaims{}, errors.New("unknown token")
	}
	return claims, nil
}

type testEnv struct {
	handler http.Handler
	issuer  *auth.TokenIssuer
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := e.issuer.IssueBackendToken(context.Background(), userID)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
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
	e.handler.ServeHTTP(recorder, request)
	return recorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	primary, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := primary.AutoMigrate(
		&users.Profile{}, &techniques.Technique{}, &flows.Flow{}, &training.TrainingLog{},
		&groups.Group{}, &groups.GroupMember{},
		&sharing.SharedContent{}, &sharing.GroupSharedContent{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	cacheDB, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open cache sqlite: %v", err)
	}
	if err := cacheDB.AutoMigrate(&cache.Entry{}, &cache.PendingWrite{}); err != nil {
		t.Fatalf("failed to migrate cache: %v", err)
	}

	clock := func() time.Time { return time.Now() }

	usersService, err := users.NewService(users.ServiceConfig{Database: primary, Clock: clock})
	if err != nil {
		t.Fatalf("failed to build users service: %v", err)
	}
	techniquesService, err := techniques.NewService(techniques.ServiceConfig{Database: primary, Clock: clock})
	if err != nil {
		t.Fatalf("failed to build techniques service: %v", err)
	}
	flowsService, err := flows.NewService(flows.ServiceConfig{Database: primary, Clock: clock})
	if err != nil {
		t.Fatalf("failed to build flows service: %v", err)
	}
	trainingService, err := training.NewService(training.ServiceConfig{Database: primary, Clock: clock})
	if err != nil {
		t.Fatalf("failed to build training service: %v", err)
	}
	groupsService, err := groups.NewService(groups.ServiceConfig{Database: primary, Clock: clock})
	if err != nil {
		t.Fatalf("failed to build groups service: %v", err)
	}
	sharingService, err := sharing.NewService(sharing.ServiceConfig{
		Database: primary,
		Fallback: cache.NewStore(cacheDB),
		Clock:    clock,
	})
	if err != nil {
		t.Fatalf("failed to build sharing service: %v", err)
	}
	mediaStore, err := media.NewStore(media.StoreConfig{Directory: t.TempDir(), BaseURL: "/media"})
	if err != nil {
		t.Fatalf("failed to build media store: %v", err)
	}

	issuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("router-test-secret"),
		Issuer:        "rollflow-test",
		Audience:      "rollflow-clients",
	})

	verifier := stubProviderVerifier{claims: map[string]auth.ProviderClaims{
		"valid-provider-token": {
			Subject:     "provider-subject-1",
			Issuer:      "https://issuer.example.com",
			Email:       "roller@example.com",
			DisplayName: "Roller",
		},
	}}

	handler, err := NewHTTPHandler(Dependencies{
		ProviderVerifier:  verifier,
		TokenManager:      issuer,
		UsersService:      usersService,
		TechniquesService: techniquesService,
		FlowsService:      flowsService,
		TrainingService:   trainingService,
		GroupsService:     groupsService,
		SharingService:    sharingService,
		MediaStore:        mediaStore,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return &testEnv{handler: handler, issuer: issuer}
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func TestAuthTokenExchangeProvisionsProfile(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.do(t, http.MethodPost, "/auth/token", "", gin.H{"id_token": "valid-provider-token"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
	var response struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	decodeBody(t, recorder, &response)
	if response.AccessToken == "" || response.TokenType != "Bearer" {
		t.Fatalf("unexpected auth response: %+v", response)
	}

	profile := env.do(t, http.MethodGet, "/profile", response.AccessToken, nil)
	if profile.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", profile.Code, profile.Body.String())
	}
	var profileBody struct {
		Email    string `json:"email"`
		BeltRank string `json:"belt_rank"`
	}
	decodeBody(t, profile, &profileBody)
	if profileBody.Email != "roller@example.com" || profileBody.BeltRank != "white" {
		t.Fatalf("unexpected profile: %+v", profileBody)
	}
}

func TestAuthTokenRejectsUnknownProviderToken(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.do(t, http.MethodPost, "/auth/token", "", gin.H{"id_token": "forged"})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
}

func TestProtectedRoutesRequireBearerToken(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/techniques", "/flows", "/training-logs", "/groups", "/profile"} {
		recorder := env.do(t, http.MethodGet, path, "", nil)
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %s, got %d", path, recorder.Code)
		}
	}
}

func TestThemeEndpointIsOpen(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.do(t, http.MethodGet, "/themes/purple", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
	var palette struct {
		Belt    string `json:"belt"`
		Primary string `json:"primary"`
	}
	decodeBody(t, recorder, &palette)
	if palette.Belt != "purple" || palette.Primary == "" {
		t.Fatalf("unexpected palette: %+v", palette)
	}
}

func TestTechniqueLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "user-1")

	created := env.do(t, http.MethodPost, "/techniques", token, gin.H{
		"name": "Scissor Sweep",
		"type": "sweep",
		"tags": []string{"closed-guard"},
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", created.Code, created.Body.String())
	}
	var technique struct {
		ID      string `json:"id"`
		Version int64  `json:"version"`
	}
	decodeBody(t, created, &technique)

	stale := env.do(t, http.MethodPut, "/techniques/"+technique.ID, token, gin.H{
		"name":         "Scissor Sweep",
		"base_version": technique.Version + 7,
	})
	if stale.Code != http.StatusConflict {
		t.Fatalf("stale update should 409, got %d: %s", stale.Code, stale.Body.String())
	}

	mastery := env.do(t, http.MethodPut, "/techniques/"+technique.ID+"/mastery", token, gin.H{"mastery": "favorite"})
	if mastery.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", mastery.Code, mastery.Body.String())
	}

	badMastery := env.do(t, http.MethodPut, "/techniques/"+technique.ID+"/mastery", token, gin.H{"mastery": "grandmaster"})
	if badMastery.Code != http.StatusBadRequest {
		t.Fatalf("unknown tier should 400, got %d", badMastery.Code)
	}

	otherUser := env.do(t, http.MethodGet, "/techniques/"+technique.ID, env.token(t, "user-2"), nil)
	if otherUser.Code != http.StatusNotFound {
		t.Fatalf("cross-user read should 404, got %d", otherUser.Code)
	}

	deleted := env.do(t, http.MethodDelete, "/techniques/"+technique.ID, token, nil)
	if deleted.Code != http.StatusNoContent {
		t.Fatalf("unexpected status %d", deleted.Code)
	}
}

func TestShareAndResolveOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "user-1")

	shared := env.do(t, http.MethodPost, "/share", token, gin.H{
		"content_type": "flow",
		"content":      gin.H{"version": 1, "nodes": []any{}, "edges": []any{}},
		"title":        "Closed Guard Chain",
		"visibility":   "public",
	})
	if shared.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", shared.Code, shared.Body.String())
	}
	var shareBody struct {
		ShareCode string `json:"share_code"`
	}
	decodeBody(t, shared, &shareBody)
	if len(shareBody.ShareCode) != 6 {
		t.Fatalf("unexpected code %q", shareBody.ShareCode)
	}

	resolved := env.do(t, http.MethodGet, "/share/"+shareBody.ShareCode, "", nil)
	if resolved.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resolved.Code, resolved.Body.String())
	}
	var resolvedBody struct {
		ContentType string `json:"content_type"`
		Title       string `json:"title"`
	}
	decodeBody(t, resolved, &resolvedBody)
	if resolvedBody.ContentType != "flow" || resolvedBody.Title != "Closed Guard Chain" {
		t.Fatalf("unexpected resolved body: %+v", resolvedBody)
	}

	missing := env.do(t, http.MethodGet, "/share/ZZZZZZ", "", nil)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("unknown code should 404, got %d", missing.Code)
	}

	public := env.do(t, http.MethodGet, "/share/public?type=flow", "", nil)
	if public.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", public.Code)
	}
	var feed struct {
		Shares []struct {
			Title string `json:"title"`
		} `json:"shares"`
	}
	decodeBody(t, public, &feed)
	if len(feed.Shares) != 1 || feed.Shares[0].Title != "Closed Guard Chain" {
		t.Fatalf("unexpected feed: %+v", feed)
	}
}

func TestGroupShareRequiresMembership(t *testing.T) {
	env := newTestEnv(t)
	owner := env.token(t, "user-1")
	outsider := env.token(t, "user-2")

	created := env.do(t, http.MethodPost, "/groups", owner, gin.H{"name": "Morning Crew"})
	if created.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", created.Code, created.Body.String())
	}
	var group struct {
		ID string `json:"id"`
	}
	decodeBody(t, created, &group)

	payload := gin.H{"content_type": "technique", "content": gin.H{}, "title": "Armbar Detail"}
	denied := env.do(t, http.MethodPost, fmt.Sprintf("/groups/%s/shared", group.ID), outsider, payload)
	if denied.Code != http.StatusForbidden {
		t.Fatalf("non-member share should 403, got %d: %s", denied.Code, denied.Body.String())
	}

	allowed := env.do(t, http.MethodPost, fmt.Sprintf("/groups/%s/shared", group.ID), owner, payload)
	if allowed.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", allowed.Code, allowed.Body.String())
	}
	var record struct {
		ID string `json:"id"`
	}
	decodeBody(t, allowed, &record)

	deniedDelete := env.do(t, http.MethodDelete, fmt.Sprintf("/groups/%s/shared/%s", group.ID, record.ID), outsider, nil)
	if deniedDelete.Code != http.StatusForbidden {
		t.Fatalf("non-member delete should 403, got %d", deniedDelete.Code)
	}
}

func TestTrainingLogValidationOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "user-1")

	bad := env.do(t, http.MethodPost, "/training-logs", token, gin.H{"date": "27-08-2026", "condition": 3})
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("malformed date should 400, got %d", bad.Code)
	}

	good := env.do(t, http.MethodPost, "/training-logs", token, gin.H{
		"date":       "2026-08-27",
		"start_time": "19:00",
		"end_time":   "20:30",
		"condition":  4,
	})
	if good.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", good.Code, good.Body.String())
	}
	var log struct {
		DurationMinutes int `json:"duration_minutes"`
	}
	decodeBody(t, good, &log)
	if log.DurationMinutes != 90 {
		t.Fatalf("expected 90 minute session, got %d", log.DurationMinutes)
	}
}
