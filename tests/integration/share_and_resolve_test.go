package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
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
	"github.com/openmatlab/rollflow/internal/server"
	"github.com/openmatlab/rollflow/internal/sharing"
	"github.com/openmatlab/rollflow/internal/techniques"
	"github.com/openmatlab/rollflow/internal/training"
	"github.com/openmatlab/rollflow/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	signingSecret     = "integration-secret"
	providerToken     = "provider-token-1"
	providerSubject   = "subject-1"
	providerIssuer    = "https://issuer.example.com"
	jsonContentType   = "application/json"
	sharedFlowTitle   = "Closed Guard Chain"
	sharedFlowPayload = `{"version":1,"nodes":[{"id":"n1","kind":"technique","label":"Closed Guard"}],"edges":[]}`
)

type staticVerifier struct{}

func (staticVerifier) Verify(_ context.Context, token string) (auth.ProviderClaims, error) {
	if token != providerToken {
		return auth.ProviderClaims{}, errors.New("unknown token")
	}
	return auth.ProviderClaims{
		Subject:     providerSubject,
		Issuer:      providerIssuer,
		Email:       "roller@example.com",
		DisplayName: "Roller",
	}, nil
}

func TestShareAndResolveFlow(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:integration?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&users.Profile{}, &techniques.Technique{}, &flows.Flow{}, &training.TrainingLog{},
		&groups.Group{}, &groups.GroupMember{},
		&sharing.SharedContent{}, &sharing.GroupSharedContent{},
	); err != nil {
		testContext.Fatalf("failed to migrate: %v", err)
	}

	cacheDB, err := gorm.Open(sqlite.Open("file:integration_cache?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open cache sqlite: %v", err)
	}
	if err := cacheDB.AutoMigrate(&cache.Entry{}, &cache.PendingWrite{}); err != nil {
		testContext.Fatalf("failed to migrate cache: %v", err)
	}

	usersService, err := users.NewService(users.ServiceConfig{Database: db, Clock: time.Now})
	if err != nil {
		testContext.Fatalf("failed to build users service: %v", err)
	}
	flowsService, err := flows.NewService(flows.ServiceConfig{Database: db, Logger: zap.NewNop()})
	if err != nil {
		testContext.Fatalf("failed to build flows service: %v", err)
	}
	techniquesService, err := techniques.NewService(techniques.ServiceConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to build techniques service: %v", err)
	}
	trainingService, err := training.NewService(training.ServiceConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to build training service: %v", err)
	}
	groupsService, err := groups.NewService(groups.ServiceConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to build groups service: %v", err)
	}
	sharingService, err := sharing.NewService(sharing.ServiceConfig{
		Database: db,
		Fallback: cache.NewStore(cacheDB),
	})
	if err != nil {
		testContext.Fatalf("failed to build sharing service: %v", err)
	}

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(signingSecret),
		Issuer:        "rollflow-auth",
		Audience:      "rollflow-api",
	})

	handler, err := server.NewHTTPHandler(server.Dependencies{
		ProviderVerifier:  staticVerifier{},
		TokenManager:      tokenManager,
		UsersService:      usersService,
		TechniquesService: techniquesService,
		FlowsService:      flowsService,
		TrainingService:   trainingService,
		GroupsService:     groupsService,
		SharingService:    sharingService,
		Logger:            zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	apiServer := httptest.NewServer(handler)
	defer apiServer.Close()

	// Exchange the provider token for a backend token.
	authBody := bytes.NewBufferString(`{"id_token":"` + providerToken + `"}`)
	authResponse, err := http.Post(apiServer.URL+"/auth/token", jsonContentType, authBody)
	if err != nil {
		testContext.Fatalf("auth request failed: %v", err)
	}
	defer authResponse.Body.Close()
	if authResponse.StatusCode != http.StatusOK {
		testContext.Fatalf("unexpected auth status %d", authResponse.StatusCode)
	}
	var authPayload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(authResponse.Body).Decode(&authPayload); err != nil {
		testContext.Fatalf("failed to decode auth response: %v", err)
	}

	client := apiServer.Client()
	authedRequest := func(method, path string, body []byte) *http.Response {
		request, err := http.NewRequest(method, apiServer.URL+path, bytes.NewReader(body))
		if err != nil {
			testContext.Fatalf("failed to build request: %v", err)
		}
		request.Header.Set("Content-Type", jsonContentType)
		request.Header.Set("Authorization", "Bearer "+authPayload.AccessToken)
		response, err := client.Do(request)
		if err != nil {
			testContext.Fatalf("request failed: %v", err)
		}
		return response
	}

	// Author a flow.
	flowBody, _ := json.Marshal(map[string]any{
		"name":      sharedFlowTitle,
		"flow_data": json.RawMessage(sharedFlowPayload),
	})
	flowResponse := authedRequest(http.MethodPost, "/flows", flowBody)
	defer flowResponse.Body.Close()
	if flowResponse.StatusCode != http.StatusCreated {
		testContext.Fatalf("unexpected flow status %d", flowResponse.StatusCode)
	}
	var flowPayload struct {
		FlowData json.RawMessage `json:"flow_data"`
	}
	if err := json.NewDecoder(flowResponse.Body).Decode(&flowPayload); err != nil {
		testContext.Fatalf("failed to decode flow response: %v", err)
	}

	// Share the flow publicly.
	shareBody, _ := json.Marshal(map[string]any{
		"content_type": "flow",
		"content":      json.RawMessage(flowPayload.FlowData),
		"title":        sharedFlowTitle,
		"visibility":   "public",
	})
	shareResponse := authedRequest(http.MethodPost, "/share", shareBody)
	defer shareResponse.Body.Close()
	if shareResponse.StatusCode != http.StatusCreated {
		testContext.Fatalf("unexpected share status %d", shareResponse.StatusCode)
	}
	var sharePayload struct {
		ShareCode string `json:"share_code"`
		Fallback  bool   `json:"fallback"`
	}
	if err := json.NewDecoder(shareResponse.Body).Decode(&sharePayload); err != nil {
		testContext.Fatalf("failed to decode share response: %v", err)
	}
	if len(sharePayload.ShareCode) != 6 || sharePayload.Fallback {
		testContext.Fatalf("unexpected share payload: %+v", sharePayload)
	}

	// Resolve without authentication.
	resolveResponse, err := http.Get(apiServer.URL + "/share/" + sharePayload.ShareCode)
	if err != nil {
		testContext.Fatalf("resolve request failed: %v", err)
	}
	defer resolveResponse.Body.Close()
	if resolveResponse.StatusCode != http.StatusOK {
		testContext.Fatalf("unexpected resolve status %d", resolveResponse.StatusCode)
	}
	var resolvedPayload struct {
		ContentType string          `json:"content_type"`
		Title       string          `json:"title"`
		Content     json.RawMessage `json:"content"`
	}
	if err := json.NewDecoder(resolveResponse.Body).Decode(&resolvedPayload); err != nil {
		testContext.Fatalf("failed to decode resolve response: %v", err)
	}
	if resolvedPayload.ContentType != "flow" || resolvedPayload.Title != sharedFlowTitle {
		testContext.Fatalf("unexpected resolved payload: %+v", resolvedPayload)
	}
	var resolvedGraph struct {
		Nodes []struct {
			ID string `json:"id"`
		} `json:"nodes"`
	}
	if err := json.Unmarshal(resolvedPayload.Content, &resolvedGraph); err != nil {
		testContext.Fatalf("failed to decode resolved graph: %v", err)
	}
	if len(resolvedGraph.Nodes) != 1 || resolvedGraph.Nodes[0].ID != "n1" {
		testContext.Fatalf("shared graph should survive the round trip: %+v", resolvedGraph)
	}
}
