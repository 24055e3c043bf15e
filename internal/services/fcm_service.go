package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2/google"
)

// ErrInvalidToken reports that the provider permanently rejected the token.
// Callers are expected to prune the device row holding it. Any other error is
// transient and safe to retry on a later notification.
var ErrInvalidToken = errors.New("fcm token is not registered")

// PushSender is the boundary contract to the push provider.
type PushSender interface {
	SendData(ctx context.Context, token string, data map[string]string) error
}

// FCMService handles Firebase Cloud Messaging operations using direct HTTP API
type FCMService struct {
	projectID   string
	credentials []byte
	httpClient  *http.Client
	token       string
	tokenExpiry time.Time
	tokenMu     sync.Mutex
}

// NewFCMService creates a new FCMService with the given credentials file
func NewFCMService(credentialsPath string) (*FCMService, error) {
	if credentialsPath == "" {
		return nil, fmt.Errorf("firebase credentials path is required")
	}

	log.Printf("Initializing FCM with credentials from: %s", credentialsPath)

	if _, err := os.Stat(credentialsPath); err != nil {
		return nil, fmt.Errorf("credentials file not accessible: %w", err)
	}

	credData, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var creds struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(credData, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	log.Printf("Using Firebase project: %s", creds.ProjectID)

	svc := &FCMService{
		projectID:   creds.ProjectID,
		credentials: credData,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}

	// Test getting a token
	if _, err := svc.getAccessToken(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to get initial access token: %w", err)
	}
	log.Printf("Firebase Cloud Messaging initialized successfully (direct HTTP)")

	return svc, nil
}

// getAccessToken returns a valid OAuth2 access token, refreshing if needed
func (s *FCMService) getAccessToken(ctx context.Context) (string, error) {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()

	// Return cached token if still valid (with 5 min buffer)
	if s.token != "" && time.Now().Add(5*time.Minute).Before(s.tokenExpiry) {
		return s.token, nil
	}

	scopes := []string{"https://www.googleapis.com/auth/firebase.messaging"}

	creds, err := google.CredentialsFromJSON(ctx, s.credentials, scopes...)
	if err != nil {
		return "", fmt.Errorf("failed to create credentials: %w", err)
	}

	token, err := creds.TokenSource.Token()
	if err != nil {
		return "", fmt.Errorf("failed to get token: %w", err)
	}

	s.token = token.AccessToken
	s.tokenExpiry = token.Expiry

	return s.token, nil
}

// FCM API message structures
type fcmMessage struct {
	Message fcmMessageBody `json:"message"`
}

type fcmMessageBody struct {
	Token   string            `json:"token"`
	Data    map[string]string `json:"data,omitempty"`
	Android *fcmAndroid       `json:"android,omitempty"`
	APNS    *fcmAPNS          `json:"apns,omitempty"`
}

type fcmAndroid struct {
	Priority string `json:"priority,omitempty"`
}

type fcmAPNS struct {
	Headers map[string]string `json:"headers,omitempty"`
	Payload *fcmAPNSPayload   `json:"payload,omitempty"`
}

type fcmAPNSPayload struct {
	Aps *fcmAps `json:"aps,omitempty"`
}

type fcmAps struct {
	ContentAvailable int `json:"content-available,omitempty"`
}

// SendData sends a data-only push telling the remote device to re-sync. The
// payload carries no alarm content; the receiving device is expected to call
// the sync endpoint itself.
func (s *FCMService) SendData(ctx context.Context, fcmToken string, data map[string]string) error {
	accessToken, err := s.getAccessToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}

	message := fcmMessage{
		Message: fcmMessageBody{
			Token: fcmToken,
			Data:  data,
			Android: &fcmAndroid{
				Priority: "high",
			},
			APNS: &fcmAPNS{
				Headers: map[string]string{
					"apns-push-type": "background",
					"apns-priority":  "5",
				},
				Payload: &fcmAPNSPayload{
					Aps: &fcmAps{
						ContentAvailable: 1,
					},
				},
			},
		},
	}

	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	url := fmt.Sprintf("https://fcm.googleapis.com/v1/projects/%s/messages:send", s.projectID)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	respBody, _ := io.ReadAll(resp.Body)
	if isUnregistered(resp.StatusCode, respBody) {
		return ErrInvalidToken
	}
	return fmt.Errorf("FCM API error: status=%d body=%s", resp.StatusCode, string(respBody))
}

// isUnregistered detects the terminal "token invalid" response. FCM v1 reports
// UNREGISTERED with 404 for stale tokens.
func isUnregistered(status int, body []byte) bool {
	if status == http.StatusNotFound || status == http.StatusGone {
		return true
	}
	return strings.Contains(string(body), "UNREGISTERED")
}
