// workers/profile_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"climb-progression-system/repository"
	"climb-progression-system/utils"

	"go.uber.org/zap"
)

// RemoteProfile matches one entry of the profile service response.
type RemoteProfile struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id"`
	Username   string    `json:"username"`
	FirstName  *string   `json:"first_name,omitempty"`
	LastName   *string   `json:"last_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DisplayName prefers the full name and falls back to the username.
func (p RemoteProfile) DisplayName() string {
	var parts []string
	if p.FirstName != nil && strings.TrimSpace(*p.FirstName) != "" {
		parts = append(parts, strings.TrimSpace(*p.FirstName))
	}
	if p.LastName != nil && strings.TrimSpace(*p.LastName) != "" {
		parts = append(parts, strings.TrimSpace(*p.LastName))
	}
	if len(parts) == 0 {
		return p.Username
	}
	return strings.Join(parts, " ")
}

// ProfileChangesResponse is the top-level structure of the profile service response.
type ProfileChangesResponse struct {
	Users []RemoteProfile `json:"users"`
}

type ProfileSyncWorker struct {
	store        repository.ProfileStore
	interval     time.Duration
	baseURL      string // e.g. "http://localhost:8500"
	endpointPath string // e.g. "/api/v1/public/profiles"
	serviceToken string
	httpClient   *http.Client
	logger       *zap.Logger
}

func NewProfileSyncWorker(store repository.ProfileStore, baseURL, endpointPath, serviceToken string, interval time.Duration, logger *zap.Logger) *ProfileSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ProfileSyncWorker{
		store:        store,
		interval:     interval,
		baseURL:      baseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   utils.HTTPClient,
		logger:       logger.Named("profile_sync"),
	}
}

// WithHTTPClient swaps the outbound client.
func (w *ProfileSyncWorker) WithHTTPClient(c *http.Client) *ProfileSyncWorker {
	w.httpClient = c
	return w
}

func (w *ProfileSyncWorker) Start(ctx context.Context) {
	w.logger.Info("starting profile sync worker", zap.Duration("interval", w.interval))
	go w.run(ctx)
}

func (w *ProfileSyncWorker) run(ctx context.Context) {
	if _, err := w.SyncOnce(ctx); err != nil {
		w.logger.Warn("initial sync failed", zap.Error(err))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx); err != nil {
				w.logger.Error("sync batch failed", zap.Error(err))
			}
		case <-ctx.Done():
			w.logger.Info("profile sync worker stopped")
			return
		}
	}
}

// SyncOnce pulls changes newer than the last mirrored profile and stores them.
func (w *ProfileSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	since, err := w.store.LastProfileSync(ctx)
	if err != nil {
		return 0, fmt.Errorf("read last sync time: %w", err)
	}
	if since.IsZero() {
		since = time.Unix(0, 0)
	}
	return w.syncBatch(ctx, since)
}

func (w *ProfileSyncWorker) syncBatch(ctx context.Context, since time.Time) (int, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return 0, fmt.Errorf("invalid profile service URL %q: %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	w.logger.Debug("fetching profile changes", zap.String("url", finalURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request to profile service failed: %w", err)
	}
	defer utils.DrainAndClose(resp)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("profile service returned %d: %s", resp.StatusCode, string(body))
	}

	var payload ProfileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode profile service response: %w", err)
	}
	if len(payload.Users) == 0 {
		w.logger.Debug("no profile changes", zap.Time("since", since))
		return 0, nil
	}

	updates := make([]repository.ProfileUpdate, 0, len(payload.Users))
	for _, p := range payload.Users {
		updates = append(updates, repository.ProfileUpdate{
			ExternalUserID: p.ExternalID,
			DisplayName:    p.DisplayName(),
			UpdatedAt:      p.UpdatedAt,
		})
	}

	written, err := w.store.UpsertProfiles(ctx, updates)
	if err != nil {
		return written, err
	}
	w.logger.Info("synced profiles", zap.Int("received", len(payload.Users)), zap.Int("written", written))
	return written, nil
}
