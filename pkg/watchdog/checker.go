package watchdog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPChecker interroge GET /v1/access/{id}, le endpoint de poll du
// service. Timeout court : un tick qui traîne ne doit pas chevaucher le suivant.
type HTTPChecker struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPChecker(baseURL, sessionToken string) *HTTPChecker {
	return &HTTPChecker{
		baseURL: baseURL,
		token:   sessionToken,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *HTTPChecker) CheckAccess(ctx context.Context, identityID string) (*Status, error) {
	url := fmt.Sprintf("%s/v1/access/%s", c.baseURL, identityID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("check access: %w", err)
	}
	defer resp.Body.Close()

	// 401 : le token de session lui-même est mort (expiré ou révoqué).
	// On le traite comme un refus self : la session doit se terminer.
	if resp.StatusCode == http.StatusUnauthorized {
		return &Status{Denied: true, Origin: "self", SubReason: "banned"}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("check access: unexpected status %d", resp.StatusCode)
	}

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("check access: decode: %w", err)
	}
	return &status, nil
}
