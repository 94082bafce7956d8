package profiles

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Directory resolves instructor emails to public profile data held by an
// external service. Lookups are best-effort: catalog reads must not fail
// because the directory is down.
type Directory interface {
	PhotoURL(ctx context.Context, email string) (string, error)
}

type HTTPDirectory struct {
	baseURL string
	client  *http.Client
}

func NewHTTPDirectory(baseURL string) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 2 * time.Second,
		},
	}
}

type profileResponse struct {
	Email    string `json:"email"`
	PhotoURL string `json:"photoUrl"`
}

func (d *HTTPDirectory) PhotoURL(ctx context.Context, email string) (string, error) {
	u := fmt.Sprintf("%s/profiles/%s", d.baseURL, url.PathEscape(email))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)

	if err != nil {
		return "", err
	}

	resp, err := d.client.Do(req)

	if err != nil {
		return "", err
	}

	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("profile lookup status %d", resp.StatusCode)
	}

	var pr profileResponse

	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return "", err
	}

	return pr.PhotoURL, nil
}
