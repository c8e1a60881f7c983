package voice

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Provider fetches the raw style document for a voice id.
type Provider interface {
	Fetch(ctx context.Context, id string) ([]byte, error)
}

// FileProvider reads <Dir>/<id>.json.
type FileProvider struct {
	Dir string
}

func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{Dir: dir}
}

func (p *FileProvider) Fetch(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(p.Dir, id+".json"))
}

// HTTPProvider downloads <BaseURL>/voice_styles/<id>.json.
type HTTPProvider struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) Fetch(ctx context.Context, id string) ([]byte, error) {
	url := fmt.Sprintf("%s/voice_styles/%s.json", p.BaseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("voice style %s returned status %s", id, resp.Status)
	}
	return io.ReadAll(resp.Body)
}
