package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"hiroai/roomsync/internal/cache"
)

var (
	ErrInvalidHandle       = errors.New("invalid github handle")
	ErrProfileNotFound     = errors.New("github profile not found")
	ErrUpstreamUnavailable = errors.New("github is unavailable")
)

const (
	DefaultAPIURL = "https://api.github.com"
	maxRepos      = 5
	maxBodyBytes  = 1 << 20
)

// GitHub handles: alphanumerics and single inner hyphens, at most 39 chars.
var handlePattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9]|-[A-Za-z0-9]){0,38}$`)

// Fetcher turns a profile reference into text for an interview's job
// context.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (string, error)
}

type githubUser struct {
	Login       string `json:"login"`
	Name        string `json:"name"`
	Bio         string `json:"bio"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	PublicRepos int    `json:"public_repos"`
	Followers   int    `json:"followers"`
}

type githubRepo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Language    string `json:"language"`
	Stars       int    `json:"stargazers_count"`
	Fork        bool   `json:"fork"`
}

type GitHubFetcher struct {
	baseURL string
	token   string
	client  *http.Client
	cache   *cache.TTLCache[string]
}

// NewGitHubFetcher returns a fetcher against baseURL (DefaultAPIURL when
// empty). token is optional. Results are cached for cacheTTL.
func NewGitHubFetcher(baseURL, token string, cacheTTL time.Duration) *GitHubFetcher {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	return &GitHubFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
		cache:   cache.New[string](cacheTTL),
	}
}

func (f *GitHubFetcher) Close() { f.cache.Stop() }

// ParseHandle accepts "octocat", "@octocat" or a github.com profile URL.
func ParseHandle(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimPrefix(ref, "@")
	if strings.Contains(ref, "github.com") {
		if !strings.Contains(ref, "://") {
			ref = "https://" + ref
		}
		u, err := url.Parse(ref)
		if err != nil {
			return "", ErrInvalidHandle
		}
		host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
		if host != "github.com" {
			return "", ErrInvalidHandle
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		ref = parts[0]
	}
	if !handlePattern.MatchString(ref) {
		return "", ErrInvalidHandle
	}
	return ref, nil
}

func (f *GitHubFetcher) Fetch(ctx context.Context, ref string) (string, error) {
	handle, err := ParseHandle(ref)
	if err != nil {
		return "", err
	}
	key := strings.ToLower(handle)
	if text, ok := f.cache.Get(key); ok {
		return text, nil
	}

	var user githubUser
	if err := f.get(ctx, "/users/"+url.PathEscape(handle), &user); err != nil {
		return "", err
	}
	var repos []githubRepo
	if err := f.get(ctx, "/users/"+url.PathEscape(handle)+"/repos?sort=updated&per_page=100", &repos); err != nil {
		return "", err
	}

	text := render(user, repos)
	f.cache.Set(key, text)
	return text, nil
}

func (f *GitHubFetcher) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrProfileNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return nil
}

func render(u githubUser, repos []githubRepo) string {
	var b strings.Builder
	name := u.Name
	if name == "" {
		name = u.Login
	}
	fmt.Fprintf(&b, "GitHub: %s (@%s)\n", name, u.Login)
	if u.Bio != "" {
		fmt.Fprintf(&b, "Bio: %s\n", u.Bio)
	}
	if u.Company != "" {
		fmt.Fprintf(&b, "Company: %s\n", u.Company)
	}
	if u.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", u.Location)
	}
	fmt.Fprintf(&b, "Public repositories: %d, followers: %d\n", u.PublicRepos, u.Followers)

	own := make([]githubRepo, 0, len(repos))
	for _, r := range repos {
		if !r.Fork {
			own = append(own, r)
		}
	}
	sort.SliceStable(own, func(i, j int) bool { return own[i].Stars > own[j].Stars })
	if len(own) > maxRepos {
		own = own[:maxRepos]
	}
	if len(own) > 0 {
		b.WriteString("Top repositories:\n")
	}
	for _, r := range own {
		fmt.Fprintf(&b, "- %s", r.Name)
		if r.Language != "" {
			fmt.Fprintf(&b, " [%s]", r.Language)
		}
		fmt.Fprintf(&b, " (%d stars)", r.Stars)
		if r.Description != "" {
			fmt.Fprintf(&b, ": %s", r.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}
