package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	interfaces "github.com/levelbot/levelbot/internal/interfaces"
	"github.com/levelbot/levelbot/internal/models"
)

const (
	cdnBase        = "https://cdn.discordapp.com"
	requestTimeout = 5 * time.Second
)

// ErrNotFound is returned when neither the cache nor the API knows the user.
var ErrNotFound = errors.New("identity not found")

type Options struct {
	APIBase           string
	Token             string
	CacheTTL          time.Duration
	RequestsPerSecond float64
	Client            *http.Client
}

type cached struct {
	identity models.Identity
	expires  time.Time
}

// Directory resolves users from a local cache first and the chat platform's
// REST API second. Fetches are throttled so a large leaderboard cannot burst
// the API.
type Directory struct {
	mu      sync.Mutex
	cache   map[string]cached
	ttl     time.Duration
	apiBase string
	token   string
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time
	log     *logrus.Logger
}

func NewDirectory(opts Options, log *logrus.Logger) *Directory {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: requestTimeout}
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	return &Directory{
		cache:   make(map[string]cached),
		ttl:     opts.CacheTTL,
		apiBase: strings.TrimRight(opts.APIBase, "/"),
		token:   opts.Token,
		client:  opts.Client,
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
		log:     log,
	}
}

// SetNow overrides the time source. It is intended for tests.
func (d *Directory) SetNow(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
}

// Remember caches an identity seen on an inbound event.
func (d *Directory) Remember(ident models.Identity) {
	if ident.UserID == "" || ident.Name == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache[ident.UserID] = cached{identity: ident, expires: d.now().Add(d.ttl)}
}

func (d *Directory) lookup(userID string) (models.Identity, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.cache[userID]
	if !ok {
		return models.Identity{}, false
	}
	if d.now().After(c.expires) {
		delete(d.cache, userID)
		return models.Identity{}, false
	}
	return c.identity, true
}

// Resolve implements interfaces.IdentityResolver.
func (d *Directory) Resolve(ctx context.Context, userID string) (models.Identity, error) {
	if ident, ok := d.lookup(userID); ok {
		return ident, nil
	}
	if d.apiBase == "" {
		return models.Identity{}, ErrNotFound
	}

	ident, err := d.fetch(ctx, userID)
	if err != nil {
		return models.Identity{}, err
	}
	d.Remember(ident)
	return ident, nil
}

type apiUser struct {
	ID         string  `json:"id"`
	Username   string  `json:"username"`
	GlobalName *string `json:"global_name"`
	Avatar     *string `json:"avatar"`
}

// displayName prefers the global display name over the account name.
func (u apiUser) displayName() string {
	if u.GlobalName != nil && *u.GlobalName != "" {
		return *u.GlobalName
	}
	return u.Username
}

func (d *Directory) fetch(ctx context.Context, userID string) (models.Identity, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return models.Identity{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.apiBase+"/users/"+userID, nil)
	if err != nil {
		return models.Identity{}, err
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bot "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return models.Identity{}, fmt.Errorf("fetch user %s: %w", userID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return models.Identity{}, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return models.Identity{}, fmt.Errorf("fetch user %s: unexpected status %d", userID, resp.StatusCode)
	}

	var u apiUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return models.Identity{}, fmt.Errorf("decode user %s: %w", userID, err)
	}
	name := u.displayName()
	if name == "" {
		return models.Identity{}, ErrNotFound
	}

	avatar := AvatarURL(userID, u.Avatar)
	d.log.WithField("user_id", userID).Debug("resolved identity from api")
	return models.Identity{UserID: userID, Name: name, AvatarURL: &avatar}, nil
}

// AvatarURL returns the custom avatar when hash is set, otherwise the
// platform's default avatar for the id.
func AvatarURL(userID string, hash *string) string {
	if hash != nil && *hash != "" {
		return fmt.Sprintf("%s/avatars/%s/%s.png", cdnBase, userID, *hash)
	}
	index := uint64(0)
	if id, err := strconv.ParseUint(userID, 10, 64); err == nil {
		index = (id >> 22) % 6
	}
	return fmt.Sprintf("%s/embed/avatars/%d.png", cdnBase, index)
}

var _ interfaces.IdentityResolver = (*Directory)(nil)
