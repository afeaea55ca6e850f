package cipher

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/metafates/gache"

	"github.com/ytget/streamproxy/internal/filesystem"
)

const playerJSTTL = 10 * time.Minute

// playerScript is a fetched script together with what was parsed out of
// it, so the parsing also happens once per TTL.
type playerScript struct {
	Body      string    `json:"body"`
	Steps     []step    `json:"steps,omitempty"`
	NFunc     string    `json:"nfunc,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// scriptCache keeps player scripts by URL in a gache file on the active
// filesystem. Scripts change rarely, so one fetch per TTL is enough.
type scriptCache struct {
	mu    sync.Mutex
	store *gache.Cache[map[string]playerScript]
	ttl   time.Duration
	now   func() time.Time
}

func newScriptCache(dir string, ttl time.Duration) *scriptCache {
	if ttl <= 0 {
		ttl = playerJSTTL
	}
	return &scriptCache{
		store: gache.New[map[string]playerScript](&gache.Options{
			Path:       filepath.Join(dir, "player-scripts.json"),
			Lifetime:   ttl,
			FileSystem: &filesystem.GacheFs{},
		}),
		ttl: ttl,
		now: time.Now,
	}
}

func (c *scriptCache) get(url string) (playerScript, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	scripts, expired, err := c.store.Get()
	if err != nil || expired || scripts == nil {
		return playerScript{}, false
	}
	s, ok := scripts[url]
	if !ok || c.now().Sub(s.FetchedAt) >= c.ttl {
		return playerScript{}, false
	}
	return s, true
}

// put stores ps and drops entries past their TTL.
func (c *scriptCache) put(url string, ps playerScript) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	scripts, expired, err := c.store.Get()
	if err != nil || expired || scripts == nil {
		scripts = make(map[string]playerScript)
	}

	now := c.now()
	for k, s := range scripts {
		if now.Sub(s.FetchedAt) >= c.ttl {
			delete(scripts, k)
		}
	}
	ps.FetchedAt = now
	scripts[url] = ps

	return c.store.Set(scripts)
}
