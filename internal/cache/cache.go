package cache

import (
	"strings"

	"did-vault/go-backend/pkg/models"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCapacity = 32

// Recorder observes hits and misses; nil is allowed.
type Recorder interface {
	CacheLookup(kind string, hit bool)
}

// Cache mirrors documents and credentials in two fixed-size LRU lists. It is
// never authoritative and hands out clones, so callers may mutate results.
// The zero-capacity configuration from Disabled stores nothing.
type Cache struct {
	docs     *lru.Cache[string, *models.Document]
	creds    *lru.Cache[string, *models.Credential]
	recorder Recorder
}

// New builds a cache holding up to capacity documents and capacity
// credentials, evicting the least recently used entry first.
func New(capacity int, recorder Recorder) (*Cache, error) {
	if capacity <= 0 {
		return Disabled(), nil
	}
	docs, err := lru.New[string, *models.Document](capacity)
	if err != nil {
		return nil, err
	}
	creds, err := lru.New[string, *models.Credential](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{docs: docs, creds: creds, recorder: recorder}, nil
}

func Disabled() *Cache {
	return &Cache{}
}

func (c *Cache) Enabled() bool {
	return c != nil && c.docs != nil
}

func (c *Cache) record(kind string, hit bool) {
	if c.recorder != nil {
		c.recorder.CacheLookup(kind, hit)
	}
}

func (c *Cache) Document(did models.DID) (*models.Document, bool) {
	if !c.Enabled() {
		return nil, false
	}
	doc, ok := c.docs.Get(did.String())
	c.record("document", ok)
	if !ok {
		return nil, false
	}
	return doc.Clone(), true
}

func (c *Cache) PutDocument(doc *models.Document) {
	if !c.Enabled() || doc == nil {
		return
	}
	c.docs.Add(doc.Subject.String(), doc.Clone())
}

func (c *Cache) Credential(id models.DIDURL) (*models.Credential, bool) {
	if !c.Enabled() {
		return nil, false
	}
	cred, ok := c.creds.Get(id.String())
	c.record("credential", ok)
	if !ok {
		return nil, false
	}
	return cred.Clone(), true
}

func (c *Cache) PutCredential(cred *models.Credential) {
	if !c.Enabled() || cred == nil {
		return
	}
	c.creds.Add(cred.ID.String(), cred.Clone())
}

func (c *Cache) InvalidateCredential(id models.DIDURL) {
	if !c.Enabled() {
		return
	}
	c.creds.Remove(id.String())
}

// InvalidateDID drops the document and every credential of did.
func (c *Cache) InvalidateDID(did models.DID) {
	if !c.Enabled() {
		return
	}
	c.docs.Remove(did.String())
	prefix := did.String() + "#"
	for _, key := range c.creds.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.creds.Remove(key)
		}
	}
}

func (c *Cache) Purge() {
	if !c.Enabled() {
		return
	}
	c.docs.Purge()
	c.creds.Purge()
}

func (c *Cache) Len() (docs, creds int) {
	if !c.Enabled() {
		return 0, 0
	}
	return c.docs.Len(), c.creds.Len()
}
