package cache

import (
	"fmt"
	"testing"

	"did-vault/go-backend/pkg/models"
)

type countingRecorder struct {
	hits, misses int
}

func (r *countingRecorder) CacheLookup(_ string, hit bool) {
	if hit {
		r.hits++
		return
	}
	r.misses++
}

func doc(id string) *models.Document {
	did := models.NewDID(id)
	return &models.Document{Subject: did, Meta: models.Metadata{Alias: id}}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := New(2, nil)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	c.PutDocument(doc("a"))
	c.PutDocument(doc("b"))
	if _, ok := c.Document(models.NewDID("a")); !ok {
		t.Fatal("a should be cached")
	}
	c.PutDocument(doc("c"))
	if _, ok := c.Document(models.NewDID("b")); ok {
		t.Fatal("b should have been evicted as least recently used")
	}
	if _, ok := c.Document(models.NewDID("a")); !ok {
		t.Fatal("a was touched and must survive")
	}
}

func TestCacheHandsOutClones(t *testing.T) {
	c, _ := New(DefaultCapacity, nil)
	original := doc("a")
	c.PutDocument(original)
	original.Meta.Alias = "mutated after put"

	got, _ := c.Document(models.NewDID("a"))
	if got.Meta.Alias != "a" {
		t.Fatalf("cache shares memory with caller: %q", got.Meta.Alias)
	}
	got.Meta.Alias = "mutated after get"
	again, _ := c.Document(models.NewDID("a"))
	if again.Meta.Alias != "a" {
		t.Fatalf("cache shares memory with reader: %q", again.Meta.Alias)
	}
}

func TestInvalidateDIDDropsCredentials(t *testing.T) {
	c, _ := New(DefaultCapacity, nil)
	a := models.NewDID("a")
	ab := models.NewDID("ab")
	c.PutDocument(doc("a"))
	for i, owner := range []models.DID{a, a, ab} {
		c.PutCredential(&models.Credential{ID: models.NewDIDURL(owner, fmt.Sprintf("c%d", i))})
	}
	c.InvalidateDID(a)
	if _, ok := c.Document(a); ok {
		t.Fatal("document survived invalidation")
	}
	docs, creds := c.Len()
	if docs != 0 || creds != 1 {
		t.Fatalf("expected only ab's credential to remain, got docs=%d creds=%d", docs, creds)
	}
	if _, ok := c.Credential(models.NewDIDURL(ab, "c2")); !ok {
		t.Fatal("credential of a different DID was dropped")
	}
}

func TestDisabledCacheStoresNothing(t *testing.T) {
	rec := &countingRecorder{}
	c, err := New(0, rec)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	if c.Enabled() {
		t.Fatal("zero capacity must disable the cache")
	}
	c.PutDocument(doc("a"))
	if _, ok := c.Document(models.NewDID("a")); ok {
		t.Fatal("disabled cache returned an entry")
	}
	c.InvalidateDID(models.NewDID("a"))
	c.Purge()
	if rec.hits+rec.misses != 0 {
		t.Fatal("disabled cache should not record lookups")
	}
}

func TestRecorderCountsLookups(t *testing.T) {
	rec := &countingRecorder{}
	c, _ := New(4, rec)
	c.Document(models.NewDID("missing"))
	c.PutDocument(doc("a"))
	c.Document(models.NewDID("a"))
	if rec.hits != 1 || rec.misses != 1 {
		t.Fatalf("unexpected counts hits=%d misses=%d", rec.hits, rec.misses)
	}
}
