package web

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/JonMunkholm/milesdash/internal/core"
)

// personViewCache memoises per-person views. Keys include the upload ID, so
// a new upload never serves views built from the old dataset.
type personViewCache struct {
	lru *expirable.LRU[string, core.PersonView]
}

func newPersonViewCache(size int, ttl time.Duration) *personViewCache {
	return &personViewCache{lru: expirable.NewLRU[string, core.PersonView](size, nil, ttl)}
}

func viewKey(uploadID, person string) string {
	return uploadID + "\x00" + person
}

// get returns the view for person in st, building it on a miss.
func (c *personViewCache) get(st core.State, person string) (core.PersonView, error) {
	if !st.HasData() {
		return core.PersonView{}, core.ErrNoData
	}
	if person == "" {
		person = st.Selected
	}

	key := viewKey(st.UploadID, person)
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}

	if !st.HasPerson(person) {
		return core.PersonView{}, core.ErrUnknownPerson
	}

	v := core.BuildPersonView(st.Dataset, person)
	c.lru.Add(key, v)
	return v, nil
}

func (c *personViewCache) purge() {
	c.lru.Purge()
}

func (c *personViewCache) len() int {
	return c.lru.Len()
}
