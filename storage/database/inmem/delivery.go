package inmemdb

import (
	"context"
	"sort"
	"sync"

	"github.com/darasahq/darasa/core/replay"
)

type deliveryRepository struct {
	mutex sync.RWMutex
	// (userID, entryID) -> record
	table map[deliveryKey]replay.Record
}

type deliveryKey struct {
	userID  string
	entryID string
}

var _ replay.Repository = (*deliveryRepository)(nil) // interface compliance check

func NewDeliveryRepository() *deliveryRepository {
	return &deliveryRepository{table: make(map[deliveryKey]replay.Record)}
}

func (repo *deliveryRepository) HasFired(_ context.Context, userID, entryID string) (bool, error) {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()

	_, ok := repo.table[deliveryKey{userID, entryID}]
	return ok, nil
}

func (repo *deliveryRepository) RecordFired(_ context.Context, rec replay.Record) error {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	key := deliveryKey{rec.UserID, rec.EntryID}
	if _, ok := repo.table[key]; ok {
		return replay.ErrDuplicateDelivery
	}
	repo.table[key] = rec
	return nil
}

func (repo *deliveryRepository) History(_ context.Context, userID string) ([]replay.Record, error) {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()

	var recs []replay.Record
	for key, rec := range repo.table {
		if key.userID == userID {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].FiredAt.Equal(recs[j].FiredAt) {
			return recs[i].FiredAt.Before(recs[j].FiredAt)
		}
		return recs[i].EntryID < recs[j].EntryID
	})
	return recs, nil
}
