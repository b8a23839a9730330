package contracts

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/XavierBriggs/Pythia/pkg/errkind"
)

// EntityKind namespaces records in the persistence store
type EntityKind string

const (
	KindFixture    EntityKind = "fixture"
	KindTeamForm   EntityKind = "team_form"
	KindOddsBoard  EntityKind = "odds_board"
	KindPrediction EntityKind = "prediction"
	KindValueBets  EntityKind = "value_bets"
	KindArticle    EntityKind = "article"

	// KindModelQuality holds externally tracked calibration scores per
	// model, consumed by the prediction engine's blend weights
	KindModelQuality EntityKind = "model_quality"
)

// ErrNotFound is returned by Store.Get when no record exists
var ErrNotFound = errors.New("record not found")

// Record couples a persisted payload with its optimistic-lock version
type Record struct {
	Data    []byte
	Version int64
}

// Store is the external persistence collaborator. All entities are
// persisted through it; writes are conditional on the stored version
// so concurrent batch runs cannot apply the same transition twice.
type Store interface {
	// Get returns the current record, or ErrNotFound
	Get(ctx context.Context, kind EntityKind, id string) (*Record, error)

	// PutIfVersion writes data only if the stored version equals
	// expectedVersion (0 for create). It returns the new version, or an
	// errkind.StateConflict error on mismatch.
	PutIfVersion(ctx context.Context, kind EntityKind, id string, expectedVersion int64, data []byte) (int64, error)
}

// GetJSON reads and unmarshals a record into v, returning its version.
// ErrNotFound passes through untouched so callers can distinguish absence.
func GetJSON(ctx context.Context, s Store, kind EntityKind, id string, v interface{}) (int64, error) {
	rec, err := s.Get(ctx, kind, id)
	if err != nil {
		return 0, err
	}
	if err := json.Unmarshal(rec.Data, v); err != nil {
		return 0, errkind.Wrap(errkind.Validation, "store.get", err)
	}
	return rec.Version, nil
}

// PutJSON marshals v and writes it conditionally on expectedVersion
func PutJSON(ctx context.Context, s Store, kind EntityKind, id string, expectedVersion int64, v interface{}) (int64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, errkind.Wrap(errkind.Validation, "store.put", err)
	}
	return s.PutIfVersion(ctx, kind, id, expectedVersion, data)
}
