package sqlite

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/glebk/herb-bot/internal/domain"
)

// PreferencesKey is the fixed key of the preferences document
const PreferencesKey = "herb_prefs"

// PreferencesRepository implements domain.PreferencesRepository on the kv table
type PreferencesRepository struct {
	db *Database
}

// NewPreferencesRepository creates a new PreferencesRepository
func NewPreferencesRepository(db *Database) *PreferencesRepository {
	return &PreferencesRepository{db: db}
}

// Load returns the stored preferences. Missing or malformed documents yield
// the defaults; fields absent from an older document keep their defaults.
func (r *PreferencesRepository) Load(scope string) (domain.Preferences, error) {
	raw, ok, err := r.db.get(scope, PreferencesKey)
	if err != nil {
		return domain.Preferences{}, err
	}
	if !ok {
		return domain.DefaultPreferences(), nil
	}

	prefs := domain.DefaultPreferences()
	if err := json.Unmarshal(raw, &prefs); err != nil {
		log.Printf("Discarding malformed preferences for %s: %v", scope, err)
		return domain.DefaultPreferences(), nil
	}

	return prefs, nil
}

// Save merges the patch into the stored preferences and returns the result
func (r *PreferencesRepository) Save(scope string, patch domain.PreferencesPatch) (domain.Preferences, error) {
	current, err := r.Load(scope)
	if err != nil {
		return domain.Preferences{}, err
	}

	updated := current.Apply(patch)

	raw, err := json.Marshal(updated)
	if err != nil {
		return domain.Preferences{}, fmt.Errorf("failed to encode preferences: %w", err)
	}

	if err := r.db.put(scope, PreferencesKey, raw); err != nil {
		return domain.Preferences{}, err
	}

	return updated, nil
}
