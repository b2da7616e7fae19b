package bot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
)

// Valid horizon and risk values.
var (
	validHorizons = map[string]bool{"short": true, "medium": true, "long": true}
	validRisks    = map[string]bool{"low": true, "medium": true, "high": true}
)

// UserSettings is one user's signal preferences.
type UserSettings struct {
	Horizon string `json:"horizon"`
	Risk    string `json:"risk"`
}

func defaultSettings() UserSettings {
	return UserSettings{Horizon: "medium", Risk: "medium"}
}

// SettingsStore keeps per-user settings in a JSON file keyed by user id.
type SettingsStore struct {
	mu   sync.Mutex
	path string
	log  zerolog.Logger
}

// NewSettingsStore creates a store persisting to path.
func NewSettingsStore(path string, log zerolog.Logger) *SettingsStore {
	return &SettingsStore{path: path, log: log.With().Str("component", "user_settings").Logger()}
}

// Get returns the user's settings, defaults when unknown.
func (s *SettingsStore) Get(userID int64) UserSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.loadLocked()
	if us, ok := all[userID]; ok {
		return us
	}
	return defaultSettings()
}

// SetHorizon validates and stores the user's horizon.
func (s *SettingsStore) SetHorizon(userID int64, horizon string) error {
	if !validHorizons[horizon] {
		return fmt.Errorf("invalid horizon %q (short, medium, long)", horizon)
	}
	return s.update(userID, func(us *UserSettings) { us.Horizon = horizon })
}

// SetRisk validates and stores the user's risk appetite.
func (s *SettingsStore) SetRisk(userID int64, risk string) error {
	if !validRisks[risk] {
		return fmt.Errorf("invalid risk %q (low, medium, high)", risk)
	}
	return s.update(userID, func(us *UserSettings) { us.Risk = risk })
}

func (s *SettingsStore) update(userID int64, mutate func(*UserSettings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.loadLocked()
	us, ok := all[userID]
	if !ok {
		us = defaultSettings()
	}
	mutate(&us)
	all[userID] = us
	return s.saveLocked(all)
}

func (s *SettingsStore) loadLocked() map[int64]UserSettings {
	out := make(map[int64]UserSettings)
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Msg("user settings unreadable, using defaults")
		}
		return out
	}

	var keyed map[string]UserSettings
	if err := json.Unmarshal(raw, &keyed); err != nil {
		s.log.Warn().Err(err).Msg("user settings malformed, using defaults")
		return out
	}
	for k, v := range keyed {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		out[id] = v
	}
	return out
}

func (s *SettingsStore) saveLocked(all map[int64]UserSettings) error {
	keyed := make(map[string]UserSettings, len(all))
	for id, v := range all {
		keyed[strconv.FormatInt(id, 10)] = v
	}
	data, err := json.MarshalIndent(keyed, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal user settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp settings file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp settings file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace settings file: %w", err)
	}
	return nil
}

// HorizonName is the operator-facing label for a horizon.
func HorizonName(horizon string) string {
	switch horizon {
	case "short":
		return "SHORT TERM (Scalp)"
	case "medium":
		return "MEDIUM TERM (Swing)"
	case "long":
		return "LONG TERM (Trend)"
	}
	return horizon
}

// RiskName is the operator-facing label for a risk level.
func RiskName(risk string) string {
	switch risk {
	case "low":
		return "LOW RISK"
	case "medium":
		return "MEDIUM RISK"
	case "high":
		return "HIGH RISK"
	}
	return risk
}

// TimeframesForHorizon maps a horizon to its scan timeframes.
func TimeframesForHorizon(horizon string) []string {
	switch horizon {
	case "short":
		return []string{"1m", "5m", "15m"}
	case "long":
		return []string{"1h", "4h", "1d"}
	default:
		return []string{"15m", "1h"}
	}
}
