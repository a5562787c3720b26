package cli

import (
	"encoding/json"
	"os"
	"path/filepath"

	"tradeup/internal/auth"
)

func sessionPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".tup")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.json"), nil
}

// SaveSession persists the login for later invocations.
func SaveSession(s auth.Session) error {
	path, err := sessionPath()
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// LoadSession returns the stored session, or ok=false when not logged in.
func LoadSession() (auth.Session, bool, error) {
	path, err := sessionPath()
	if err != nil {
		return auth.Session{}, false, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return auth.Session{}, false, nil
		}
		return auth.Session{}, false, err
	}
	var s auth.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return auth.Session{}, false, err
	}
	return s, s.Token != "", nil
}

// ClearSession removes the stored login.
func ClearSession() error {
	path, err := sessionPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
