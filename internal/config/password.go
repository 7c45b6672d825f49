package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
)

const (
	storePasswordEnv = "DIDVAULT_STOREPASS"
	environmentEnv   = "DIDVAULT_ENV"
)

var (
	ErrStorePasswordRequired = errors.New("store password is required")
	ErrInsecurePasswordFile  = errors.New("password file must not be readable by group or others in production")
)

// ResolveStorePassword picks the store password from the flag value, then
// DIDVAULT_STOREPASS, then the configured password file.
func ResolveStorePassword(flagValue string, cfg Config) (string, error) {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(os.Getenv(storePasswordEnv)); v != "" {
		return v, nil
	}
	path := strings.TrimSpace(cfg.PasswordFile)
	if path == "" {
		return "", fmt.Errorf("%w: pass -storepass, set %s or configure a password file", ErrStorePasswordRequired, storePasswordEnv)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("password file: %w", err)
	}
	if err := enforcePasswordFilePolicy(info.Mode().Perm()); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("password file: %w", err)
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", fmt.Errorf("%w: password file %s is empty", ErrStorePasswordRequired, path)
	}
	return secret, nil
}

func enforcePasswordFilePolicy(perm os.FileMode) error {
	if !IsProduction() || runtime.GOOS == "windows" {
		return nil
	}
	if perm&0o077 != 0 {
		return fmt.Errorf("%w: mode is %04o, expected 0600", ErrInsecurePasswordFile, perm)
	}
	return nil
}

func IsProduction() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(environmentEnv))) {
	case "prod", "production":
		return true
	default:
		return false
	}
}
