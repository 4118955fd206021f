package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"os"

	log "github.com/sirupsen/logrus"
)

const bootstrapAdminUsername = "admin"

// BootstrapAdmin registers an initial "admin" account when enabled.
// It is idempotent: if the account already exists, it does nothing.
func BootstrapAdmin(ctx context.Context, auth AuthService, cfg Config) error {
	if !cfg.BootstrapAdminEnabled {
		return nil
	}

	password := cfg.BootstrapAdminPassword
	generated := password == ""
	if generated {
		var err error
		password, err = generatePassword(32)
		if err != nil {
			return err
		}
	}

	_, err := auth.Register(ctx, bootstrapAdminUsername, password)
	if errors.Is(err, ErrUsernameTaken) {
		return nil
	}
	if err != nil {
		return err
	}

	if !generated {
		log.WithField("username", bootstrapAdminUsername).Info("initial admin created with configured password")
		return nil
	}
	if cfg.InitialAdminPasswordPath != "" {
		if err := os.WriteFile(cfg.InitialAdminPasswordPath, []byte(password+"\n"), 0o600); err != nil {
			return err
		}
		log.Infof("initial admin created; credentials written to %s", cfg.InitialAdminPasswordPath)
	} else {
		log.WithFields(log.Fields{"username": bootstrapAdminUsername, "password": password}).Warn("initial admin created")
	}
	return nil
}

func generatePassword(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("password length must be positive")
	}
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:length], nil
}
