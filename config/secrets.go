package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/zalando/go-keyring"
)

const keyringService = "wpbot"

// Secret names accepted by the keyring store and `wpbot secret`.
const (
	SecretTelegramToken  = "telegram-token"
	SecretOpenAIKey      = "openai-api-key"
	SecretWordPressToken = "wordpress-token"
	SecretUnsplashKey    = "unsplash-access-key"
)

var knownSecrets = map[string]bool{
	SecretTelegramToken:  true,
	SecretOpenAIKey:      true,
	SecretWordPressToken: true,
	SecretUnsplashKey:    true,
}

// ErrSecretNotFound is returned when the keyring holds no value for a name.
var ErrSecretNotFound = errors.New("secret not found in keyring")

// SecretStore reads credentials that are not set in the environment.
type SecretStore interface {
	Get(name string) (string, error)
}

// Keyring stores secrets in the OS keyring.
type Keyring struct{}

func (Keyring) Get(name string) (string, error) {
	v, err := keyring.Get(keyringService, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrSecretNotFound
		}
		return "", err
	}
	return v, nil
}

func (Keyring) Set(name, value string) error {
	if err := checkSecretName(name); err != nil {
		return err
	}
	if value == "" {
		return errors.New("secret value cannot be empty")
	}
	if err := keyring.Set(keyringService, name, value); err != nil {
		return fmt.Errorf("failed to store %s in keyring: %w", name, err)
	}
	return nil
}

func (Keyring) Delete(name string) error {
	if err := checkSecretName(name); err != nil {
		return err
	}
	if err := keyring.Delete(keyringService, name); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrSecretNotFound
		}
		return fmt.Errorf("failed to delete %s from keyring: %w", name, err)
	}
	return nil
}

// SecretNames lists the accepted secret names.
func SecretNames() []string {
	names := make([]string, 0, len(knownSecrets))
	for n := range knownSecrets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func checkSecretName(name string) error {
	if !knownSecrets[name] {
		return fmt.Errorf("unknown secret %q (known: %v)", name, SecretNames())
	}
	return nil
}
