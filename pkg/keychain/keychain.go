package keychain

import (
	"errors"

	"github.com/zalando/go-keyring"
)

const serviceName = "mcprelay"

// TelegramAccount is the keychain account holding the bot token.
const TelegramAccount = "telegram"

// ErrNotFound is returned when no secret is stored for the account.
var ErrNotFound = keyring.ErrNotFound

// Get retrieves a secret from the system keychain.
func Get(account string) (string, error) {
	return keyring.Get(serviceName, account)
}

// Set stores a secret in the system keychain.
func Set(account, value string) error {
	if value == "" {
		return errors.New("refusing to store an empty secret")
	}
	return keyring.Set(serviceName, account, value)
}

// Delete removes a secret from the system keychain.
func Delete(account string) error {
	return keyring.Delete(serviceName, account)
}
