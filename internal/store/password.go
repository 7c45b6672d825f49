package store

import (
	"did-vault/go-backend/internal/domains/contracts"
)

// ChangePassword re-encrypts the root identity, the mnemonic and every
// private key. Storage applies it atomically, so a wrong old password
// leaves every secret untouched.
func (s *Store) ChangePassword(oldPassword, newPassword string) (err error) {
	const op = "changePassword"
	defer func() { err = s.finish(op, err) }()

	if err := requirePassword(op, oldPassword); err != nil {
		return err
	}
	if err := requirePassword(op, newPassword); err != nil {
		return err
	}
	rewritten := 0
	err = s.storage.ReEncrypt(func(encrypted string) (string, error) {
		next, err := s.codec.ReEncrypt(encrypted, oldPassword, newPassword)
		if err != nil {
			return "", contracts.NewError(op, "", contracts.ErrWrongPassword, err)
		}
		rewritten++
		return next, nil
	})
	if err != nil {
		return contracts.StorageFailure(op, err)
	}
	s.logger.Info("store password changed", "operation", op, "secrets", rewritten)
	return nil
}
