package config

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/ssh"
)

// ErrBadPassword is returned when a password does not match its hash.
var ErrBadPassword = errors.New("bad password")

const argon2Prefix = "$argon2id$"

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(h), nil
}

// CheckPassword returns nil if password matches hash, a bcrypt hash or
// an argon2id hash in the $argon2id$v=19$m=..,t=..,p=..$salt$key form.
func CheckPassword(hash, password string) error {
	if strings.HasPrefix(hash, argon2Prefix) {
		return checkArgon2(hash, password)
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrBadPassword
	}
	return err
}

func checkArgon2(hash, password string) error {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[2] != "v=19" {
		return errors.New("argon2id: bad hash format")
	}
	var (
		memory, time uint32
		threads      uint8
	)
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return errors.Wrap(err, "argon2id: bad parameters")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return errors.Wrap(err, "argon2id: bad salt")
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return errors.Wrap(err, "argon2id: bad key")
	}
	got := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(want)))
	if subtle.ConstantTimeCompare(want, got) != 1 {
		return ErrBadPassword
	}
	return nil
}

func isHash(h string) bool {
	if strings.HasPrefix(h, argon2Prefix) {
		return true
	}
	_, err := bcrypt.Cost([]byte(h))
	return err == nil
}

// PasswordCallback returns an SSH password callback accepting the
// server's users.
func (s Server) PasswordCallback() func(ssh.ConnMetadata, []byte) (*ssh.Permissions, error) {
	hashes := make(map[string]string, len(s.Users))
	for _, u := range s.Users {
		hashes[u.Name] = u.PasswordHash
	}
	return func(md ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
		hash, ok := hashes[md.User()]
		if !ok {
			return nil, errors.Errorf("unknown user %q", md.User())
		}
		if err := CheckPassword(hash, string(password)); err != nil {
			return nil, errors.Wrapf(err, "user %q", md.User())
		}
		return nil, nil
	}
}
