package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

// hostKey loads the SSH host key at path, generating and saving an
// ed25519 key when the file does not exist.
func hostKey(path string) (ssh.Signer, error) {
	b, err := os.ReadFile(path)
	if err == nil {
		signer, err := ssh.ParsePrivateKey(b)
		if err != nil {
			return nil, errors.Wrapf(err, "host key %s", path)
		}
		glog.Infof("loaded %s host key from %s", signer.PublicKey().Type(), path)
		return signer, nil
	}
	if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "host key")
	}

	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generate host key")
	}
	signer, err := ssh.NewSignerFromKey(key)
	if err != nil {
		return nil, errors.Wrap(err, "host key signer")
	}
	block, err := ssh.MarshalPrivateKey(key, "")
	if err != nil {
		return nil, errors.Wrap(err, "marshal host key")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, errors.Wrap(err, "host key directory")
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return nil, errors.Wrap(err, "write host key")
	}
	glog.Infof("generated ed25519 host key %s (%s)", path, ssh.FingerprintSHA256(signer.PublicKey()))
	return signer, nil
}
