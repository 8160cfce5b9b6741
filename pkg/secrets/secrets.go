// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package secrets holds provider API keys in memguard enclaves.
//
// Keys are resolved from an environment variable first and a Docker/Podman
// secret file second (for example /run/secrets/tavily_api_key). The raw
// bytes are moved into an encrypted enclave immediately and the source
// buffer is wiped; callers open the key only for the duration of a request.
//
// # Thread Safety
//
// Key is safe for concurrent use. Each Reveal/Use call opens its own
// LockedBuffer.
package secrets

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/awnumar/memguard"
)

// ErrNotFound is returned when neither the environment variable nor the
// secret file provides a value.
var ErrNotFound = errors.New("secret not found")

// Purge wipes every memguard allocation. Call during shutdown; signal
// handling is left to the caller.
func Purge() {
	memguard.Purge()
}

// Key is an API key sealed in a memguard enclave.
type Key struct {
	name    string
	enclave *memguard.Enclave
}

// NewKey seals value into a Key. The value slice is wiped.
func NewKey(name string, value []byte) (*Key, error) {
	value = bytes.TrimSpace(value)
	if len(value) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	memguard.WipeBytes(value)
	return &Key{name: name, enclave: memguard.NewEnclave(buf)}, nil
}

// Lookup resolves a key from envVar, falling back to secretPath.
//
// Returns ErrNotFound (wrapped with the key name) when neither source
// yields a non-empty value.
func Lookup(name, envVar, secretPath string) (*Key, error) {
	if envVar != "" {
		if v := os.Getenv(envVar); v != "" {
			return NewKey(name, []byte(v))
		}
	}
	if secretPath != "" {
		data, err := os.ReadFile(secretPath)
		if err == nil {
			return NewKey(name, data)
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading secret %s: %w", secretPath, err)
		}
	}
	return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
}

// Name returns the key's logical name (safe to log).
func (k *Key) Name() string {
	return k.name
}

// Use opens the enclave, passes the plaintext to fn and destroys the
// buffer when fn returns.
func (k *Key) Use(fn func(value string) error) error {
	buf, err := k.enclave.Open()
	if err != nil {
		return fmt.Errorf("opening %s enclave: %w", k.name, err)
	}
	defer buf.Destroy()
	return fn(buf.String())
}

// Reveal returns a heap copy of the plaintext for SDKs that only accept
// strings. Prefer Use where the client allows per-request injection.
func (k *Key) Reveal() (string, error) {
	var out string
	err := k.Use(func(value string) error {
		out = string([]byte(value))
		return nil
	})
	return out, err
}
