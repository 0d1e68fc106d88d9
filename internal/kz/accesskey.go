package kz

import (
	"fmt"

	"github.com/google/uuid"
)

// AccessKey is the long-lived UUIDv7 credential a server presents to mint
// short-lived bearer tokens (spec.md §4.3). The zero UUID is a reserved
// "invalid" sentinel that matches no server.
type AccessKey uuid.UUID

// InvalidAccessKey is the sentinel that matches nothing.
func InvalidAccessKey() AccessKey { return AccessKey(uuid.Nil) }

// IsValid reports whether the key is not the invalid sentinel.
func (k AccessKey) IsValid() bool { return k != InvalidAccessKey() }

// NewAccessKey mints a fresh UUIDv7-based access key.
func NewAccessKey() (AccessKey, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return AccessKey{}, fmt.Errorf("accesskey: generate uuidv7: %w", err)
	}
	return AccessKey(id), nil
}

// String renders the canonical UUID text form.
func (k AccessKey) String() string {
	return uuid.UUID(k).String()
}

// ParseAccessKey parses the canonical UUID text form.
func ParseAccessKey(s string) (AccessKey, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return AccessKey{}, fmt.Errorf("accesskey: %w", err)
	}
	return AccessKey(id), nil
}

// MarshalBinary returns the 16 raw bytes, matching the "UUIDv7 stored as
// fixed 16 bytes" persistence rule from spec.md §6.
func (k AccessKey) MarshalBinary() ([]byte, error) {
	return uuid.UUID(k).MarshalBinary()
}

// UnmarshalBinary reads the 16 raw bytes produced by MarshalBinary.
func (k *AccessKey) UnmarshalBinary(data []byte) error {
	var id uuid.UUID
	if err := id.UnmarshalBinary(data); err != nil {
		return err
	}
	*k = AccessKey(id)
	return nil
}
