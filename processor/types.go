package processor

import (
	"encoding/hex"
	"fmt"
)

// Account is a fixed-size account identifier. The zero value is the null
// account and is never a valid transfer party.
type Account [32]byte

// Token identifies the asset a payment is denominated in. The zero value is
// NativeToken, the chain's base asset.
type Token [32]byte

// ModuleID identifies the application module originating a payment
// (marketplace, subscriptions, contests, donations).
type ModuleID [32]byte

// NativeToken is the sentinel for the chain's native currency.
var NativeToken = Token{}

// IsZero reports whether the account is the null account.
func (a Account) IsZero() bool {
	return a == Account{}
}

func (a Account) String() string {
	return hex.EncodeToString(a[:])
}

// MarshalText implements encoding.TextMarshaler so accounts render as hex in
// JSON settlement records and config files.
func (a Account) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(a[:])), nil
}

func (a *Account) UnmarshalText(text []byte) error {
	return decodeFixedHex(text, a[:])
}

// IsNative reports whether the token is the native currency sentinel.
func (t Token) IsNative() bool {
	return t == NativeToken
}

func (t Token) String() string {
	return hex.EncodeToString(t[:])
}

func (t Token) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(t[:])), nil
}

func (t *Token) UnmarshalText(text []byte) error {
	return decodeFixedHex(text, t[:])
}

func (m ModuleID) String() string {
	return hex.EncodeToString(m[:])
}

func (m ModuleID) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(m[:])), nil
}

func (m *ModuleID) UnmarshalText(text []byte) error {
	return decodeFixedHex(text, m[:])
}

// ModuleIDFromString parses a hex module identifier as used in pipeline
// config files. Short input is left-padded with zeros so configs can use
// readable names like "6d61726b6574" without spelling out 64 hex digits.
func ModuleIDFromString(s string) (ModuleID, error) {
	var m ModuleID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return m, fmt.Errorf("invalid module id %q: %v", s, err)
	}
	if len(raw) > len(m) {
		return m, fmt.Errorf("module id %q longer than %d bytes", s, len(m))
	}
	copy(m[len(m)-len(raw):], raw)
	return m, nil
}

// AccountFromString parses a hex account identifier, left-padded like module ids.
func AccountFromString(s string) (Account, error) {
	var a Account
	raw, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("invalid account %q: %v", s, err)
	}
	if len(raw) > len(a) {
		return a, fmt.Errorf("account %q longer than %d bytes", s, len(a))
	}
	copy(a[len(a)-len(raw):], raw)
	return a, nil
}

// TokenFromString parses a hex token identifier. The empty string and "native"
// map to the native currency sentinel.
func TokenFromString(s string) (Token, error) {
	if s == "" || s == "native" {
		return NativeToken, nil
	}
	var t Token
	raw, err := hex.DecodeString(s)
	if err != nil {
		return t, fmt.Errorf("invalid token %q: %v", s, err)
	}
	if len(raw) > len(t) {
		return t, fmt.Errorf("token %q longer than %d bytes", s, len(t))
	}
	copy(t[len(t)-len(raw):], raw)
	return t, nil
}

func decodeFixedHex(text []byte, dst []byte) error {
	raw, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("expected %d bytes, got %d", len(dst), len(raw))
	}
	copy(dst, raw)
	return nil
}
