package processor

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// MaxAllowedTokens caps the per-module allow-list size.
const MaxAllowedTokens = 32

// allowList keeps both a set for the gate and the insertion order for
// introspection.
type allowList struct {
	ordered []Token
	members map[Token]bool
}

// TokenFilterProcessor is a pure gate: payments in a token outside the
// module's allow-list fail, everything else passes through untouched.
type TokenFilterProcessor struct {
	mu    sync.RWMutex
	lists map[ModuleID]*allowList
}

func NewTokenFilterProcessor(config map[string]interface{}) (*TokenFilterProcessor, error) {
	t := &TokenFilterProcessor{lists: make(map[ModuleID]*allowList)}

	if modules, ok := config["modules"].(map[interface{}]interface{}); ok {
		for rawModule, rawTokens := range modules {
			moduleStr, ok := rawModule.(string)
			if !ok {
				return nil, fmt.Errorf("invalid module key %v in TokenFilter config", rawModule)
			}
			moduleID, err := ModuleIDFromString(moduleStr)
			if err != nil {
				return nil, err
			}
			tokenList, ok := rawTokens.([]interface{})
			if !ok {
				return nil, fmt.Errorf("invalid token list for module %s in TokenFilter config", moduleStr)
			}
			list := newAllowList()
			for _, rawToken := range tokenList {
				tokenStr, ok := rawToken.(string)
				if !ok {
					return nil, fmt.Errorf("invalid token %v for module %s in TokenFilter config", rawToken, moduleStr)
				}
				token, err := TokenFromString(tokenStr)
				if err != nil {
					return nil, err
				}
				if err := list.add(token); err != nil {
					return nil, fmt.Errorf("module %s: %w", moduleStr, err)
				}
			}
			t.lists[moduleID] = list
		}
	}

	return t, nil
}

func newAllowList() *allowList {
	return &allowList{members: make(map[Token]bool)}
}

func (l *allowList) add(token Token) error {
	if l.members[token] {
		return fmt.Errorf("token %s already allowed: %w", token, ErrInvalidParameter)
	}
	if len(l.ordered) >= MaxAllowedTokens {
		return fmt.Errorf("allow-list full: %w", ErrInvalidParameter)
	}
	l.members[token] = true
	l.ordered = append(l.ordered, token)
	return nil
}

func (t *TokenFilterProcessor) Name() string    { return "TokenFilterProcessor" }
func (t *TokenFilterProcessor) Version() string { return "1.0.0" }

// IsApplicable reports whether the module has an allow-list at all; modules
// without one accept any token.
func (t *TokenFilterProcessor) IsApplicable(p PaymentContext) bool {
	t.mu.RLock()
	_, ok := t.lists[p.ModuleID]
	t.mu.RUnlock()
	return ok
}

func (t *TokenFilterProcessor) Process(ctx context.Context, p PaymentContext) (PaymentContext, Result) {
	t.mu.RLock()
	list, ok := t.lists[p.ModuleID]
	allowed := ok && list.members[p.Token]
	t.mu.RUnlock()

	if !ok {
		return p, ResultSkipped
	}
	if !allowed {
		log.Printf("TokenFilterProcessor: payment %s module %s rejected token %s",
			p.PaymentID, p.ModuleID, p.Token)
		return p.WithError("token not allowed"), ResultFailed
	}
	return p, ResultSkipped
}

// Configure replaces the module's allow-list wholesale. Blob layout: a packed
// sequence of 32-byte token identifiers.
func (t *TokenFilterProcessor) Configure(moduleID ModuleID, blob []byte) error {
	if len(blob)%32 != 0 {
		return ErrInvalidConfigLength
	}
	list := newAllowList()
	for off := 0; off < len(blob); off += 32 {
		var token Token
		copy(token[:], blob[off:off+32])
		if err := list.add(token); err != nil {
			return err
		}
	}

	t.mu.Lock()
	t.lists[moduleID] = list
	t.mu.Unlock()
	return nil
}

// SupportedTokens returns the module's allow-list in insertion order. The
// second result is false when the module has no list configured.
func (t *TokenFilterProcessor) SupportedTokens(moduleID ModuleID) ([]Token, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	list, ok := t.lists[moduleID]
	if !ok {
		return nil, false
	}
	out := make([]Token, len(list.ordered))
	copy(out, list.ordered)
	return out, true
}
