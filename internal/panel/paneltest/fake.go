// Package paneltest provides an in-memory PanelClient for tests.
package paneltest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"vpnstore/internal/panel"
)

// Fake is an in-memory panel. Set the *Err fields to inject failures.
type Fake struct {
	mu       sync.Mutex
	accounts map[string]*panel.Account
	seq      int64

	CreateErr error
	UpdateErr error
	ResetErr  error
	DeleteErr error
	LinkErr   error

	Creates atomic.Int64
	Updates atomic.Int64
	Resets  atomic.Int64
	Deletes atomic.Int64

	// Calls records the order of mutating calls, e.g. "update", "reset".
	Calls []string
}

var _ panel.PanelClient = (*Fake)(nil)

func New() *Fake {
	return &Fake{accounts: make(map[string]*panel.Account)}
}

func (f *Fake) PanelType() string { return "fake" }

func (f *Fake) record(call string) {
	f.Calls = append(f.Calls, call)
}

func (f *Fake) CreateAccount(_ context.Context, req panel.CreateAccountRequest) (*panel.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Creates.Add(1)
	f.record("create")
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	for _, acc := range f.accounts {
		if acc.Username == req.Username {
			return nil, fmt.Errorf("username %s already exists", req.Username)
		}
	}
	f.seq++
	id := fmt.Sprintf("uuid-%d", f.seq)
	acc := &panel.Account{
		ID:                id,
		ShortID:           fmt.Sprintf("s%d", f.seq),
		Username:          req.Username,
		SubscriptionURL:   "https://panel.test/sub/" + id,
		TrafficLimitBytes: req.TrafficLimitBytes,
		ExpireAt:          req.ExpireAt,
		Enabled:           true,
	}
	f.accounts[id] = acc
	cp := *acc
	return &cp, nil
}

func (f *Fake) UpdateAccount(_ context.Context, req panel.UpdateAccountRequest) (*panel.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Updates.Add(1)
	f.record("update")
	if f.UpdateErr != nil {
		return nil, f.UpdateErr
	}
	acc, ok := f.accounts[req.ID]
	if !ok {
		return nil, panel.ErrAccountNotFound
	}
	acc.TrafficLimitBytes = req.TrafficLimitBytes
	acc.ExpireAt = req.ExpireAt
	acc.Enabled = req.Enabled
	cp := *acc
	return &cp, nil
}

func (f *Fake) ResetUsage(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Resets.Add(1)
	f.record("reset")
	if f.ResetErr != nil {
		return f.ResetErr
	}
	acc, ok := f.accounts[id]
	if !ok {
		return panel.ErrAccountNotFound
	}
	acc.UsedTrafficBytes = 0
	return nil
}

func (f *Fake) DeleteAccount(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deletes.Add(1)
	f.record("delete")
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	delete(f.accounts, id)
	return nil
}

func (f *Fake) GetAccountByUsername(_ context.Context, username string) (*panel.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, acc := range f.accounts {
		if acc.Username == username {
			cp := *acc
			return &cp, nil
		}
	}
	return nil, panel.ErrAccountNotFound
}

func (f *Fake) GetSubscriptionLink(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LinkErr != nil {
		return "", f.LinkErr
	}
	acc, ok := f.accounts[id]
	if !ok {
		return "", panel.ErrAccountNotFound
	}
	return acc.SubscriptionURL, nil
}

// Account returns a copy of the stored account.
func (f *Fake) Account(id string) (*panel.Account, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[id]
	if !ok {
		return nil, false
	}
	cp := *acc
	return &cp, true
}

// Len returns the number of live accounts.
func (f *Fake) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.accounts)
}

// SetUsage simulates traffic consumption.
func (f *Fake) SetUsage(id string, used int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[id]
	if !ok {
		return errors.New("no such account")
	}
	acc.UsedTrafficBytes = used
	return nil
}

// SetLink replaces the subscription URL, as a panel-side rotation would.
func (f *Fake) SetLink(id, link string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if acc, ok := f.accounts[id]; ok {
		acc.SubscriptionURL = link
	}
}
