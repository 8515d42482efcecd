package queueaccess

import (
	"errors"
	"fmt"

	"marketintel/internal/daemonctl"
	"marketintel/internal/queue"
)

// Session is an Access plus whatever must be closed once the command is done.
type Session struct {
	Access  Access
	release func() error
}

func (s Session) Close() error {
	if s.release != nil {
		return s.release()
	}
	return nil
}

// OpenWithFallback prefers the running daemon. When dial fails the queue
// database is opened directly so read commands and submissions still work.
func OpenWithFallback(
	dial func() (*daemonctl.Client, error),
	openStore func() (*queue.Store, error),
) (Session, error) {
	if dial != nil {
		client, err := dial()
		if err == nil {
			return Session{Access: NewAPIAccess(client), release: client.Close}, nil
		}
	}
	if openStore == nil {
		return Session{}, errors.New("open queue store: daemon unreachable and no store opener")
	}
	store, err := openStore()
	if err != nil {
		return Session{}, fmt.Errorf("open queue store: %w", err)
	}
	return Session{Access: NewStoreAccess(store), release: store.Close}, nil
}
