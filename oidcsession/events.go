package oidcsession

// Event subscriptions mirror the provider client's lifecycle notifications:
// user loaded, user unloaded, silent renew error, and access token expired.
// Listeners are dispatched synchronously in registration order.

// OnUserLoaded registers a listener fired when a session activates or a
// silent renew succeeds.
func (s *Session) OnUserLoaded(fn func(*User)) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.onUserLoaded = append(s.onUserLoaded, fn)
}

// OnUserUnloaded registers a listener fired when the session is cleared.
func (s *Session) OnUserUnloaded(fn func()) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.onUserUnloaded = append(s.onUserUnloaded, fn)
}

// OnSilentRenewError registers a listener fired when a silent renew fails.
func (s *Session) OnSilentRenewError(fn func(error)) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.onSilentRenewError = append(s.onSilentRenewError, fn)
}

// OnAccessTokenExpired registers a listener fired when the access token is
// found expired, before a renew is attempted.
func (s *Session) OnAccessTokenExpired(fn func()) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.onAccessTokenExpired = append(s.onAccessTokenExpired, fn)
}

func (s *Session) fireUserLoaded(user *User) {
	s.lock.Lock()
	listeners := append([]func(*User){}, s.onUserLoaded...)
	s.lock.Unlock()
	for _, fn := range listeners {
		fn(user)
	}
}

func (s *Session) fireUserUnloaded() {
	s.lock.Lock()
	listeners := append([]func(){}, s.onUserUnloaded...)
	s.lock.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (s *Session) fireSilentRenewError(err error) {
	s.lock.Lock()
	listeners := append([]func(error){}, s.onSilentRenewError...)
	s.lock.Unlock()
	for _, fn := range listeners {
		fn(err)
	}
}

func (s *Session) fireAccessTokenExpired() {
	s.lock.Lock()
	listeners := append([]func(){}, s.onAccessTokenExpired...)
	s.lock.Unlock()
	for _, fn := range listeners {
		fn()
	}
}
