// Package session owns the authenticated identity used by every upload call.
//
// A Session starts unauthenticated and becomes authenticated only through a
// LoginStrategy run: PasswordLogin for ordinary accounts, DelegatedLogin for
// email domains that sign in through the browser. Classify picks between them
// from the email domain. Every identity change is published on an Events bus
// so status indicators can refresh; subscribers must tolerate repeats.
//
// The selected project and folder live here too, along with a memoized copy
// of the user's project tree that is dropped whenever the selection or the
// identity changes. FileTokenStore persists the session between CLI runs.
package session
