// Package fintrack provides the client-side session layer for the finance
// app: session state machine, credential handling, and HTTP helpers for
// route guarding.
//
// Session lifecycle:
//   - Session owns the (user, account, state) triple and mutates it
//     atomically. States cover uninitialized, bootstrapping,
//     authenticated, and unauthenticated; every transition goes through
//     the transition table and stale async completions are discarded.
//   - Subscribe attaches the session to the identity provider's account
//     stream, seeds the profile from the persisted snapshot, and
//     resurrects the credential from the stored refresh token when the
//     provider supports it.
//
// Credentials:
//   - Account is the provider-issued credential handle. AccessToken
//     always yields a currently valid token, refreshing transparently.
//     TokenPairCredential is the backend access/refresh implementation.
//   - Session implements TokenSource for the request pipeline: an absent
//     session yields an empty token, never an error.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter describing login,
//     registration, logout, token refresh, and password events. Sinks run
//     best-effort so hosts can forward to a database or queue without
//     blocking authentication.
package fintrack
