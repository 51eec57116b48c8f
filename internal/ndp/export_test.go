package ndp

// RefreshLifetime exposes the RFC 4862 Section 5.5.3(e) rule to tests.
var RefreshLifetime = refreshLifetime
