/*
Package security authenticates and authorizes panel users.

Three pieces cooperate on every request:

	POST /token ──► IdentityProvider.Authenticate ──► TokenIssuer.Issue
	                                                       │
	Authorization: Bearer <jwt>                            ▼
	      └──► TokenIssuer.Verify ──► IdentityProvider.Lookup ──► Authorizer

# Identity

UsersFile is the default IdentityProvider: a JSON document of bcrypt hashes,
managed with `netpanel user add|passwd|disable`. It is re-read whenever its
modification time changes, so a running server picks up CLI edits without a
restart. Unknown users, wrong passwords and disabled accounts all produce
ErrInvalidCredentials.

# Tokens

TokenIssuer signs HMAC JWTs (HS256, HS384 or HS512) carrying sub, iat and
exp. Verification pins the configured algorithm, requires an expiry and maps
every failure to ErrInvalidToken.

# Access group

GroupAuthorizer restricts the panel to members of one system group given by
GID. An empty GID disables the check.
*/
package security
