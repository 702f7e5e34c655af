// Package auth protects the standin control API.
//
// Callers present an HS256 JWT in the Authorization header. Tokens carry a
// subject and a role: operators may change agent state, viewers may only
// read. Tokens are minted with `standin token` using the configured
// auth.jwt_secret; when no secret is configured the API is served without
// authentication and the server logs a warning at startup.
package auth
