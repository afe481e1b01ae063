/*
Package catalog implements the CatalogClient: a stateless HTTP GET client
for the manifest document and raw artifact bytes, identified by logical
path relative to a configured base URL and authenticated with a bearer
token.

Errors are returned as a classified *Error (NotConnected, HttpStatus,
BodyTooLarge, Timeout, MalformedResponse) so the orchestrator can apply
its own retry/backoff policy without inspecting transport internals.
Client performs no retries itself and holds no state between calls.
*/
package catalog
