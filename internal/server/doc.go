// Package server implements the gameshelf wire protocol.
//
// Owns:
//   - the accept loop and per-connection dispatch (one request per connection)
//   - request-line/header parsing shared by every action
//   - the /api/<action> table, range downloads and the search engine
//   - response framing (status line, fixed headers, body)
//
// Does not own:
//   - catalog storage (library.Library implementations)
//   - the titledb feed client
//
// Invariants:
//   - every syntactically valid request gets a 200/206-framed response; action
//     failures travel in the body as {"success":false,"result":...}
//   - malformed or truncated requests get no response, only a closed connection
//   - Content-Length always equals the number of body bytes written
//   - no state is shared between connections; the library is only read
package server
