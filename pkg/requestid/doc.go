// Package requestid tags every HTTP request with a correlation id.
//
// Middleware reuses a well-formed X-Request-ID header or generates a UUID,
// stores it in the request context and echoes it in the response. Register
// LoggerExtractor with the logger so records written with the request
// context carry the id.
package requestid
