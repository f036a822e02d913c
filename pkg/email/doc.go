// Package email sends transactional mail: Postmark in production, files on
// disk in development. Bodies are templ components rendered by the
// templates subpackage.
package email
