// Package server exposes the tracker over HTTP with echo.
//
// Items are uploaded as multipart files, processed in the background and
// polled through GET /api/items. Expansion work is bound to the server's
// lifetime, not to the request that started it.
package server
