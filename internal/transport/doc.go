// Package transport serves analysis outputs over HTTP. The server is
// strictly read-only: it lists run manifests and streams the rendered
// report files; no endpoint mutates anything.
package transport
