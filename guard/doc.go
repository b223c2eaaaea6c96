// Package guard keeps a group chat's title and photo at their canonical values.
//
// Engine runs one reconciliation cycle: wait a short pre-check delay, fetch
// the chat metadata, then compare the photo and the title against the
// configured reference and restore whichever drifted. Photo drift is decided
// in two steps. A photo URL equal to the cached last-known-good URL means
// nothing changed. Any other URL is downloaded into a temp blob and hashed
// against the reference image, because the chat API re-hosts unchanged photos
// under new URLs. When the content matches, the new URL is cached instead of
// re-uploading.
//
// Scheduler drives Engine on a fixed interval and never lets two cycles
// overlap. A failed cycle is logged and retried by the next tick; nothing
// below the cycle boundary retries on its own.
//
// The chat API, the image host and the URL cache are reached through the
// ChatClient, ImageFetcher and CacheStore interfaces. Adapters wrap their
// failures with ErrAuth, ErrRemoteAPI, ErrUpload, ErrIO or ErrCacheMiss.
package guard
