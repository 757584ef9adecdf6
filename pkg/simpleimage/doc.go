// Package simpleimage manages image objects and their metadata across two
// independently failing stores: a blob store holding the file bytes and a
// repository holding the queryable attributes.
//
// The Service coordinates the image lifecycle (upload, retrieval, delete) and
// answers filtered, cursor-paginated listings. It never locks across stores:
// consistency is best effort, and every partial outcome is reported with a
// typed error naming the orphaned side so a reconciler can clean it up.
//
// Blob stores (memory, filesystem, S3) and repositories (memory, Postgres,
// Badger) are provided under subpackages.
//
// # Ordering
//
// Listings are ordered by CreatedAt descending with ties broken by ImageID
// ascending. Every repository must return records in exactly this order and
// resume strictly after the SortKey it is given.
package simpleimage
