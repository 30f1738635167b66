// Package simpleimage coordinates a blob store holding image content with a
// metadata store holding the image records, so that a single Image spans two
// independently consistent backends.
//
// It exposes a single Service interface that orchestrates image creation
// (blob first, then metadata), lookup by identity, label search, deletion
// (blob first, then metadata) and content download. Implementations of
// metadata stores (memory, Postgres, Badger, DynamoDB) and blob stores
// (memory, filesystem, S3) are provided under subpackages.
//
// Consistency Model
//
// There are no cross-store transactions. A create whose metadata write fails
// after the blob write succeeded leaves one orphan blob behind; a delete whose
// blob removal fails leaves both the blob and the record in place. Both cases
// are reported to the caller as typed errors and are never repaired in the
// background.
//
// Composite Keys
//
// Records are addressed by (ID, ObjectPath). Callers only know the ID, so
// single-image lookups are expressed as a filtered scan limited to the first
// match. Stores may answer such a scan from a partition index.
package simpleimage
