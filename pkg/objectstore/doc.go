// Package objectstore provides a digital object / payload model on top of
// pluggable blob store drivers.
//
// Callers see a flat namespace of digital objects, each identified by an
// opaque OID and holding a small set of named payloads. Every object is
// persisted as a prefix in a single container: payload bytes live at
// "oid/pid", the authoritative payload list lives in the JSON manifest at
// "oid/object-manifest", and payload metadata is attached to the payload blob
// as user metadata. Drivers that cannot carry user metadata get a sidecar
// properties blob at "oid/pid.meta" instead.
//
// Metadata Strategy
//
// Each payload carries the keys id, payloadtype, label, linked and
// contenttype. The sidecar and native forms hold the same map, so a payload
// written in one mode reads back identically in the other as long as the
// capability flag stays stable for the container.
//
// Drivers for memory, filesystem, S3, Swift, GridFS, MinIO, Azure Blob,
// Google Cloud Storage and Postgres live under the driver subpackages; the
// config subpackage maps a "storage.blobstore" JSON document onto one of them.
package objectstore
