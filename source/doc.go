// Package source resolves object keys to raw document bytes.
//
// FileStore reads a local directory, MinioStore a MinIO bucket and S3Store
// an S3 bucket. None of them retry failed fetches.
package source
