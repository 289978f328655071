// Package reembed recomputes the vectors of every stored chunk, typically
// after the embedding model or its dimensions change.
//
// Files are read from a storage.VectorRepository in batches, embedded with the
// same chunk processor the background pipeline uses, and written back in
// place. Chunk content, positions and metadata are left untouched.
package reembed
