// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/vectorit/core"
)

// recordVersion prefixes every encoded record.
const recordVersion = 1

// encoder writes MUS primitives. With a nil buffer it only accumulates the
// encoded size, so the same walk sizes and then fills the buffer.
type encoder struct {
	bs []byte
	n  int
}

func (e *encoder) string(v string) {
	if e.bs == nil {
		e.n += ord.String.Size(v)
		return
	}
	e.n += ord.String.Marshal(v, e.bs[e.n:])
}

func (e *encoder) bool(v bool) {
	if e.bs == nil {
		e.n += ord.Bool.Size(v)
		return
	}
	e.n += ord.Bool.Marshal(v, e.bs[e.n:])
}

func (e *encoder) int(v int) {
	if e.bs == nil {
		e.n += varint.Int.Size(v)
		return
	}
	e.n += varint.Int.Marshal(v, e.bs[e.n:])
}

func (e *encoder) int64(v int64) {
	if e.bs == nil {
		e.n += varint.Int64.Size(v)
		return
	}
	e.n += varint.Int64.Marshal(v, e.bs[e.n:])
}

func (e *encoder) uint64(v uint64) {
	if e.bs == nil {
		e.n += varint.Uint64.Size(v)
		return
	}
	e.n += varint.Uint64.Marshal(v, e.bs[e.n:])
}

func (e *encoder) float32(v float32) {
	bits := math.Float32bits(v)
	if e.bs == nil {
		e.n += varint.Uint32.Size(bits)
		return
	}
	e.n += varint.Uint32.Marshal(bits, e.bs[e.n:])
}

// Timestamps are stored with microsecond precision.
func (e *encoder) time(t time.Time) {
	e.bool(!t.IsZero())
	if !t.IsZero() {
		e.int64(t.UnixMicro())
	}
}

func (e *encoder) timePtr(t *time.Time) {
	if t == nil {
		e.time(time.Time{})
		return
	}
	e.time(*t)
}

// decoder reads MUS primitives and latches the first error.
type decoder struct {
	bs  []byte
	n   int
	err error
}

func (d *decoder) string() string {
	if d.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) bool() bool {
	if d.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) int() int {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) int64() int64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) uint64() uint64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) float32() float32 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Uint32.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return math.Float32frombits(v)
}

func (d *decoder) time() time.Time {
	if !d.bool() {
		return time.Time{}
	}
	micros := d.int64()
	if d.err != nil {
		return time.Time{}
	}
	return time.UnixMicro(micros).UTC()
}

func (d *decoder) timePtr() *time.Time {
	t := d.time()
	if t.IsZero() {
		return nil
	}
	return &t
}

// length reads a collection length. Every element takes at least one byte,
// so a length beyond the remaining input means the record is corrupt.
func (d *decoder) length() int {
	l := d.int()
	if d.err != nil {
		return 0
	}
	if l < 0 || l > len(d.bs)-d.n {
		d.err = ErrTruncatedData
		return 0
	}
	return l
}

func (d *decoder) version() {
	v := d.int()
	if d.err == nil && v != recordVersion {
		d.err = fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
}

func (d *decoder) finish() error {
	if d.err != nil {
		return fmt.Errorf("%w: %w", ErrSerializationFailed, d.err)
	}
	return nil
}

func encodeChunkMetadata(e *encoder, m *core.ChunkMetadata) {
	e.string(string(m.Type))
	e.string(m.Heading)
	e.int(m.Level)
	e.bool(m.IsNewSection)
	e.string(m.Declaration)
	keys := make([]string, 0, len(m.Extra))
	for k := range m.Extra {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	e.int(len(keys))
	for _, k := range keys {
		e.string(k)
		e.string(m.Extra[k])
	}
}

func decodeChunkMetadata(d *decoder) core.ChunkMetadata {
	var m core.ChunkMetadata
	m.Type = core.ChunkType(d.string())
	m.Heading = d.string()
	m.Level = d.int()
	m.IsNewSection = d.bool()
	m.Declaration = d.string()
	if n := d.length(); n > 0 {
		m.Extra = make(map[string]string, n)
		for range n {
			k := d.string()
			m.Extra[k] = d.string()
		}
	}
	return m
}

func encodeTextChunk(e *encoder, c *core.TextChunk) {
	e.int(c.Index)
	e.string(c.Content)
	e.int(c.TokenCount)
	e.int(c.StartPosition)
	e.int(c.EndPosition)
	encodeChunkMetadata(e, &c.Metadata)
}

func decodeTextChunk(d *decoder) core.TextChunk {
	var c core.TextChunk
	c.Index = d.int()
	c.Content = d.string()
	c.TokenCount = d.int()
	c.StartPosition = d.int()
	c.EndPosition = d.int()
	c.Metadata = decodeChunkMetadata(d)
	return c
}

func encodeTask(e *encoder, t *core.ProcessingTask) {
	e.int(recordVersion)
	e.string(t.ID)
	e.string(t.FileName)
	e.string(t.FileType)
	e.int64(t.FileSize)
	e.int(len(t.Chunks))
	for i := range t.Chunks {
		encodeTextChunk(e, &t.Chunks[i])
	}
	e.string(string(t.Status))
	e.int(int(t.Priority))
	e.time(t.CreatedAt)
	e.timePtr(t.StartedAt)
	e.timePtr(t.CompletedAt)
	e.int(t.Progress)
	e.string(t.Error)
	e.int(t.Options.BatchSize)
	e.int(t.Options.MaxRetries)
	e.int64(int64(t.Options.Timeout))
	e.string(t.Metadata.UserID)
	e.string(t.Metadata.Source)
	e.bool(t.Metadata.IsParentTask)
	e.int(len(t.Metadata.SubTaskIDs))
	for _, id := range t.Metadata.SubTaskIDs {
		e.string(id)
	}
	e.string(t.Metadata.ParentTaskID)
	e.int(t.Metadata.PartNumber)
	e.int(t.Metadata.TotalParts)
	e.string(t.Metadata.ContinuationOf)
	e.string(t.Metadata.ContinuedBy)
}

func decodeTask(d *decoder) *core.ProcessingTask {
	t := &core.ProcessingTask{}
	d.version()
	t.ID = d.string()
	t.FileName = d.string()
	t.FileType = d.string()
	t.FileSize = d.int64()
	if n := d.length(); n > 0 {
		t.Chunks = make([]core.TextChunk, 0, n)
		for range n {
			t.Chunks = append(t.Chunks, decodeTextChunk(d))
		}
	}
	t.Status = core.TaskStatus(d.string())
	t.Priority = core.Priority(d.int())
	t.CreatedAt = d.time()
	t.StartedAt = d.timePtr()
	t.CompletedAt = d.timePtr()
	t.Progress = d.int()
	t.Error = d.string()
	t.Options.BatchSize = d.int()
	t.Options.MaxRetries = d.int()
	t.Options.Timeout = time.Duration(d.int64())
	t.Metadata.UserID = d.string()
	t.Metadata.Source = d.string()
	t.Metadata.IsParentTask = d.bool()
	if n := d.length(); n > 0 {
		t.Metadata.SubTaskIDs = make([]string, 0, n)
		for range n {
			t.Metadata.SubTaskIDs = append(t.Metadata.SubTaskIDs, d.string())
		}
	}
	t.Metadata.ParentTaskID = d.string()
	t.Metadata.PartNumber = d.int()
	t.Metadata.TotalParts = d.int()
	t.Metadata.ContinuationOf = d.string()
	t.Metadata.ContinuedBy = d.string()
	return t
}

func encodeEmbeddedChunk(e *encoder, c *core.EmbeddedChunk) {
	e.int(recordVersion)
	e.uint64(uint64(c.Id))
	e.string(c.FileKey)
	e.int(c.ChunkIndex)
	e.string(c.Content)
	e.int(c.TokenCount)
	e.int(c.Start)
	e.int(c.End)
	encodeChunkMetadata(e, &c.Metadata)
	e.int(len(c.Vector))
	for _, f := range c.Vector {
		e.float32(f)
	}
	e.time(c.InsertedAt)
}

func decodeEmbeddedChunk(d *decoder) *core.EmbeddedChunk {
	c := &core.EmbeddedChunk{}
	d.version()
	c.Id = core.ID(d.uint64())
	c.FileKey = d.string()
	c.ChunkIndex = d.int()
	c.Content = d.string()
	c.TokenCount = d.int()
	c.Start = d.int()
	c.End = d.int()
	c.Metadata = decodeChunkMetadata(d)
	if n := d.length(); n > 0 {
		c.Vector = make([]float32, n)
		for i := range n {
			c.Vector[i] = d.float32()
		}
	}
	c.InsertedAt = d.time()
	return c
}

func marshal[T any](v T, encode func(*encoder, T)) []byte {
	var sizer encoder
	encode(&sizer, v)
	e := encoder{bs: make([]byte, sizer.n)}
	encode(&e, v)
	return e.bs
}

// MarshalTask serializes a ProcessingTask to bytes.
func MarshalTask(t *core.ProcessingTask) []byte {
	return marshal(t, encodeTask)
}

// UnmarshalTask deserializes a ProcessingTask from bytes.
func UnmarshalTask(data []byte) (*core.ProcessingTask, error) {
	d := decoder{bs: data}
	t := decodeTask(&d)
	if err := d.finish(); err != nil {
		return nil, err
	}
	return t, nil
}

// MarshalEmbeddedChunk serializes an EmbeddedChunk to bytes.
func MarshalEmbeddedChunk(c *core.EmbeddedChunk) []byte {
	return marshal(c, encodeEmbeddedChunk)
}

// UnmarshalEmbeddedChunk deserializes an EmbeddedChunk from bytes.
func UnmarshalEmbeddedChunk(data []byte) (*core.EmbeddedChunk, error) {
	d := decoder{bs: data}
	c := decodeEmbeddedChunk(&d)
	if err := d.finish(); err != nil {
		return nil, err
	}
	return c, nil
}
