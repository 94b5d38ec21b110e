// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package store provides the storage handles that back persistent
// layers. A handle is a write-once byte store: its contents are
// produced by a single writer, become visible when the writer is
// committed, and are thereafter only read.
package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// A WriteCommitter is a committable write stream into a handle.
type WriteCommitter interface {
	io.Writer
	// Commit makes the written data available to Open.
	Commit(ctx context.Context) error
	// Discard abandons the write; the handle is left empty.
	Discard(ctx context.Context) error
}

// A Reader reads a committed handle.
type Reader interface {
	io.ReadSeeker
	Close(ctx context.Context) error
}

// A Handle names the storage of a single persistent layer.
type Handle interface {
	// Name returns the handle's name, for diagnostics.
	Name() string
	// Create returns a writer that populates the handle. The data are
	// not available to Open until the writer is committed.
	Create(ctx context.Context) (WriteCommitter, error)
	// Open opens the committed contents of the handle. If nothing
	// was committed, an error with kind errors.NotExist is returned.
	Open(ctx context.Context) (Reader, error)
}

// Memory is a store that maintains its handles' contents in memory.
type Memory struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemory returns a new, empty memory store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

// Handle returns the handle with the provided name.
func (m *Memory) Handle(name string) Handle {
	return memoryHandle{m, name}
}

// Remove removes the named handle's contents.
func (m *Memory) Remove(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[name]; !ok {
		return errors.E(errors.NotExist, fmt.Sprintf("remove %s", name))
	}
	delete(m.blobs, name)
	return nil
}

func (m *Memory) get(name string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blobs[name]
}

func (m *Memory) put(name string, p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blobs[name] != nil {
		return errors.E(errors.Exists, fmt.Sprintf("commit %s", name))
	}
	if p == nil {
		p = []byte{}
	}
	m.blobs[name] = p
	return nil
}

type memoryHandle struct {
	store *Memory
	name  string
}

func (h memoryHandle) Name() string { return h.name }

func (h memoryHandle) Create(ctx context.Context) (WriteCommitter, error) {
	if h.store.get(h.name) != nil {
		return nil, errors.E(errors.Exists, fmt.Sprintf("create %s", h.name))
	}
	return &memoryWriter{handle: h}, nil
}

func (h memoryHandle) Open(ctx context.Context) (Reader, error) {
	p := h.store.get(h.name)
	if p == nil {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("open %s", h.name))
	}
	return memoryReader{bytes.NewReader(p)}, nil
}

type memoryWriter struct {
	bytes.Buffer
	handle memoryHandle
}

func (w *memoryWriter) Commit(ctx context.Context) error {
	return w.handle.store.put(w.handle.name, w.Buffer.Bytes())
}

func (*memoryWriter) Discard(context.Context) error {
	return nil
}

type memoryReader struct {
	*bytes.Reader
}

func (memoryReader) Close(context.Context) error { return nil }

// Files is a store whose handles are files named under a prefix.
// Files uses grailbio/base/file, so that layers can be stored at any
// URL supported by it (e.g., S3).
type Files struct {
	// Prefix is the path under which handles are stored.
	Prefix string
}

// NewFiles returns a file store rooted at prefix.
func NewFiles(prefix string) *Files {
	return &Files{prefix}
}

// Handle returns the handle with the provided name.
func (s *Files) Handle(name string) Handle {
	return fileHandle(file.Join(s.Prefix, name))
}

// Remove removes the named handle's file.
func (s *Files) Remove(ctx context.Context, name string) error {
	return file.Remove(ctx, file.Join(s.Prefix, name))
}

type fileHandle string

func (h fileHandle) Name() string { return string(h) }

func (h fileHandle) Create(ctx context.Context) (WriteCommitter, error) {
	f, err := file.Create(ctx, string(h))
	if err != nil {
		return nil, err
	}
	return &fileWriter{File: f, Writer: f.Writer(ctx)}, nil
}

func (h fileHandle) Open(ctx context.Context) (Reader, error) {
	f, err := file.Open(ctx, string(h))
	if err != nil {
		return nil, err
	}
	return &fileReader{ReadSeeker: f.Reader(ctx), file: f}, nil
}

type fileWriter struct {
	file.File
	io.Writer
}

func (w *fileWriter) Write(p []byte) (int, error) {
	return w.Writer.Write(p)
}

func (w *fileWriter) Commit(ctx context.Context) error {
	return w.File.Close(ctx)
}

func (w *fileWriter) Discard(ctx context.Context) error {
	w.File.Discard(ctx)
	return nil
}

type fileReader struct {
	io.ReadSeeker
	file file.File
}

func (r *fileReader) Close(ctx context.Context) error {
	return closeFile(ctx, r.file)
}

type closeNoSyncer interface {
	CloseNoSync(context.Context) error
}

// CloseFile closes the provided file. It avoids syncing if the implementation
// supports it.
func closeFile(ctx context.Context, f file.File) error {
	if closer, ok := f.(closeNoSyncer); ok {
		return closer.CloseNoSync(ctx)
	}
	return f.Close(ctx)
}
