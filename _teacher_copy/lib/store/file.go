package store

import "code.uber.internal/infra/kraken/lib/store/base"

// FileReadWriter is a readable, writable file.
type FileReadWriter = base.FileReadWriter

// FileReader is a read-only file.
type FileReader = base.FileReader
