package source

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"fortio.org/safecast"
)

// FileSet manages the source files a graph document refers to.
// It is filled by the loader before analysis and only read afterwards.
type FileSet struct {
	files   []File
	index   map[string]FileID // path -> id
	baseDir string            // база для относительных путей
}

// NewFileSet creates a new empty FileSet.
func NewFileSet() *FileSet {
	return NewFileSetWithBase("")
}

// NewFileSetWithBase creates a FileSet that resolves relative paths against baseDir.
func NewFileSetWithBase(baseDir string) *FileSet {
	return &FileSet{
		files:   make([]File, 0),
		index:   make(map[string]FileID),
		baseDir: baseDir,
	}
}

// SetBaseDir sets the base directory used for relative paths.
func (fileSet *FileSet) SetBaseDir(dir string) {
	fileSet.baseDir = dir
}

// BaseDir returns the base directory, falling back to the working directory.
func (fileSet *FileSet) BaseDir() string {
	if fileSet.baseDir == "" {
		if wd, err := os.Getwd(); err == nil {
			return wd
		}
	}
	return fileSet.baseDir
}

// Len returns the number of registered files.
func (fileSet *FileSet) Len() int {
	return len(fileSet.files)
}

// Add stores a file from normalized bytes, computes LineIdx and Hash, and returns a new FileID.
// It always creates a new FileID even if a file with the same path already exists.
func (fileSet *FileSet) Add(path string, content []byte, flags FileFlags) FileID {
	lenFiles, err := safecast.Conv[uint32](len(fileSet.files))
	if err != nil {
		panic(fmt.Errorf("len files overflow: %w", err))
	}
	id := FileID(lenFiles)
	normalizedPath := normalizePath(path)
	fileSet.files = append(fileSet.files, File{
		ID:      id,
		Path:    normalizedPath,
		Content: content,
		LineIdx: buildLineIndex(content),
		Hash:    sha256.Sum256(content),
		Flags:   flags,
	})
	// the index always points at the latest version of a file
	fileSet.index[normalizedPath] = id
	return id
}

// Load reads a file from disk, strips a BOM, normalizes CRLF and calls Add.
// Relative paths are resolved against the base directory.
func (fileSet *FileSet) Load(path string) (FileID, error) {
	full := path
	if !filepath.IsAbs(full) && fileSet.baseDir != "" {
		full = filepath.Join(fileSet.baseDir, path)
	}
	// #nosec G304 -- path comes from the graph document the user asked to check
	content, err := os.ReadFile(full)
	if err != nil {
		return 0, err
	}

	content, hadBOM := removeBOM(content)
	content, hadCRLF := normalizeCRLF(content)

	flags := FileFlags(0)
	if hadBOM {
		flags |= FileHadBOM
	}
	if hadCRLF {
		flags |= FileNormalizedCRLF
	}
	return fileSet.Add(full, content, flags), nil
}

// AddVirtual adds a virtual file (stdin, test, or generated) with the FileVirtual flag.
func (fileSet *FileSet) AddVirtual(name string, content []byte) FileID {
	return fileSet.Add(name, content, FileVirtual)
}

// AddMissing registers a path without content so spans into it remain addressable.
func (fileSet *FileSet) AddMissing(path string) FileID {
	full := path
	if !filepath.IsAbs(full) && fileSet.baseDir != "" {
		full = filepath.Join(fileSet.baseDir, path)
	}
	return fileSet.Add(full, nil, FileMissing)
}

// Get returns the file metadata for the given ID, or nil when the ID is unknown.
func (fileSet *FileSet) Get(id FileID) *File {
	if fileSet == nil || int(id) >= len(fileSet.files) {
		return nil
	}
	return &fileSet.files[id]
}

// GetLatest returns the latest file ID for the given path, if it exists.
func (fileSet *FileSet) GetLatest(path string) (FileID, bool) {
	id, ok := fileSet.index[normalizePath(path)]
	return id, ok
}

// GetByPath returns the latest *File registered under path.
func (fileSet *FileSet) GetByPath(path string) (*File, bool) {
	if id, ok := fileSet.index[normalizePath(path)]; ok {
		return &fileSet.files[id], true
	}
	return nil, false
}

// Resolve converts a span into line and column positions.
// Unknown files resolve to the zero LineCol.
func (fileSet *FileSet) Resolve(span Span) (start, end LineCol) {
	f := fileSet.Get(span.File)
	if f == nil {
		return LineCol{}, LineCol{}
	}
	return toLineCol(f.LineIdx, span.Start), toLineCol(f.LineIdx, span.End)
}

// Valid reports whether span lies inside a known file. Files without text accept any offsets.
func (fileSet *FileSet) Valid(span Span) bool {
	f := fileSet.Get(span.File)
	if f == nil || span.End < span.Start {
		return false
	}
	if !f.HasText() {
		return true
	}
	return int(span.End) <= len(f.Content)
}

// Text returns the source text covered by span, if the file has text.
func (fileSet *FileSet) Text(span Span) (string, bool) {
	f := fileSet.Get(span.File)
	if !f.HasText() || span.End < span.Start || int(span.End) > len(f.Content) {
		return "", false
	}
	return string(f.Content[span.Start:span.End]), true
}

// LineIndent returns the leading whitespace of the line containing off.
func (f *File) LineIndent(off uint32) string {
	if !f.HasText() || int(off) > len(f.Content) {
		return ""
	}
	start := int(off)
	for start > 0 && f.Content[start-1] != '\n' {
		start--
	}
	end := start
	for end < len(f.Content) && (f.Content[end] == ' ' || f.Content[end] == '\t') {
		end++
	}
	return string(f.Content[start:end])
}

// LineBounds returns the offsets of the first byte of the line containing off
// and of the byte after its terminating newline (or the end of the file).
func (f *File) LineBounds(off uint32) (start, next uint32) {
	if !f.HasText() {
		return off, off
	}
	n := len(f.Content)
	s := min(int(off), n)
	for s > 0 && f.Content[s-1] != '\n' {
		s--
	}
	e := min(int(off), n)
	for e < n && f.Content[e] != '\n' {
		e++
	}
	if e < n {
		e++
	}
	start, err1 := safecast.Conv[uint32](s)
	next, err2 := safecast.Conv[uint32](e)
	if err1 != nil || err2 != nil {
		return off, off
	}
	return start, next
}

// GetLine returns the 1-based line lineNum without its trailing newline.
// Lines outside the file yield an empty string.
func (f *File) GetLine(lineNum uint32) string {
	if lineNum == 0 || !f.HasText() {
		return ""
	}

	lenLineIdx, err := safecast.Conv[uint32](len(f.LineIdx))
	if err != nil {
		panic(fmt.Errorf("line index length overflow: %w", err))
	}
	lenContent, err := safecast.Conv[uint32](len(f.Content))
	if err != nil {
		panic(fmt.Errorf("content length overflow: %w", err))
	}

	var start, end uint32
	switch {
	case lineNum == 1:
		start = 0
	case lineNum-2 < lenLineIdx:
		start = f.LineIdx[lineNum-2] + 1
	default:
		return ""
	}

	if lineNum-1 < lenLineIdx {
		end = f.LineIdx[lineNum-1]
	} else {
		end = lenContent
	}
	if start > lenContent {
		return ""
	}
	return string(f.Content[start:min(end, lenContent)])
}

// FormatPath formats the file path for display.
// mode: "absolute", "relative", "basename", "auto".
func (f *File) FormatPath(mode, baseDir string) string {
	switch mode {
	case "absolute":
		if abs, err := AbsolutePath(f.Path); err == nil {
			return abs
		}
		return f.Path
	case "relative":
		if baseDir == "" {
			if wd, err := os.Getwd(); err == nil {
				baseDir = wd
			}
		}
		if rel, err := RelativePath(f.Path, baseDir); err == nil {
			return rel
		}
		return f.Path
	case "basename":
		return BaseName(f.Path)
	case "auto":
		// short and relative paths are kept as is
		if len(f.Path) < 40 || !filepath.IsAbs(f.Path) {
			return f.Path
		}
		return BaseName(f.Path)
	default:
		return f.Path
	}
}
