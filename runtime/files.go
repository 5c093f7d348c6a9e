package runtime

import (
	"bufio"
	stderrors "errors"
	"io"
	"os"
	"strings"

	"github.com/wippyai/asyncgraph/errors"
)

type openFile struct {
	f *os.File
	r *bufio.Reader
}

// fileTable maps guest file handles to files below the configured root.
// Handle 0 is never issued.
type fileTable struct {
	rootPath string
	root     *os.Root
	handles  map[uint32]*openFile
	next     uint32
}

func newFileTable(rootPath string) *fileTable {
	return &fileTable{rootPath: rootPath, handles: make(map[uint32]*openFile), next: 1}
}

// open returns a handle for name, or false when the file cannot be opened.
func (t *fileTable) open(name string) (uint32, bool) {
	if t.rootPath == "" {
		return 0, false
	}
	if t.root == nil {
		root, err := os.OpenRoot(t.rootPath)
		if err != nil {
			return 0, false
		}
		t.root = root
	}
	f, err := t.root.OpenFile(name, os.O_RDWR, 0)
	if err != nil {
		if f, err = t.root.Open(name); err != nil {
			return 0, false
		}
	}
	h := t.next
	t.next++
	t.handles[h] = &openFile{f: f, r: bufio.NewReader(f)}
	return h, true
}

func (t *fileTable) get(h uint32) (*openFile, error) {
	of, ok := t.handles[h]
	if !ok {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Value(h).Detail("unknown file handle %d", h).Build()
	}
	return of, nil
}

// readLine returns the next line without its terminator, or false at end
// of file.
func (t *fileTable) readLine(h uint32) (string, bool, error) {
	of, err := t.get(h)
	if err != nil {
		return "", false, err
	}
	line, err := of.r.ReadString('\n')
	if err != nil && !stderrors.Is(err, io.EOF) {
		return "", false, errors.Wrap(errors.PhaseRuntime, errors.KindInvalidInput, err, "read line")
	}
	if line == "" && err != nil {
		return "", false, nil
	}
	return strings.TrimRight(line, "\r\n"), true, nil
}

func (t *fileTable) write(h uint32, data []byte) error {
	of, err := t.get(h)
	if err != nil {
		return err
	}
	if _, err := of.f.Write(data); err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindInvalidInput, err, "write file")
	}
	return nil
}

func (t *fileTable) close(h uint32) error {
	of, err := t.get(h)
	if err != nil {
		return err
	}
	delete(t.handles, h)
	return of.f.Close()
}

func (t *fileTable) closeAll() error {
	var errs []error
	for h, of := range t.handles {
		errs = append(errs, of.f.Close())
		delete(t.handles, h)
	}
	if t.root != nil {
		errs = append(errs, t.root.Close())
		t.root = nil
	}
	return stderrors.Join(errs...)
}
