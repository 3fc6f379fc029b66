package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Rotator is an io.Writer that rotates the log file by size, keeping a
// bounded number of numbered backups (engine.log.1 is the newest).
type Rotator struct {
	Filename   string
	MaxSize    int64 // bytes
	MaxBackups int

	mu   sync.Mutex
	file *os.File
	size int64
}

// Setup points the standard logger at stdout plus a rotating file. If the
// file cannot be opened the engine keeps running on stdout alone.
func Setup(filename string, maxSizeMB int64, maxBackups int) {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	r := &Rotator{
		Filename:   filename,
		MaxSize:    maxSizeMB * 1024 * 1024,
		MaxBackups: maxBackups,
	}
	if err := r.open(); err != nil {
		log.Printf("WARN: log file unavailable, stdout only: %v", err)
		return
	}
	log.SetOutput(io.MultiWriter(os.Stdout, r))
}

func (r *Rotator) open() error {
	info, err := os.Stat(r.Filename)
	switch {
	case os.IsNotExist(err):
		return r.create()
	case err != nil:
		return err
	}
	f, err := os.OpenFile(r.Filename, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	r.file = f
	r.size = info.Size()
	return nil
}

func (r *Rotator) create() error {
	f, err := os.OpenFile(r.Filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	r.file = f
	r.size = 0
	return nil
}

// Write satisfies io.Writer, rotating first when the entry would push the
// file past MaxSize.
func (r *Rotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.open(); err != nil {
			return 0, err
		}
	}
	if r.size+int64(len(p)) > r.MaxSize {
		if err := r.rotate(); err != nil {
			// Keep writing to the oversized file rather than drop logs.
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}
	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *Rotator) rotate() error {
	if r.file != nil {
		r.file.Close()
	}

	// Shift backups up and drop the oldest: .2 -> .3, .1 -> .2, live -> .1
	oldest := fmt.Sprintf("%s.%d", r.Filename, r.MaxBackups)
	os.Remove(oldest)
	for i := r.MaxBackups - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", r.Filename, i)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		os.Rename(src, fmt.Sprintf("%s.%d", r.Filename, i+1))
	}
	if _, err := os.Stat(r.Filename); err == nil {
		os.Rename(r.Filename, r.Filename+".1")
	}
	return r.create()
}
