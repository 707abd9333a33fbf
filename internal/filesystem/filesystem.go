package filesystem

import "os"

// FileSystem abstracts the file operations the self-updater needs so tests
// can substitute fakes.
type FileSystem interface {
	Open(name string) (*os.File, error)
	Create(name string) (*os.File, error)
	ReadFile(name string) (string, error)
	WriteFile(name, content string) error
}

// OSFileSystem passes through to the os package.
type OSFileSystem struct{}

func (OSFileSystem) Open(name string) (*os.File, error) {
	return os.Open(name)
}

func (OSFileSystem) Create(name string) (*os.File, error) {
	return os.Create(name)
}

func (OSFileSystem) ReadFile(name string) (string, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (OSFileSystem) WriteFile(name, content string) error {
	return os.WriteFile(name, []byte(content), 0644)
}
