package course

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// CourseFile is the name of the descriptor inside each course directory.
const CourseFile = "course.yaml"

// DirRepository reads courses from a directory laid out as
//
//	<root>/<normalized id>/course.yaml
//	<root>/<normalized id>/static/<filename>
type DirRepository struct {
	root string
}

// NewDirRepository returns a repository rooted at dir.
func NewDirRepository(dir string) *DirRepository {
	return &DirRepository{root: dir}
}

type courseDocument struct {
	ID     string `yaml:"id"`
	Course `yaml:",inline"`
}

// Course implements Repository.
func (d *DirRepository) Course(_ context.Context, id ID) (*Course, error) {
	path := filepath.Join(d.root, id.Normalized(), CourseFile)
	c, err := readCourseFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", id, ErrCourseNotFound)
		}
		return nil, err
	}
	if c.ID != id {
		return nil, fmt.Errorf("%s: descriptor declares id %s", path, c.ID)
	}
	return c, nil
}

// Courses implements Repository. Directories without a readable descriptor
// are ignored.
func (d *DirRepository) Courses(_ context.Context) ([]Summary, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("reading courses directory %s: %w", d.root, err)
	}

	var result []Summary
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		c, err := readCourseFile(filepath.Join(d.root, entry.Name(), CourseFile))
		if err != nil {
			continue
		}
		result = append(result, Summary{ID: c.ID, DisplayName: c.DisplayName})
	}
	sortSummaries(result)
	return result, nil
}

// ContentBlob implements Repository.
func (d *DirRepository) ContentBlob(_ context.Context, id ID, filename string) (io.ReadCloser, error) {
	clean := filepath.Clean(filepath.FromSlash(filename))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%s: %w", filename, ErrBlobNotFound)
	}
	f, err := os.Open(filepath.Join(d.root, id.Normalized(), "static", clean))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", filename, ErrBlobNotFound)
		}
		return nil, fmt.Errorf("opening blob %s: %w", filename, err)
	}
	return f, nil
}

func readCourseFile(path string) (*Course, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var doc courseDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	id, err := ParseID(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	c := doc.Course
	c.ID = id
	return &c, nil
}

// WriteCourseFile stores c as a descriptor under root. It is used by tests
// and by tooling that seeds a course directory.
func WriteCourseFile(root string, c *Course) error {
	dir := filepath.Join(root, c.ID.Normalized())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	data, err := yaml.Marshal(courseDocument{ID: c.ID.String(), Course: *c})
	if err != nil {
		return fmt.Errorf("encoding course %s: %w", c.ID, err)
	}
	return os.WriteFile(filepath.Join(dir, CourseFile), data, 0o600)
}
